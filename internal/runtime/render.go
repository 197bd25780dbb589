package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/session"
)

var placeholder = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// render moves the session to screenID and builds the envelope for it.
func (e *Executor) render(ctx context.Context, f *domain.Flow, screenID string, sess *domain.Session) domain.Envelope {
	e.logger.Debug("Rendering screen", "screen", screenID, "session_id", sess.ID)

	moved, err := e.sessions.Update(ctx, sess.ID, session.Update{CurrentScreen: screenID})
	if err != nil {
		return e.storeFault(ctx, sess.ID, err)
	}
	sess = moved

	screen, ok := f.Screen(screenID)
	if !ok {
		e.logger.Error("Screen not found", "flow", f.Name, "screen", screenID)
		return e.fault(ctx, sess.ID, KindScreenNotFound, domain.MenuScreenNotFound, "Screen not found")
	}

	if e.hooks.OnScreenView != nil {
		e.hooks.OnScreenView(ctx, &domain.ScreenEvent{
			EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventScreenView, SessionID: sess.ID},
			Flow:      f.Name,
			ScreenID:  screenID,
		})
	}

	switch body := screen.Body.(type) {
	case domain.Dynamic:
		return e.renderDynamic(ctx, f, screen, body, sess)
	case domain.Notification:
		return domain.Close(e.interpolate(screen.Text, sess.Variables))
	}

	menu := e.interpolate(screen.Text, sess.Variables)
	e.checkLength(f, screenID, menu)
	env := domain.Continue(menu)
	env.ShouldClose = screen.ShouldClose
	return env
}

func (e *Executor) renderDynamic(ctx context.Context, f *domain.Flow, screen *domain.Screen, body domain.Dynamic, sess *domain.Session) domain.Envelope {
	h, ok := e.helpers.Handler(body.Handler)
	if !ok {
		e.logger.Error("Handler not found for dynamic screen", "screen", screen.ID, "handler", body.Handler)
		return e.fault(ctx, sess.ID, KindHandlerNotFound, domain.MenuServiceUnavailable, "Handler not found")
	}

	var res *domain.ScreenResult
	err := e.call(ctx, sess.ID, body.Handler, func() (err error) {
		res, err = h.Handle(ctx, sess, domain.HandlerContext{
			Phase:  domain.PhaseRender,
			Screen: screen,
			Flow:   f,
		})
		return err
	})
	if err != nil {
		e.logger.Error("Handler failed while rendering", "screen", screen.ID, "handler", body.Handler, "err", err)
		return e.fault(ctx, sess.ID, KindHandlerError, domain.MenuServiceError, err.Error())
	}
	if res == nil {
		res = &domain.ScreenResult{}
	}

	if len(res.Options) > 0 || len(res.Variables) > 0 {
		if _, err := e.sessions.Update(ctx, sess.ID, session.Update{
			Variables:      res.Variables,
			PendingOptions: res.Options,
		}); err != nil {
			return e.storeFault(ctx, sess.ID, err)
		}
	}

	if res.IsEnvelope() {
		menu := res.USSDMenu
		if menu == "" {
			menu = domain.MenuServiceUnavailable
		}
		e.checkLength(f, screen.ID, menu)
		env := domain.Continue(menu)
		env.ShouldClose = res.Closes()
		return env
	}

	text := res.Text
	if text == "" {
		text = domain.MenuServiceUnavailable
	}
	e.checkLength(f, screen.ID, text)
	env := domain.Continue(text)
	env.ShouldClose = screen.ShouldClose || res.Closes()
	return env
}

// interpolate replaces {{ name }} placeholders with session variables.
// Unknown names are left as written.
func (e *Executor) interpolate(text string, vars map[string]any) string {
	if text == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		v, ok := vars[name]
		if !ok {
			e.logger.Warn("Variable not found", "variable", name)
			return match
		}
		return display(v)
	})
}

// display formats a variable for the handset. Numbers decoded from JSON are float64 and
// must never reach the screen in exponent form.
func display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
