package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/expr"
	"github.com/aretw0/ussdflow/pkg/session"
)

// processInput applies input to the current screen and returns the id of the screen to show next.
// Helper and expression failures fall back to the welcome screen; only store failures are returned.
func (e *Executor) processInput(ctx context.Context, f *domain.Flow, screen *domain.Screen, input string, sess *domain.Session) (next string, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic while processing input", "screen", screen.ID, "session_id", sess.ID, "panic", r)
			next, err = domain.WelcomeScreen, nil
		}
	}()

	e.logger.Debug("Processing input", "screen", screen.ID, "session_id", sess.ID)
	if e.hooks.OnUserInput != nil {
		e.hooks.OnUserInput(ctx, &domain.InputEvent{
			EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventUserInput, SessionID: sess.ID},
			Flow:      f.Name,
			ScreenID:  screen.ID,
			Input:     input,
		})
	}

	if screen.Store != nil {
		sess, err = e.store(ctx, sess, screen.Store, input)
		if err != nil {
			return "", err
		}
	}

	switch body := screen.Body.(type) {
	case domain.Menu:
		if opt, ok := body.Options[input]; ok {
			return e.choose(ctx, f, sess, opt, input)
		}
		if body.Default != nil {
			return e.resolve(f, *body.Default, sess), nil
		}
		// Unknown option: show the menu again.
		return sess.CurrentScreen, nil

	case domain.Input:
		if body.Validator != "" {
			valid, err := e.validate(ctx, sess, body.Validator, input)
			if err != nil {
				e.logger.Error("Validator failed", "validator", body.Validator, "err", err)
				return domain.WelcomeScreen, nil
			}
			if !valid {
				return sess.CurrentScreen, nil
			}
		}
		return e.resolve(f, body.Next, sess), nil

	case domain.Dynamic:
		if opt, ok := sess.PendingOptions[input]; ok {
			return e.choose(ctx, f, sess, opt, input)
		}
		return e.dynamicInput(ctx, f, screen, body, sess, input)

	case domain.Router:
		scope := map[string]any{expr.VarSession: sess.Variables, expr.VarInput: input}
		for i, route := range body.Routes {
			if route.Condition == nil {
				continue
			}
			v, err := route.Condition.Evaluate(scope)
			if err != nil {
				e.logger.Error("Route condition failed",
					"screen", screen.ID,
					"route", i,
					"condition", route.Condition.Source(),
					"err", err,
				)
				continue
			}
			if expr.Truthy(v) {
				return e.resolve(f, route.Next, sess), nil
			}
		}
		if body.Default != nil {
			return e.resolve(f, *body.Default, sess), nil
		}
		return domain.WelcomeScreen, nil

	case domain.Passthrough:
		if body.Next != nil {
			return e.resolve(f, *body.Next, sess), nil
		}
		return domain.WelcomeScreen, nil
	}

	return domain.WelcomeScreen, nil
}

// choose follows a selected menu option, persisting its store directive first.
func (e *Executor) choose(ctx context.Context, f *domain.Flow, sess *domain.Session, opt domain.MenuOption, input string) (string, error) {
	if opt.Store != nil {
		var err error
		if sess, err = e.store(ctx, sess, opt.Store, input); err != nil {
			return "", err
		}
	}
	return e.resolve(f, opt.Next, sess), nil
}

func (e *Executor) store(ctx context.Context, sess *domain.Session, d *domain.StoreDirective, input string) (*domain.Session, error) {
	vars := d.Apply(input)
	if len(vars) == 0 {
		return sess, nil
	}
	return e.sessions.Update(ctx, sess.ID, session.Update{Variables: vars})
}

// validate reports whether input passes the named validator.
// A validator that is not registered accepts everything.
func (e *Executor) validate(ctx context.Context, sess *domain.Session, name, input string) (bool, error) {
	v, ok := e.helpers.Validator(name)
	if !ok {
		e.logger.Warn("Validator not found, accepting input", "validator", name)
		return true, nil
	}

	var valid bool
	err := e.call(ctx, sess.ID, name, func() (err error) {
		valid, err = v.Validate(ctx, input, sess.Variables)
		return err
	})
	if err != nil {
		return false, err
	}
	e.logger.Debug("Validation result", "validator", name, "valid", valid)
	return valid, nil
}

func (e *Executor) dynamicInput(ctx context.Context, f *domain.Flow, screen *domain.Screen, body domain.Dynamic, sess *domain.Session, input string) (string, error) {
	h, ok := e.helpers.Handler(body.Handler)
	if !ok {
		e.logger.Error("Handler not found for dynamic screen", "screen", screen.ID, "handler", body.Handler)
		return domain.WelcomeScreen, nil
	}

	var res *domain.ScreenResult
	err := e.call(ctx, sess.ID, body.Handler, func() (err error) {
		res, err = h.Handle(ctx, sess, domain.HandlerContext{
			Phase:  domain.PhaseInput,
			Input:  input,
			Screen: screen,
			Flow:   f,
		})
		return err
	})
	if err != nil {
		e.logger.Error("Handler failed", "screen", screen.ID, "handler", body.Handler, "err", err)
		return domain.WelcomeScreen, nil
	}

	if res != nil && len(res.Variables) > 0 {
		if sess, err = e.sessions.Update(ctx, sess.ID, session.Update{Variables: res.Variables}); err != nil {
			return "", err
		}
	}
	switch {
	case res != nil && res.Next != "":
		return e.resolve(f, domain.Target{Raw: res.Next}, sess), nil
	case body.Next != nil:
		return e.resolve(f, *body.Next, sess), nil
	}
	return domain.WelcomeScreen, nil
}

// call invokes a helper, turning panics into errors and reporting the call.
func (e *Executor) call(ctx context.Context, sessionID, name string, fn func() error) (err error) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("helper %s panicked: %v", name, r)
		}
		if e.hooks.OnAPICall != nil {
			e.hooks.OnAPICall(ctx, &domain.APICallEvent{
				EventBase: domain.EventBase{Timestamp: start, Type: domain.EventAPICall, SessionID: sessionID},
				Endpoint:  name,
				Duration:  time.Since(start),
				Success:   err == nil,
			})
		}
	}()
	return fn()
}

// resolve turns a target into a screen id of f, falling back to the welcome screen when
// the target is empty, fails to evaluate, is falsy or names no screen.
func (e *Executor) resolve(f *domain.Flow, t domain.Target, sess *domain.Session) string {
	if t.IsZero() {
		return domain.WelcomeScreen
	}

	id := t.Raw
	if t.IsDynamic() {
		ex := t.Expr
		if ex == nil {
			compiled, err := expr.Compile(t.Raw)
			if err != nil {
				e.logger.Error("Invalid dynamic next screen", "expression", t.Raw, "err", err)
				return domain.WelcomeScreen
			}
			ex = compiled
		}
		v, err := ex.Evaluate(map[string]any{expr.VarSession: sess.Variables})
		if err != nil {
			e.logger.Error("Error evaluating dynamic next screen", "expression", ex.Source(), "err", err)
			return domain.WelcomeScreen
		}
		if !expr.Truthy(v) {
			return domain.WelcomeScreen
		}
		id = fmt.Sprint(v)
	}

	if !f.HasScreen(id) {
		e.logger.Warn("Next screen does not exist, falling back to welcome", "flow", f.Name, "screen", id)
		return domain.WelcomeScreen
	}
	return id
}
