package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/ports"
	"github.com/aretw0/ussdflow/pkg/session"
)

// Fault kinds reported through OnError.
const (
	KindFlowNotFound    = "flow_not_found"
	KindScreenNotFound  = "screen_not_found"
	KindHandlerNotFound = "handler_not_found"
	KindHandlerError    = "handler_error"
	KindStore           = "store_unavailable"
	KindInternal        = "internal"
)

// Flows resolves flow definitions by name.
type Flows interface {
	Get(name string) (*domain.Flow, error)
}

// Helpers resolves named capabilities.
type Helpers interface {
	Validator(name string) (ports.Validator, bool)
	Handler(name string) (ports.DynamicHandler, bool)
}

// Sessions is the session store as seen by the executor.
type Sessions interface {
	Create(ctx context.Context, id string, seed session.Seed) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	Update(ctx context.Context, id string, u session.Update) (*domain.Session, error)
	WithLock(ctx context.Context, id string, fn func(context.Context) error) error
}

// Executor drives sessions through their flow.
type Executor struct {
	flows    Flows
	helpers  Helpers
	sessions Sessions

	hooks         domain.LifecycleHooks
	maxMenuLength int
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures the Executor.
type Option func(*Executor)

// WithLogger configures a logger for the Executor.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithMaxMenuLength logs a warning for rendered menus longer than n runes. Zero disables the check.
func WithMaxMenuLength(n int) Option {
	return func(e *Executor) {
		e.maxMenuLength = n
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an executor.
func NewExecutor(flows Flows, helpers Helpers, sessions Sessions, opts ...Option) *Executor {
	e := &Executor{
		flows:    flows,
		helpers:  helpers,
		sessions: sessions,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessRequest handles one gateway event for the session and always returns an envelope.
// An absent session is created and shown the welcome screen; otherwise req.Input is
// applied to the current screen and the resulting screen is rendered.
func (e *Executor) ProcessRequest(ctx context.Context, flowName, sessionID string, req domain.Request) (env domain.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic while processing request", "session_id", sessionID, "panic", r)
			env = e.fault(ctx, sessionID, KindInternal, domain.MenuServiceError, fmt.Sprint(r))
		}
	}()

	err := e.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		env = e.process(ctx, flowName, sessionID, req)
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to process request", "session_id", sessionID, "err", err)
		return e.fault(ctx, sessionID, KindInternal, domain.MenuServiceError, err.Error())
	}
	return env
}

func (e *Executor) process(ctx context.Context, flowName, sessionID string, req domain.Request) domain.Envelope {
	f, err := e.flows.Get(flowName)
	if err != nil {
		e.logger.Error("Flow not found", "flow", flowName, "err", err)
		return e.fault(ctx, sessionID, KindFlowNotFound, domain.MenuServiceUnavailable, "Flow not found")
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		sess, err = e.sessions.Create(ctx, sessionID, session.Seed{
			MSISDN:    req.MSISDN,
			ShortCode: req.ShortCode,
			Flow:      f.Name,
			Variables: map[string]any{
				domain.VarNetworkName: req.NetworkName,
				domain.VarCountryName: req.CountryName,
			},
		})
		if err != nil {
			return e.storeFault(ctx, sessionID, err)
		}
		return e.render(ctx, f, domain.WelcomeScreen, sess)
	}
	if err != nil {
		return e.storeFault(ctx, sessionID, err)
	}

	screen, ok := f.Screen(sess.CurrentScreen)
	if !ok {
		e.logger.Error("Screen not found", "flow", f.Name, "screen", sess.CurrentScreen, "session_id", sessionID)
		return e.fault(ctx, sessionID, KindScreenNotFound, domain.MenuServiceUnavailable, "Screen not found")
	}

	next, err := e.processInput(ctx, f, screen, req.Input, sess)
	if err != nil {
		return e.storeFault(ctx, sessionID, err)
	}
	return e.render(ctx, f, next, sess)
}

func (e *Executor) storeFault(ctx context.Context, sessionID string, err error) domain.Envelope {
	e.logger.Error("Session store failure", "session_id", sessionID, "err", err)
	return e.fault(ctx, sessionID, KindStore, domain.MenuServiceUnavailable, "Session store unavailable")
}

func (e *Executor) fault(ctx context.Context, sessionID, kind, menu, message string) domain.Envelope {
	if e.hooks.OnError != nil {
		e.hooks.OnError(ctx, &domain.ErrorEvent{
			EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventError, SessionID: sessionID},
			Kind:      kind,
			Message:   message,
		})
	}
	return domain.Fault(menu, message)
}

func (e *Executor) checkLength(f *domain.Flow, screenID, menu string) {
	if e.maxMenuLength <= 0 {
		return
	}
	if n := utf8.RuneCountInString(menu); n > e.maxMenuLength {
		e.logger.Warn("Rendered menu exceeds maximum length",
			"flow", f.Name,
			"screen", screenID,
			"length", n,
			"max", e.maxMenuLength,
		)
	}
}
