// Package gateway implements the three gateway events (start, continue, end) around the
// flow executor, running the middleware phases in order.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/middleware"
)

// Processor turns one event into an envelope. *runtime.Executor satisfies it.
type Processor interface {
	ProcessRequest(ctx context.Context, flowName, sessionID string, req domain.Request) domain.Envelope
}

// Sessions is the part of the session store needed to end sessions.
type Sessions interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Exchange is the payload of the afterRequest and afterResponse phases.
type Exchange struct {
	SessionID string
	Request   *domain.Request
	Response  *domain.Envelope
}

// SessionEnd is the payload of the afterSessionEnd phase.
type SessionEnd struct {
	SessionID string
	// Session is the record as it was before deletion; nil if it had already expired.
	Session *domain.Session
	Existed bool
	Ack     domain.Ack
}

// Service handles gateway events for one active flow.
type Service struct {
	proc       Processor
	sessions   Sessions
	activeFlow string
	pipeline   *middleware.Pipeline
	logger     *slog.Logger

	background sync.WaitGroup
}

// Option configures the Service.
type Option func(*Service)

// WithLogger configures a logger for the Service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPipeline sets the middleware pipeline. Defaults to an empty one.
func WithPipeline(p *middleware.Pipeline) Option {
	return func(s *Service) {
		s.pipeline = p
	}
}

// NewService creates a service serving activeFlow.
func NewService(proc Processor, sessions Sessions, activeFlow string, opts ...Option) *Service {
	s := &Service{
		proc:       proc,
		sessions:   sessions,
		activeFlow: activeFlow,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pipeline == nil {
		s.pipeline = middleware.New(middleware.WithLogger(s.logger))
	}
	return s
}

// ActiveFlow returns the flow this service runs.
func (s *Service) ActiveFlow() string {
	return s.activeFlow
}

// Pipeline returns the middleware pipeline, for registering stages.
func (s *Service) Pipeline() *middleware.Pipeline {
	return s.pipeline
}

// Start handles the first event of a session.
func (s *Service) Start(ctx context.Context, sessionID string, req domain.Request) domain.Envelope {
	r := s.request(ctx, middleware.BeforeSessionStart, &req)
	s.logger.Info("Using active flow", "session_id", sessionID, "short_code", r.ShortCode, "flow", s.activeFlow)
	return s.handle(ctx, sessionID, r)
}

// Continue handles a user answer within a session.
func (s *Service) Continue(ctx context.Context, sessionID string, req domain.Request) domain.Envelope {
	return s.handle(ctx, sessionID, &req)
}

// End deletes the session. Ending an unknown session succeeds.
func (s *Service) End(ctx context.Context, sessionID string) domain.Ack {
	prev, err := s.sessions.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		s.logger.Warn("Failed to read session before end", "session_id", sessionID, "err", err)
	}
	if prev != nil {
		s.logger.Debug("Session data at end",
			"session_id", sessionID,
			"screens", prev.NavHistory,
			"flow", prev.Flow,
		)
	}

	existed, err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		s.logger.Error("Failed to end session", "session_id", sessionID, "err", err)
		return domain.Ack{ResponseExitCode: domain.ExitFault, ResponseMessage: err.Error()}
	}

	ack := domain.Ack{ResponseExitCode: domain.ExitOK}
	s.run(ctx, middleware.AfterSessionEnd, &SessionEnd{
		SessionID: sessionID,
		Session:   prev,
		Existed:   existed,
		Ack:       ack,
	})
	return ack
}

// Wait blocks until background afterResponse stages have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) handle(ctx context.Context, sessionID string, req *domain.Request) domain.Envelope {
	req = s.request(ctx, middleware.BeforeRequest, req)

	env := s.proc.ProcessRequest(ctx, s.activeFlow, sessionID, *req)

	if out, ok := s.run(ctx, middleware.AfterRequest, &Exchange{SessionID: sessionID, Request: req, Response: &env}).(*Exchange); ok && out.Response != nil {
		env = *out.Response
	}
	if out, ok := s.run(ctx, middleware.BeforeResponse, &env).(*domain.Envelope); ok && out != nil {
		env = *out
	}

	final := env
	if s.pipeline.Len(middleware.AfterResponse) > 0 {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.run(context.WithoutCancel(ctx), middleware.AfterResponse, &Exchange{SessionID: sessionID, Request: req, Response: &final})
		}()
	}
	return env
}

// request runs a phase over a request payload, keeping the input if a stage swaps its type.
func (s *Service) request(ctx context.Context, phase middleware.Phase, req *domain.Request) *domain.Request {
	if out, ok := s.run(ctx, phase, req).(*domain.Request); ok && out != nil {
		return out
	}
	s.logger.Warn("Middleware returned an unexpected payload, ignoring", "phase", phase)
	return req
}

func (s *Service) run(ctx context.Context, phase middleware.Phase, payload any) any {
	out, err := s.pipeline.Run(ctx, phase, payload)
	if err != nil {
		s.logger.Error("Middleware phase failed", "phase", phase, "err", err)
		return payload
	}
	return out
}
