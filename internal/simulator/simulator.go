// Package simulator drives a flow the way a handset would, without a gateway.
// It is used by the simulate command and by end-to-end tests.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/domain"
)

// Defaults used for the simulated subscriber.
const (
	DefaultMSISDN      = "1234567890"
	DefaultShortCode   = "*123#"
	DefaultNetworkName = "TestNetwork"
	DefaultCountryName = "TestCountry"
)

var (
	// ErrNotStarted is returned by Send before Start.
	ErrNotStarted = errors.New("simulator: session not started")
	// ErrClosed is returned by Send after the flow closed the session.
	ErrClosed = errors.New("simulator: session closed")
)

// Processor executes one request against a flow.
type Processor interface {
	ProcessRequest(ctx context.Context, flowName, sessionID string, req domain.Request) domain.Envelope
}

// Sessions gives the simulator access to the session record.
type Sessions interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// EntryType classifies history entries.
type EntryType string

const (
	EntryStart EntryType = "start"
	EntryInput EntryType = "input"
	EntryEnd   EntryType = "end"
)

// Entry is one recorded exchange.
type Entry struct {
	Type      EntryType       `json:"type"`
	Input     string          `json:"input,omitempty"`
	Response  domain.Envelope `json:"response"`
	Timestamp time.Time       `json:"timestamp"`
	// Changes lists what the exchange did to the session record.
	Changes *domain.SessionDiff `json:"changes,omitempty"`
}

// Simulator plays one session against one flow.
type Simulator struct {
	flow      string
	sessionID string
	msisdn    string
	shortCode string

	proc     Processor
	sessions Sessions
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	started bool
	closed  bool
	history []Entry
}

// Option configures the Simulator.
type Option func(*Simulator)

// WithMSISDN sets the subscriber number.
func WithMSISDN(msisdn string) Option {
	return func(s *Simulator) {
		s.msisdn = msisdn
	}
}

// WithShortCode sets the dialled short code.
func WithShortCode(code string) Option {
	return func(s *Simulator) {
		s.shortCode = code
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(s *Simulator) {
		s.sessionID = id
	}
}

// WithLogger configures a logger for the Simulator.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

// New creates a simulator for the named flow.
func New(proc Processor, sessions Sessions, flow string, opts ...Option) *Simulator {
	s := &Simulator{
		flow:      flow,
		sessionID: "test-" + uuid.NewString(),
		msisdn:    DefaultMSISDN,
		shortCode: DefaultShortCode,
		proc:      proc,
		sessions:  sessions,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionID returns the id of the simulated session.
func (s *Simulator) SessionID() string {
	return s.sessionID
}

// Start opens the session and returns the welcome screen.
func (s *Simulator) Start(ctx context.Context) (domain.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Initializing simulated session", "flow", s.flow, "session_id", s.sessionID)
	if _, err := s.sessions.Delete(ctx, s.sessionID); err != nil {
		return domain.Envelope{}, fmt.Errorf("reset session: %w", err)
	}

	env := s.proc.ProcessRequest(ctx, s.flow, s.sessionID, s.request(""))
	s.started = true
	s.closed = env.ShouldClose
	s.record(EntryStart, "", env, domain.Diff(nil, s.snapshot(ctx)))
	return env, nil
}

// Send submits one answer.
func (s *Simulator) Send(ctx context.Context, input string) (domain.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return domain.Envelope{}, ErrNotStarted
	}
	if s.closed {
		return domain.Envelope{}, ErrClosed
	}

	s.logger.Debug("Sending simulated input", "flow", s.flow, "input", input)
	before := s.snapshot(ctx)
	env := s.proc.ProcessRequest(ctx, s.flow, s.sessionID, s.request(input))
	s.closed = env.ShouldClose
	s.record(EntryInput, input, env, domain.Diff(before, s.snapshot(ctx)))
	return env, nil
}

// RunSequence sends inputs in order and stops early when the session closes.
func (s *Simulator) RunSequence(ctx context.Context, inputs []string) ([]domain.Envelope, error) {
	out := make([]domain.Envelope, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		env, err := s.Send(ctx, in)
		if err != nil {
			return out, err
		}
		out = append(out, env)
		if env.ShouldClose {
			s.logger.Info("Sequence ended early due to session close", "sent", len(out), "total", len(inputs))
			break
		}
	}
	return out, nil
}

// Closed reports whether the flow ended the session.
func (s *Simulator) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Session returns the current session record.
func (s *Simulator) Session(ctx context.Context) (*domain.Session, error) {
	return s.sessions.Get(ctx, s.sessionID)
}

// History returns a copy of the recorded exchanges.
func (s *Simulator) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.history...)
}

// Cleanup ends and deletes the simulated session.
func (s *Simulator) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Cleaning up simulated session", "session_id", s.sessionID)
	s.record(EntryEnd, "", domain.Envelope{ResponseExitCode: domain.ExitOK}, nil)
	s.closed = true
	if _, err := s.sessions.Delete(ctx, s.sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Simulator) request(input string) domain.Request {
	return domain.Request{
		MSISDN:      s.msisdn,
		SessionID:   s.sessionID,
		ShortCode:   s.shortCode,
		Input:       input,
		NetworkName: DefaultNetworkName,
		CountryName: DefaultCountryName,
	}
}

// snapshot returns the stored session, or nil when it cannot be read.
func (s *Simulator) snapshot(ctx context.Context) *domain.Session {
	sess, err := s.sessions.Get(ctx, s.sessionID)
	if err != nil {
		return nil
	}
	return sess
}

func (s *Simulator) record(t EntryType, input string, env domain.Envelope, changes *domain.SessionDiff) {
	s.history = append(s.history, Entry{Type: t, Input: input, Response: env, Timestamp: s.now(), Changes: changes})
}
