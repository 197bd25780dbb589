// Package middleware provides named phases of ordered hook functions around request handling.
//
// A stage receives the payload produced by the previous stage. A stage that fails or panics
// is logged and skipped: the next stage receives the payload the failing stage was given.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/ussdflow/internal/logging"
)

// Phase names a point of the request lifecycle.
type Phase string

const (
	BeforeSessionStart Phase = "beforeSessionStart"
	BeforeRequest      Phase = "beforeRequest"
	AfterRequest       Phase = "afterRequest"
	BeforeResponse     Phase = "beforeResponse"
	AfterResponse      Phase = "afterResponse"
	AfterSessionEnd    Phase = "afterSessionEnd"
)

// Phases lists every known phase in lifecycle order.
var Phases = []Phase{
	BeforeSessionStart,
	BeforeRequest,
	AfterRequest,
	BeforeResponse,
	AfterResponse,
	AfterSessionEnd,
}

var (
	ErrUnknownPhase = errors.New("unknown middleware phase")
	ErrNilFunc      = errors.New("middleware function is nil")
)

// Func transforms a payload. Returning an error skips the stage.
type Func func(ctx context.Context, payload any) (any, error)

// Pipeline holds the registered stages of each phase. Safe for concurrent use.
type Pipeline struct {
	mu     sync.RWMutex
	stages map[Phase][]Func
	logger *slog.Logger
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithLogger configures a logger for the Pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline with every phase empty.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: make(map[Phase][]Func, len(Phases)),
		logger: logging.NewNop(),
	}
	for _, phase := range Phases {
		p.stages[phase] = nil
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Use appends fn to phase.
func (p *Pipeline) Use(phase Phase, fn Func) error {
	if fn == nil {
		return fmt.Errorf("%w: phase %s", ErrNilFunc, phase)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.stages[phase]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}
	p.stages[phase] = append(p.stages[phase], fn)
	return nil
}

// Len returns the number of stages registered for phase.
func (p *Pipeline) Len(phase Phase) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.stages[phase])
}

// Run threads payload through the stages of phase in registration order.
// It fails only for an unknown phase.
func (p *Pipeline) Run(ctx context.Context, phase Phase, payload any) (any, error) {
	p.mu.RLock()
	stages, ok := p.stages[phase]
	stages = slices.Clone(stages)
	p.mu.RUnlock()
	if !ok {
		return payload, fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}

	current := payload
	for i, fn := range stages {
		next, err := runStage(ctx, fn, current)
		if err != nil {
			p.logger.Error("Middleware stage failed", "phase", phase, "stage", i, "err", err)
			continue
		}
		current = next
	}
	return current, nil
}

func runStage(ctx context.Context, fn Func, payload any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("middleware panicked: %v", r)
		}
	}()
	return fn(ctx, payload)
}

// Typed adapts a function over a concrete payload type.
// A payload of another type makes the stage fail.
func Typed[T any](fn func(ctx context.Context, payload T) (T, error)) Func {
	return func(ctx context.Context, payload any) (any, error) {
		v, ok := payload.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("middleware expects %T, got %T", zero, payload)
		}
		return fn(ctx, v)
	}
}
