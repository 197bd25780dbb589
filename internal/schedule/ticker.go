// Package schedule turns periodic jobs into task queue submissions.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/taskqueue"
)

// Ticker submits fn to the queue every interval until stopped.
type Ticker struct {
	name     string
	interval time.Duration
	priority int
	fn       taskqueue.Func
	queue    taskqueue.Enqueuer

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// Option configures a Ticker.
type Option func(*Ticker)

// WithLogger configures a logger for the Ticker.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Ticker) {
		t.logger = logger
	}
}

// WithPriority sets the task priority used for each submission.
func WithPriority(p int) Option {
	return func(t *Ticker) {
		t.priority = p
	}
}

// NewTicker creates a stopped ticker.
func NewTicker(name string, interval time.Duration, q taskqueue.Enqueuer, fn taskqueue.Func, opts ...Option) *Ticker {
	t := &Ticker{
		name:     name,
		interval: interval,
		priority: taskqueue.DefaultPriority,
		fn:       fn,
		queue:    q,
		stop:     make(chan struct{}),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the job name.
func (t *Ticker) Name() string { return t.name }

// Start launches the loop. It ends when ctx is done or Stop is called.
func (t *Ticker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.queue.Add(t.fn, taskqueue.Options{Name: t.name, Priority: t.priority})
			case <-t.stop:
				t.logger.Info("Stopping tick worker", "worker", t.name)
				return
			case <-ctx.Done():
				t.logger.Info("Stopping tick worker", "worker", t.name, "reason", ctx.Err())
				return
			}
		}
	}()
	t.logger.Info("Tick worker started", "worker", t.name, "interval", t.interval)
}

// Stop ends the loop and waits for it to exit. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	t.wg.Wait()
}

// Group starts and stops several tickers together.
type Group struct {
	tickers []*Ticker
}

// NewGroup groups tickers.
func NewGroup(tickers ...*Ticker) *Group {
	return &Group{tickers: tickers}
}

// Add appends a ticker. Call before Start.
func (g *Group) Add(t *Ticker) {
	g.tickers = append(g.tickers, t)
}

// Start starts every ticker.
func (g *Group) Start(ctx context.Context) {
	for _, t := range g.tickers {
		t.Start(ctx)
	}
}

// Stop stops every ticker.
func (g *Group) Stop() {
	for _, t := range g.tickers {
		t.Stop()
	}
}

// Len returns the number of tickers.
func (g *Group) Len() int { return len(g.tickers) }
