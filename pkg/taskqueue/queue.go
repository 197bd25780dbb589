// Package taskqueue runs background jobs with bounded concurrency and priorities.
//
// Tasks with a higher priority start first; tasks of equal priority start in the
// order they were added. A failing or panicking task only affects its own Handle.
// The queue is in-memory: pending work is lost if the process exits.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/aretw0/ussdflow/internal/logging"
)

const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5

	// DefaultMaxConcurrent is used when New receives a non-positive limit.
	DefaultMaxConcurrent = 5
)

// ErrClosed is reported by handles of tasks added after Close.
var ErrClosed = errors.New("task queue closed")

// Func is a unit of background work.
type Func func(ctx context.Context) (any, error)

// Options describe a task.
type Options struct {
	// Name is used in logs. Defaults to task_<n>.
	Name string
	// Priority in [1,10], 10 runs first. Zero means DefaultPriority; other values are clamped.
	Priority int
}

// Enqueuer accepts background work. *Queue satisfies it.
type Enqueuer interface {
	Add(fn Func, opts Options) *Handle
}

// Stats is a snapshot of the queue counters.
type Stats struct {
	Enqueued    uint64 `json:"totalEnqueued"`
	Processed   uint64 `json:"totalProcessed"`
	Succeeded   uint64 `json:"totalSucceeded"`
	Failed      uint64 `json:"totalFailed"`
	QueueLength int    `json:"queueLength"`
	Active      int    `json:"activeCount"`
}

type task struct {
	fn     Func
	handle *Handle
}

// Queue is a bounded-concurrency priority task runner. Safe for concurrent use.
type Queue struct {
	mu            sync.Mutex
	buckets       [MaxPriority + 1]*queue.Queue // index is the priority
	maxConcurrent int
	active        int
	queued        int
	stats         Stats
	closed        bool
	drained       chan struct{}
	drainOnce     sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// Option configures the Queue.
type Option func(*Queue)

// WithLogger configures a logger for the Queue.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// New creates a queue running at most maxConcurrent tasks at a time.
func New(maxConcurrent int, opts ...Option) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		maxConcurrent: maxConcurrent,
		drained:       make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logging.NewNop(),
	}
	for i := MinPriority; i <= MaxPriority; i++ {
		q.buckets[i] = queue.New()
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add enqueues fn and returns a handle to its outcome. It never blocks.
func (q *Queue) Add(fn Func, opts Options) *Handle {
	priority := clamp(opts.Priority)

	q.mu.Lock()
	defer q.mu.Unlock()

	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("task_%d", q.stats.Enqueued+1)
	}
	h := newHandle(name, priority)

	if q.closed {
		h.finish(nil, ErrClosed)
		return h
	}

	q.stats.Enqueued++
	q.queued++
	q.buckets[priority].Add(&task{fn: fn, handle: h})
	q.logger.Debug("Task added to queue", "task", name, "priority", priority)

	q.scheduleLocked()
	return h
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.QueueLength = q.queued
	s.Active = q.active
	return s
}

// Close stops accepting tasks and waits until queued and running tasks finish.
// If ctx ends first, running tasks see their context cancelled and ctx.Err() is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	if q.active == 0 && q.queued == 0 {
		q.drainOnce.Do(func() { close(q.drained) })
	}
	q.mu.Unlock()

	select {
	case <-q.drained:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

// scheduleLocked starts tasks while there are free slots. Caller holds q.mu.
func (q *Queue) scheduleLocked() {
	for q.active < q.maxConcurrent {
		t := q.nextLocked()
		if t == nil {
			return
		}
		q.queued--
		q.active++
		go q.run(t)
	}
}

func (q *Queue) nextLocked() *task {
	for p := MaxPriority; p >= MinPriority; p-- {
		if q.buckets[p].Length() > 0 {
			return q.buckets[p].Remove().(*task)
		}
	}
	return nil
}

func (q *Queue) run(t *task) {
	start := time.Now()
	q.logger.Debug("Executing task", "task", t.handle.name)

	result, err := execute(q.ctx, t.fn)

	q.mu.Lock()
	q.stats.Processed++
	if err != nil {
		q.stats.Failed++
	} else {
		q.stats.Succeeded++
	}
	q.active--
	q.scheduleLocked()
	if q.closed && q.active == 0 && q.queued == 0 {
		q.drainOnce.Do(func() { close(q.drained) })
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Error("Task failed", "task", t.handle.name, "err", err)
	} else {
		q.logger.Debug("Task completed", "task", t.handle.name, "duration", time.Since(start))
	}
	t.handle.finish(result, err)
}

// execute runs fn, turning a panic into an error.
func execute(ctx context.Context, fn Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func clamp(p int) int {
	switch {
	case p == 0:
		return DefaultPriority
	case p < MinPriority:
		return MinPriority
	case p > MaxPriority:
		return MaxPriority
	}
	return p
}
