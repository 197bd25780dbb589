package taskqueue

import "context"

// Handle tracks one task's outcome.
type Handle struct {
	name     string
	priority int

	done   chan struct{}
	result any
	err    error
}

func newHandle(name string, priority int) *Handle {
	return &Handle{name: name, priority: priority, done: make(chan struct{})}
}

// Name returns the task name.
func (h *Handle) Name() string { return h.name }

// Priority returns the effective (clamped) priority.
func (h *Handle) Priority() int { return h.priority }

// Done is closed when the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) finish(result any, err error) {
	h.result = result
	h.err = err
	close(h.done)
}
