package taskqueue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/ussdflow/pkg/taskqueue"
)

func wait(t *testing.T, h *taskqueue.Handle) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.Wait(ctx)
}

func TestQueue_RunsTaskAndReportsResult(t *testing.T) {
	q := taskqueue.New(2)
	defer q.Close(context.Background())

	h := q.Add(func(ctx context.Context) (any, error) { return 42, nil }, taskqueue.Options{Name: "answer"})
	res, err := wait(t, h)
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, "answer", h.Name())

	stats := q.Stats()
	assert.Equal(t, uint64(1), stats.Enqueued)
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(1), stats.Succeeded)
	assert.Equal(t, uint64(0), stats.Failed)
}

func TestQueue_DefaultNameAndPriority(t *testing.T) {
	q := taskqueue.New(1)
	defer q.Close(context.Background())

	h1 := q.Add(func(ctx context.Context) (any, error) { return nil, nil }, taskqueue.Options{})
	h2 := q.Add(func(ctx context.Context) (any, error) { return nil, nil }, taskqueue.Options{Priority: 42})
	h3 := q.Add(func(ctx context.Context) (any, error) { return nil, nil }, taskqueue.Options{Priority: -3})

	assert.Equal(t, "task_1", h1.Name())
	assert.Equal(t, "task_2", h2.Name())
	assert.Equal(t, taskqueue.DefaultPriority, h1.Priority())
	assert.Equal(t, taskqueue.MaxPriority, h2.Priority())
	assert.Equal(t, taskqueue.MinPriority, h3.Priority())

	for _, h := range []*taskqueue.Handle{h1, h2, h3} {
		_, err := wait(t, h)
		require.NoError(t, err)
	}
}

func TestQueue_FailureIsolation(t *testing.T) {
	q := taskqueue.New(1)
	defer q.Close(context.Background())

	boom := errors.New("boom")
	failed := q.Add(func(ctx context.Context) (any, error) { return nil, boom }, taskqueue.Options{})
	panicked := q.Add(func(ctx context.Context) (any, error) { panic("kaput") }, taskqueue.Options{})
	ok := q.Add(func(ctx context.Context) (any, error) { return "fine", nil }, taskqueue.Options{})

	_, err := wait(t, failed)
	assert.ErrorIs(t, err, boom)

	_, err = wait(t, panicked)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaput")

	res, err := wait(t, ok)
	require.NoError(t, err)
	assert.Equal(t, "fine", res)

	stats := q.Stats()
	assert.Equal(t, uint64(3), stats.Processed)
	assert.Equal(t, uint64(1), stats.Succeeded)
	assert.Equal(t, uint64(2), stats.Failed)
}

func TestQueue_ConcurrencyBound(t *testing.T) {
	const limit = 3
	q := taskqueue.New(limit)
	defer q.Close(context.Background())

	var running, peak atomic.Int32
	release := make(chan struct{})

	handles := make([]*taskqueue.Handle, 0, 10)
	for i := 0; i < 10; i++ {
		handles = append(handles, q.Add(func(ctx context.Context) (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil, nil
		}, taskqueue.Options{}))
	}

	assert.Eventually(t, func() bool { return q.Stats().Active == limit }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 10-limit, q.Stats().QueueLength)
	close(release)

	for _, h := range handles {
		_, err := wait(t, h)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, 0, q.Stats().Active)
	assert.Equal(t, 0, q.Stats().QueueLength)
}

func TestQueue_HigherPriorityStartsFirst(t *testing.T) {
	q := taskqueue.New(1)
	defer q.Close(context.Background())

	gate := make(chan struct{})
	blocker := q.Add(func(ctx context.Context) (any, error) {
		<-gate
		return nil, nil
	}, taskqueue.Options{Name: "blocker"})

	var mu sync.Mutex
	var order []string
	record := func(name string) taskqueue.Func {
		return func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	handles := []*taskqueue.Handle{
		q.Add(record("low"), taskqueue.Options{Priority: 1}),
		q.Add(record("mid-a"), taskqueue.Options{Priority: 5}),
		q.Add(record("high"), taskqueue.Options{Priority: 9}),
		q.Add(record("mid-b"), taskqueue.Options{Priority: 5}),
	}
	close(gate)

	_, err := wait(t, blocker)
	require.NoError(t, err)
	for _, h := range handles {
		_, err := wait(t, h)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"high", "mid-a", "mid-b", "low"}, order)
}

func TestQueue_CloseDrainsPendingWork(t *testing.T) {
	q := taskqueue.New(1)

	var done atomic.Int32
	for i := 0; i < 5; i++ {
		q.Add(func(ctx context.Context) (any, error) {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
			return nil, nil
		}, taskqueue.Options{})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, int32(5), done.Load())

	h := q.Add(func(ctx context.Context) (any, error) { return nil, nil }, taskqueue.Options{})
	_, err := wait(t, h)
	assert.ErrorIs(t, err, taskqueue.ErrClosed)
	assert.Equal(t, uint64(5), q.Stats().Enqueued)
}

func TestQueue_CloseDeadlineCancelsRunningTasks(t *testing.T) {
	q := taskqueue.New(1)

	h := q.Add(func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, taskqueue.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)

	_, err := wait(t, h)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandle_WaitHonoursContext(t *testing.T) {
	q := taskqueue.New(1)
	release := make(chan struct{})
	defer func() {
		close(release)
		q.Close(context.Background())
	}()

	h := q.Add(func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}, taskqueue.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
