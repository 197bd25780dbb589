package telemetry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/taskqueue"
	"github.com/aretw0/ussdflow/pkg/telemetry"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]telemetry.Event
	fail    error
}

func (s *captureSink) Send(ctx context.Context, events []telemetry.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.batches = append(s.batches, append([]telemetry.Event(nil), events...))
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

type spyQueue struct {
	inner *taskqueue.Queue
	mu    sync.Mutex
	opts  []taskqueue.Options
}

func (q *spyQueue) Add(fn taskqueue.Func, opts taskqueue.Options) *taskqueue.Handle {
	q.mu.Lock()
	q.opts = append(q.opts, opts)
	q.mu.Unlock()
	return q.inner.Add(fn, opts)
}

func TestTracker_FlushesWhenBatchIsFull(t *testing.T) {
	q := taskqueue.New(1)
	defer q.Close(context.Background())
	spy := &spyQueue{inner: q}
	sink := &captureSink{}

	tr := telemetry.NewTracker(spy, telemetry.WithSink(sink), telemetry.WithBatchSize(3))
	for i := 0; i < 3; i++ {
		tr.Track(telemetry.Event{Type: domain.EventScreenView, SessionID: "s1"})
	}

	require.Eventually(t, func() bool { return sink.count() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, tr.Pending())

	spy.mu.Lock()
	defer spy.mu.Unlock()
	require.Len(t, spy.opts, 1)
	assert.Equal(t, telemetry.FlushPriority, spy.opts[0].Priority)
}

func TestTracker_FailedFlushRequeuesEvents(t *testing.T) {
	q := taskqueue.New(1)
	defer q.Close(context.Background())
	sink := &captureSink{fail: errors.New("analytics down")}

	tr := telemetry.NewTracker(q, telemetry.WithSink(sink))
	tr.Track(telemetry.Event{Type: domain.EventUserInput, SessionID: "a"})
	tr.Track(telemetry.Event{Type: domain.EventUserInput, SessionID: "b"})

	err := tr.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, tr.Pending())

	tr.Track(telemetry.Event{Type: domain.EventUserInput, SessionID: "c"})
	sink.mu.Lock()
	sink.fail = nil
	sink.mu.Unlock()

	require.NoError(t, tr.Flush(context.Background()))
	require.Len(t, sink.batches, 1)
	ids := []string{}
	for _, e := range sink.batches[0] {
		ids = append(ids, e.SessionID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

// idleQueue accepts flush jobs without running them.
type idleQueue struct{}

func (idleQueue) Add(taskqueue.Func, taskqueue.Options) *taskqueue.Handle { return nil }

func TestTracker_FailingSinkKeepsNewestEvents(t *testing.T) {
	sink := &captureSink{fail: errors.New("analytics down")}
	tr := telemetry.NewTracker(idleQueue{},
		telemetry.WithSink(sink),
		telemetry.WithBatchSize(2),
		telemetry.WithMaxBuffered(3),
	)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		tr.Track(telemetry.Event{Type: domain.EventUserInput, SessionID: id})
	}

	require.Error(t, tr.Flush(context.Background()))
	assert.Equal(t, 3, tr.Pending())
	assert.Equal(t, 2, tr.Dropped())

	require.Error(t, tr.Flush(context.Background()))
	assert.Equal(t, 3, tr.Pending())
	assert.Equal(t, 2, tr.Dropped())

	sink.mu.Lock()
	sink.fail = nil
	sink.mu.Unlock()

	require.NoError(t, tr.Flush(context.Background()))
	require.Len(t, sink.batches, 1)
	ids := []string{}
	for _, e := range sink.batches[0] {
		ids = append(ids, e.SessionID)
	}
	assert.Equal(t, []string{"c", "d", "e"}, ids)
}

func TestTracker_FlushEmptyIsNoop(t *testing.T) {
	sink := &captureSink{}
	tr := telemetry.NewTracker(taskqueue.New(1), telemetry.WithSink(sink))
	require.NoError(t, tr.Flush(context.Background()))
	assert.Empty(t, sink.batches)
}

func TestTracker_HooksTranslateEvents(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := &captureSink{}
	tr := telemetry.NewTracker(taskqueue.New(1), telemetry.WithSink(sink), telemetry.WithTrackerClock(func() time.Time { return now }))
	h := tr.Hooks()
	ctx := context.Background()

	h.OnSessionStart(ctx, &domain.SessionEvent{EventBase: domain.EventBase{SessionID: "s"}, MSISDN: "254700000000"})
	h.OnScreenView(ctx, &domain.ScreenEvent{EventBase: domain.EventBase{SessionID: "s"}, ScreenID: "welcome"})
	h.OnUserInput(ctx, &domain.InputEvent{EventBase: domain.EventBase{SessionID: "s"}, Input: "1"})
	h.OnAPICall(ctx, &domain.APICallEvent{EventBase: domain.EventBase{SessionID: "s"}, Endpoint: "balance", Success: true})
	h.OnError(ctx, &domain.ErrorEvent{EventBase: domain.EventBase{SessionID: "s"}, Kind: "flow_not_found"})
	h.OnSessionEnd(ctx, &domain.SessionEvent{EventBase: domain.EventBase{SessionID: "s"}, Duration: 3 * time.Second})

	require.NoError(t, tr.Flush(ctx))
	require.Len(t, sink.batches, 1)
	got := sink.batches[0]
	require.Len(t, got, 6)

	types := make([]domain.EventType, 0, len(got))
	for _, e := range got {
		types = append(types, e.Type)
		assert.Equal(t, now, e.Timestamp)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventSessionStart,
		domain.EventScreenView,
		domain.EventUserInput,
		domain.EventAPICall,
		domain.EventError,
		domain.EventSessionEnd,
	}, types)
	assert.Equal(t, "254700000000", got[0].Data["msisdn"])
	assert.Equal(t, int64(3000), got[5].Data["durationMs"])
}
