package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/taskqueue"
)

const (
	// DefaultBatchSize triggers an early flush.
	DefaultBatchSize = 100
	// DefaultFlushInterval is the periodic flush cadence.
	DefaultFlushInterval = time.Minute
	// FlushPriority is the task priority of flush jobs.
	FlushPriority = 3
	// DefaultRetainedBatches bounds how many batches a failing sink can leave buffered.
	DefaultRetainedBatches = 10

	flushTaskName = "flush_analytics_events"
)

// Event is one analytics record.
type Event struct {
	Type      domain.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	SessionID string           `json:"sessionId,omitempty"`
	Data      map[string]any   `json:"data,omitempty"`
}

// Sink receives flushed batches. A failing Send puts the batch back for the next flush.
type Sink interface {
	Send(ctx context.Context, events []Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, events []Event) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, events []Event) error { return f(ctx, events) }

// LogSink writes a per-type summary of each batch to a logger.
type LogSink struct {
	Logger *slog.Logger
}

// Send implements Sink.
func (s LogSink) Send(ctx context.Context, events []Event) error {
	summary := make(map[domain.EventType]int)
	for _, e := range events {
		summary[e.Type]++
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger.InfoContext(ctx, "Analytics events flushed", "count", len(events), "summary", summary)
	return nil
}

// Tracker buffers analytics events. Safe for concurrent use.
type Tracker struct {
	mu           sync.Mutex
	batch        []Event
	flushPending bool

	dropped   int
	sink      Sink
	queue     taskqueue.Enqueuer
	batchSize int
	maxBuffer int
	logger    *slog.Logger
	now       func() time.Time
}

// TrackerOption configures the Tracker.
type TrackerOption func(*Tracker)

// WithSink sets where batches go. Defaults to a LogSink.
func WithSink(sink Sink) TrackerOption {
	return func(t *Tracker) {
		t.sink = sink
	}
}

// WithBatchSize sets the early flush threshold.
func WithBatchSize(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.batchSize = n
		}
	}
}

// WithMaxBuffered caps the events kept after failed flushes. The oldest are dropped first.
// Defaults to DefaultRetainedBatches times the batch size.
func WithMaxBuffered(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.maxBuffer = n
		}
	}
}

// WithTrackerLogger configures a logger for the Tracker.
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithTrackerClock overrides time.Now, for tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker that schedules early flushes on q.
func NewTracker(q taskqueue.Enqueuer, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		queue:     q,
		batchSize: DefaultBatchSize,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.sink == nil {
		t.sink = LogSink{Logger: t.logger}
	}
	if t.maxBuffer == 0 {
		t.maxBuffer = t.batchSize * DefaultRetainedBatches
	}
	return t
}

// Track buffers e. Reaching the batch size schedules a flush.
func (t *Tracker) Track(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}

	t.mu.Lock()
	t.batch = append(t.batch, e)
	schedule := len(t.batch) >= t.batchSize && !t.flushPending
	if schedule {
		t.flushPending = true
	}
	t.mu.Unlock()

	t.logger.Debug("Analytics event tracked", "type", e.Type, "session_id", e.SessionID)

	if schedule {
		t.queue.Add(t.flushTask, taskqueue.Options{Name: flushTaskName, Priority: FlushPriority})
	}
}

func (t *Tracker) flushTask(ctx context.Context) (any, error) {
	t.mu.Lock()
	t.flushPending = false
	t.mu.Unlock()
	return nil, t.Flush(ctx)
}

// FlushTask adapts Flush to a task queue job, for periodic scheduling.
func (t *Tracker) FlushTask() taskqueue.Func {
	return func(ctx context.Context) (any, error) {
		return nil, t.Flush(ctx)
	}
}

// Flush sends the buffered events. On failure they are put back ahead of newer events,
// keeping at most the configured maximum.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	events := t.batch
	t.batch = nil
	t.mu.Unlock()

	if len(events) == 0 {
		return nil
	}
	t.logger.Info("Flushing analytics events", "count", len(events))

	if err := t.sink.Send(ctx, events); err != nil {
		t.mu.Lock()
		t.batch = append(events, t.batch...)
		drop := len(t.batch) - t.maxBuffer
		if drop > 0 {
			t.batch = append([]Event(nil), t.batch[drop:]...)
			t.dropped += drop
		}
		t.mu.Unlock()
		t.logger.Error("Failed to flush analytics events", "count", len(events), "err", err)
		if drop > 0 {
			t.logger.Warn("Dropped oldest analytics events", "dropped", drop, "max_buffered", t.maxBuffer)
		}
		return fmt.Errorf("flush analytics events: %w", err)
	}
	return nil
}

// Pending returns the number of buffered events.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.batch)
}

// Dropped returns how many events were discarded because the buffer was full.
func (t *Tracker) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Hooks returns lifecycle callbacks that feed the tracker.
func (t *Tracker) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(_ context.Context, e *domain.SessionEvent) {
			t.Track(Event{Type: domain.EventSessionStart, Timestamp: e.Timestamp, SessionID: e.SessionID, Data: map[string]any{
				"msisdn":    e.MSISDN,
				"shortCode": e.ShortCode,
				"flow":      e.Flow,
			}})
		},
		OnSessionEnd: func(_ context.Context, e *domain.SessionEvent) {
			t.Track(Event{Type: domain.EventSessionEnd, Timestamp: e.Timestamp, SessionID: e.SessionID, Data: map[string]any{
				"flow":       e.Flow,
				"durationMs": e.Duration.Milliseconds(),
			}})
		},
		OnScreenView: func(_ context.Context, e *domain.ScreenEvent) {
			t.Track(Event{Type: domain.EventScreenView, Timestamp: e.Timestamp, SessionID: e.SessionID, Data: map[string]any{
				"flow":     e.Flow,
				"screenId": e.ScreenID,
			}})
		},
		OnUserInput: func(_ context.Context, e *domain.InputEvent) {
			t.Track(Event{Type: domain.EventUserInput, Timestamp: e.Timestamp, SessionID: e.SessionID, Data: map[string]any{
				"flow":     e.Flow,
				"screenId": e.ScreenID,
				"input":    e.Input,
			}})
		},
		OnError: func(_ context.Context, e *domain.ErrorEvent) {
			t.Track(Event{Type: domain.EventError, Timestamp: e.Timestamp, SessionID: e.SessionID, Data: map[string]any{
				"errorType":    e.Kind,
				"errorMessage": e.Message,
			}})
		},
		OnAPICall: func(_ context.Context, e *domain.APICallEvent) {
			t.Track(Event{Type: domain.EventAPICall, Timestamp: e.Timestamp, SessionID: e.SessionID, Data: map[string]any{
				"endpoint":   e.Endpoint,
				"success":    e.Success,
				"durationMs": e.Duration.Milliseconds(),
			}})
		},
	}
}
