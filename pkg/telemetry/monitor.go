package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/taskqueue"
)

const (
	namespace = "ussdflow"

	// SampleInterval and SummaryInterval are the default cadences of the monitor jobs.
	SampleInterval  = 10 * time.Second
	SummaryInterval = time.Minute

	SamplePriority  = 1
	SummaryPriority = 2

	maxMemorySamples = 60
	maxTimings       = 1000
)

// Request kinds recorded by the transport.
const (
	RequestStart    = "start"
	RequestResponse = "response"
	RequestEnd      = "end"
)

// MemorySample is one runtime memory reading.
type MemorySample struct {
	Timestamp  time.Time `json:"timestamp"`
	HeapAlloc  uint64    `json:"heapAlloc"`
	HeapSys    uint64    `json:"heapSys"`
	Sys        uint64    `json:"sys"`
	Goroutines int       `json:"goroutines"`
}

// CallCounts counts outcomes.
type CallCounts struct {
	Total   uint64 `json:"total"`
	Success uint64 `json:"success"`
	Failure uint64 `json:"failure"`
}

func (c *CallCounts) record(success bool) {
	c.Total++
	if success {
		c.Success++
	} else {
		c.Failure++
	}
}

// SuccessRate is a percentage; 100 when nothing was recorded.
func (c CallCounts) SuccessRate() float64 {
	if c.Total == 0 {
		return 100
	}
	return float64(c.Success) / float64(c.Total) * 100
}

// Summary is a point-in-time view of the monitor.
type Summary struct {
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Requests  struct {
		CallCounts
		SuccessRate float64           `json:"successRate"`
		ByType      map[string]uint64 `json:"byType"`
	} `json:"requests"`
	ResponseTime TimingSummary `json:"responseTime"`
	APICalls     struct {
		CallCounts
		SuccessRate  float64               `json:"successRate"`
		ResponseTime TimingSummary         `json:"responseTime"`
		ByEndpoint   map[string]CallCounts `json:"byEndpoint"`
	} `json:"apiCalls"`
	Sessions struct {
		Created uint64 `json:"created"`
		Ended   uint64 `json:"ended"`
		Active  int64  `json:"active"`
	} `json:"sessions"`
	Errors struct {
		Total  uint64            `json:"total"`
		ByType map[string]uint64 `json:"byType"`
	} `json:"errors"`
	Memory    *MemorySample    `json:"memory,omitempty"`
	TaskQueue *taskqueue.Stats `json:"taskQueue,omitempty"`
}

// TimingSummary aggregates the most recent durations.
type TimingSummary struct {
	Average time.Duration `json:"average"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
}

// timings keeps a sliding window of durations plus all-time extremes.
type timings struct {
	values   []time.Duration
	next     int
	sum      time.Duration
	min, max time.Duration
}

func (w *timings) add(d time.Duration) {
	if d <= 0 {
		return
	}
	if len(w.values) < maxTimings {
		w.values = append(w.values, d)
	} else {
		w.sum -= w.values[w.next]
		w.values[w.next] = d
		w.next = (w.next + 1) % maxTimings
	}
	w.sum += d
	if w.min == 0 || d < w.min {
		w.min = d
	}
	if d > w.max {
		w.max = d
	}
}

func (w *timings) summary() TimingSummary {
	s := TimingSummary{Min: w.min, Max: w.max}
	if n := len(w.values); n > 0 {
		s.Average = w.sum / time.Duration(n)
	}
	return s
}

// Monitor aggregates performance counters. Safe for concurrent use.
type Monitor struct {
	mu            sync.Mutex
	started       time.Time
	requests      CallCounts
	requestTypes  map[string]uint64
	responseTimes timings
	apiCalls      CallCounts
	apiEndpoints  map[string]*CallCounts
	apiTimes      timings
	created       uint64
	ended         uint64
	active        int64
	errors        uint64
	errorTypes    map[string]uint64
	memory        []MemorySample

	queueStats func() taskqueue.Stats
	logger     *slog.Logger

	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	apiCallsTotal   *prometheus.CounterVec
	apiDuration     *prometheus.HistogramVec
	sessionsTotal   *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	errorsTotal     *prometheus.CounterVec
}

// MonitorOption configures the Monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger configures a logger for the Monitor.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithQueueStats includes task queue statistics in summaries.
func WithQueueStats(stats func() taskqueue.Stats) MonitorOption {
	return func(m *Monitor) {
		m.queueStats = stats
	}
}

// NewMonitor creates a monitor with its own Prometheus registry.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		started:      time.Now(),
		requestTypes: make(map[string]uint64),
		apiEndpoints: make(map[string]*CallCounts),
		errorTypes:   make(map[string]uint64),
		logger:       logging.NewNop(),
		registry:     prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Gateway requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Gateway request handling time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		apiCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "helper_calls_total",
			Help:      "Helper invocations by name and outcome.",
		}, []string{"endpoint", "outcome"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "helper_duration_seconds",
			Help:      "Helper invocation time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions created and ended.",
		}, []string{"event"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions created and not yet ended by the gateway.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Fault envelopes by kind.",
		}, []string{"kind"}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.apiCallsTotal,
		m.apiDuration,
		m.sessionsTotal,
		m.sessionsActive,
		m.errorsTotal,
	)
	return m
}

// Registry exposes the Prometheus registry, e.g. for extra collectors.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one gateway request.
func (m *Monitor) RecordRequest(kind string, success bool, d time.Duration) {
	m.mu.Lock()
	m.requests.record(success)
	m.requestTypes[kind]++
	m.responseTimes.add(d)
	m.mu.Unlock()

	m.requestsTotal.WithLabelValues(kind, outcome(success)).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordAPICall records one helper invocation.
func (m *Monitor) RecordAPICall(endpoint string, success bool, d time.Duration) {
	m.mu.Lock()
	m.apiCalls.record(success)
	c, ok := m.apiEndpoints[endpoint]
	if !ok {
		c = &CallCounts{}
		m.apiEndpoints[endpoint] = c
	}
	c.record(success)
	m.apiTimes.add(d)
	m.mu.Unlock()

	m.apiCallsTotal.WithLabelValues(endpoint, outcome(success)).Inc()
	m.apiDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordSessionCreated counts a new session.
func (m *Monitor) RecordSessionCreated() {
	m.mu.Lock()
	m.created++
	m.active++
	m.mu.Unlock()

	m.sessionsTotal.WithLabelValues("created").Inc()
	m.sessionsActive.Inc()
}

// RecordSessionEnded counts an ended session. Active never drops below zero.
func (m *Monitor) RecordSessionEnded() {
	m.mu.Lock()
	m.ended++
	dec := m.active > 0
	if dec {
		m.active--
	}
	m.mu.Unlock()

	m.sessionsTotal.WithLabelValues("ended").Inc()
	if dec {
		m.sessionsActive.Dec()
	}
}

// RecordError counts a fault by kind.
func (m *Monitor) RecordError(kind string) {
	m.mu.Lock()
	m.errors++
	m.errorTypes[kind]++
	m.mu.Unlock()

	m.errorsTotal.WithLabelValues(kind).Inc()
}

// SampleMemory records a runtime memory reading, keeping the most recent 60.
func (m *Monitor) SampleMemory() MemorySample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	sample := MemorySample{
		Timestamp:  time.Now(),
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		Sys:        ms.Sys,
		Goroutines: runtime.NumGoroutine(),
	}

	m.mu.Lock()
	m.memory = append(m.memory, sample)
	if len(m.memory) > maxMemorySamples {
		m.memory = m.memory[len(m.memory)-maxMemorySamples:]
	}
	m.mu.Unlock()
	return sample
}

// MemorySamples returns the retained memory readings, oldest first.
func (m *Monitor) MemorySamples() []MemorySample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MemorySample(nil), m.memory...)
}

// Summary returns a snapshot of every counter.
func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Summary
	s.Timestamp = time.Now()
	s.Uptime = time.Since(m.started).Round(time.Second).String()

	s.Requests.CallCounts = m.requests
	s.Requests.SuccessRate = m.requests.SuccessRate()
	s.Requests.ByType = make(map[string]uint64, len(m.requestTypes))
	for k, v := range m.requestTypes {
		s.Requests.ByType[k] = v
	}
	s.ResponseTime = m.responseTimes.summary()

	s.APICalls.CallCounts = m.apiCalls
	s.APICalls.SuccessRate = m.apiCalls.SuccessRate()
	s.APICalls.ResponseTime = m.apiTimes.summary()
	s.APICalls.ByEndpoint = make(map[string]CallCounts, len(m.apiEndpoints))
	for k, v := range m.apiEndpoints {
		s.APICalls.ByEndpoint[k] = *v
	}

	s.Sessions.Created = m.created
	s.Sessions.Ended = m.ended
	s.Sessions.Active = m.active

	s.Errors.Total = m.errors
	s.Errors.ByType = make(map[string]uint64, len(m.errorTypes))
	for k, v := range m.errorTypes {
		s.Errors.ByType[k] = v
	}

	if n := len(m.memory); n > 0 {
		last := m.memory[n-1]
		s.Memory = &last
	}
	if m.queueStats != nil {
		qs := m.queueStats()
		s.TaskQueue = &qs
	}
	return s
}

// SampleTask adapts SampleMemory to a task queue job.
func (m *Monitor) SampleTask() taskqueue.Func {
	return func(ctx context.Context) (any, error) {
		return m.SampleMemory(), nil
	}
}

// SummaryTask logs the summary as a task queue job.
func (m *Monitor) SummaryTask() taskqueue.Func {
	return func(ctx context.Context) (any, error) {
		s := m.Summary()
		m.logger.InfoContext(ctx, "Performance summary",
			"uptime", s.Uptime,
			"requests", s.Requests.Total,
			"request_success_rate", s.Requests.SuccessRate,
			"response_time_avg", s.ResponseTime.Average,
			"api_calls", s.APICalls.Total,
			"api_success_rate", s.APICalls.SuccessRate,
			"sessions_active", s.Sessions.Active,
			"errors", s.Errors.Total,
		)
		return s, nil
	}
}

// Hooks returns lifecycle callbacks that feed the monitor.
func (m *Monitor) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(context.Context, *domain.SessionEvent) { m.RecordSessionCreated() },
		OnSessionEnd:   func(context.Context, *domain.SessionEvent) { m.RecordSessionEnded() },
		OnError:        func(_ context.Context, e *domain.ErrorEvent) { m.RecordError(e.Kind) },
		OnAPICall: func(_ context.Context, e *domain.APICallEvent) {
			m.RecordAPICall(e.Endpoint, e.Success, e.Duration)
		},
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
