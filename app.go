package ussdflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/ussdflow/internal/config"
	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/internal/runtime"
	"github.com/aretw0/ussdflow/internal/schedule"
	"github.com/aretw0/ussdflow/internal/simulator"
	ussdhttp "github.com/aretw0/ussdflow/pkg/adapters/http"
	"github.com/aretw0/ussdflow/pkg/adapters/memory"
	"github.com/aretw0/ussdflow/pkg/adapters/process"
	"github.com/aretw0/ussdflow/pkg/adapters/redis"
	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/flow"
	"github.com/aretw0/ussdflow/pkg/gateway"
	"github.com/aretw0/ussdflow/pkg/helpers"
	"github.com/aretw0/ussdflow/pkg/helpers/builtin"
	"github.com/aretw0/ussdflow/pkg/middleware"
	storemw "github.com/aretw0/ussdflow/pkg/persistence/middleware"
	"github.com/aretw0/ussdflow/pkg/ports"
	"github.com/aretw0/ussdflow/pkg/session"
	"github.com/aretw0/ussdflow/pkg/taskqueue"
	"github.com/aretw0/ussdflow/pkg/telemetry"
)

// Version is the build version reported by the status endpoints.
var Version = "dev"

const (
	// ShutdownTimeout bounds the graceful shutdown started by Run.
	ShutdownTimeout = 15 * time.Second
	// LockPrefix namespaces session locks in Redis.
	LockPrefix = "ussd:"
)

// App is a fully wired USSD service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	sink   telemetry.Sink

	kv       ports.KVStore
	mem      *memory.Store
	redis    *redis.Store
	flows    *flow.Registry
	helpers  *helpers.Registry
	sessions *session.Store
	executor *runtime.Executor
	pipeline *middleware.Pipeline
	gateway  *gateway.Service
	server   *ussdhttp.Server

	queue   *taskqueue.Queue
	tracker *telemetry.Tracker
	monitor *telemetry.Monitor
	tickers *schedule.Group

	started      time.Time
	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures the App.
type Option func(*App)

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithKVStore injects the session backing engine instead of building one from the config.
func WithKVStore(kv ports.KVStore) Option {
	return func(a *App) {
		a.kv = kv
	}
}

// WithSink sends analytics batches to sink instead of the log.
func WithSink(sink telemetry.Sink) Option {
	return func(a *App) {
		a.sink = sink
	}
}

// New validates cfg and builds every long-lived component once.
// Flows are loaded from cfg.FlowsPath and helper manifests discovered under cfg.HelpersPath.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		logger:  logging.NewNop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		a.logger.Warn("Configuration warning", "warning", w)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := a.setupStore(ctx); err != nil {
		return nil, err
	}

	a.queue = taskqueue.New(cfg.MaxConcurrentTasks, taskqueue.WithLogger(a.logger))
	a.monitor = telemetry.NewMonitor(
		telemetry.WithMonitorLogger(a.logger),
		telemetry.WithQueueStats(a.queue.Stats),
	)
	if a.sink == nil {
		a.sink = telemetry.LogSink{Logger: a.logger}
	}
	a.tracker = telemetry.NewTracker(a.queue,
		telemetry.WithSink(a.sink),
		telemetry.WithTrackerLogger(a.logger),
	)
	hooks := a.tracker.Hooks().Merge(a.monitor.Hooks())

	sessionOpts := []session.Option{
		session.WithTTL(cfg.SessionTimeout),
		session.WithHooks(hooks),
		session.WithLogger(a.logger),
	}
	if cfg.SerializeSessions {
		sessionOpts = append(sessionOpts, session.WithLocker(a.locker()))
	}
	a.sessions = session.NewStore(a.kv, sessionOpts...)

	if err := a.setupHelpers(ctx); err != nil {
		return nil, err
	}
	if err := a.setupFlows(ctx); err != nil {
		return nil, err
	}

	a.executor = runtime.NewExecutor(a.flows, a.helpers, a.sessions,
		runtime.WithLogger(a.logger),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithMaxMenuLength(cfg.MaxMenuLength),
	)
	a.pipeline = middleware.New(middleware.WithLogger(a.logger))
	a.gateway = gateway.NewService(a.executor, a.sessions, cfg.ActiveFlow,
		gateway.WithLogger(a.logger),
		gateway.WithPipeline(a.pipeline),
	)
	a.server = ussdhttp.NewServer(a.gateway,
		ussdhttp.WithLogger(a.logger),
		ussdhttp.WithMonitor(a.monitor),
		ussdhttp.WithDetailedStatus(a.detailedStatus),
		ussdhttp.WithHealthCheck(a.sessions.Ping),
		ussdhttp.WithVersion(Version),
	)

	a.tickers = schedule.NewGroup(
		schedule.NewTicker("flush_analytics_events", telemetry.DefaultFlushInterval, a.queue, a.tracker.FlushTask(),
			schedule.WithPriority(telemetry.FlushPriority), schedule.WithLogger(a.logger)),
		schedule.NewTicker("sample_memory", telemetry.SampleInterval, a.queue, a.monitor.SampleTask(),
			schedule.WithPriority(telemetry.SamplePriority), schedule.WithLogger(a.logger)),
		schedule.NewTicker("log_performance_summary", telemetry.SummaryInterval, a.queue, a.monitor.SummaryTask(),
			schedule.WithPriority(telemetry.SummaryPriority), schedule.WithLogger(a.logger)),
	)

	a.logger.Info("USSD service initialized",
		"flows", a.flows.Len(),
		"helpers", a.helpers.Len(),
		"active_flow", cfg.ActiveFlow,
		"memory_store", a.mem != nil,
	)
	return a, nil
}

func (a *App) setupStore(ctx context.Context) error {
	if a.kv == nil {
		if a.cfg.Redis.UseMemoryStore {
			a.mem = memory.NewStore()
			a.kv = a.mem
			a.logger.Info("Using in-memory session store")
		} else {
			a.redis = redis.New(redis.Config{
				Host:     a.cfg.Redis.Host,
				Port:     a.cfg.Redis.Port,
				Password: a.cfg.Redis.Password,
				DB:       a.cfg.Redis.DB,
			})
			if err := a.redis.Ping(ctx); err != nil {
				a.logger.Warn("Redis is not reachable yet", "addr", a.cfg.Redis.Addr(), "err", err)
			}
			a.kv = a.redis
			a.logger.Info("Using redis session store", "addr", a.cfg.Redis.Addr())
		}
	}

	if a.cfg.EncryptionKey == "" {
		return nil
	}
	key, err := storemw.ParseKey(a.cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("session encryption: %w", err)
	}
	mw, err := storemw.NewEncryptionMiddleware(storemw.EncryptionConfig{ActiveKey: key})
	if err != nil {
		return fmt.Errorf("session encryption: %w", err)
	}
	a.kv = storemw.Chain(a.kv, mw)
	return nil
}

func (a *App) locker() ports.DistributedLocker {
	if a.redis != nil {
		return redis.NewLocker(a.redis.Client(), LockPrefix)
	}
	return session.NewKeyedLocker()
}

func (a *App) setupHelpers(ctx context.Context) error {
	a.helpers = helpers.NewRegistry(helpers.WithLogger(a.logger))
	if err := builtin.Register(a.helpers); err != nil {
		return fmt.Errorf("register builtin helpers: %w", err)
	}

	runner := process.NewRunner(
		process.WithBaseDir(a.cfg.HelpersPath),
		process.WithLogger(a.logger),
	)
	n, err := a.helpers.Discover(ctx, a.cfg.HelpersPath, runner)
	if err != nil {
		return fmt.Errorf("discover helpers: %w", err)
	}
	a.logger.Info("Helpers loaded", "discovered", n, "total", a.helpers.Len())
	return nil
}

func (a *App) setupFlows(ctx context.Context) error {
	a.flows = flow.NewRegistry(
		flow.WithLogger(a.logger),
		flow.WithCapabilities(a.helpers),
	)
	return a.ReloadFlows(ctx)
}

// ReloadFlows re-reads the flow documents. The registered set is only replaced when
// every document is valid.
func (a *App) ReloadFlows(ctx context.Context) error {
	warnings, err := a.flows.LoadAll(ctx, a.cfg.FlowsPath)
	for _, w := range warnings {
		a.logger.Warn("Flow warning", "warning", w.String())
	}
	if err != nil {
		return fmt.Errorf("load flows: %w", err)
	}
	if _, err := a.flows.Get(a.cfg.ActiveFlow); err != nil {
		a.logger.Warn("Active flow is not loaded", "flow", a.cfg.ActiveFlow)
	}
	return nil
}

// Handler returns the HTTP handler serving the gateway callbacks and status endpoints.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Pipeline exposes the middleware pipeline so hosts can register stages.
func (a *App) Pipeline() *middleware.Pipeline {
	return a.pipeline
}

// Helpers exposes the helper registry so hosts can register capabilities.
func (a *App) Helpers() *helpers.Registry {
	return a.helpers
}

// Flows exposes the flow registry.
func (a *App) Flows() *flow.Registry {
	return a.flows
}

// Sessions exposes the session store.
func (a *App) Sessions() *session.Store {
	return a.sessions
}

// Monitor exposes the performance monitor.
func (a *App) Monitor() *telemetry.Monitor {
	return a.monitor
}

// Tracker exposes the analytics tracker.
func (a *App) Tracker() *telemetry.Tracker {
	return a.tracker
}

// Process runs one request against a flow, bypassing the gateway middleware.
func (a *App) Process(ctx context.Context, flowName, sessionID string, req domain.Request) domain.Envelope {
	return a.executor.ProcessRequest(ctx, flowName, sessionID, req)
}

// Simulator returns a simulator for flowName, or for the active flow when empty.
func (a *App) Simulator(flowName string, opts ...simulator.Option) *simulator.Simulator {
	if flowName == "" {
		flowName = a.cfg.ActiveFlow
	}
	opts = append([]simulator.Option{simulator.WithLogger(a.logger)}, opts...)
	return simulator.New(a.executor, a.sessions, flowName, opts...)
}

// Start launches the background work: periodic telemetry jobs and the in-memory
// store's expiry loop.
func (a *App) Start(ctx context.Context) {
	if a.mem != nil {
		a.mem.Start()
	}
	a.tickers.Start(ctx)
}

// Run serves HTTP on the configured port until ctx is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	a.Start(gctx)

	g.Go(func() error {
		a.logger.Info("USSD server listening", "addr", srv.Addr, "active_flow", a.cfg.ActiveFlow)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), a.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// Shutdown stops the schedulers, waits for in-flight middleware, flushes analytics,
// drains the task queue and closes the backing store. Later calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		var errs []error

		a.tickers.Stop()
		a.gateway.Wait()
		if err := a.tracker.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain task queue: %w", err))
		}
		if a.mem != nil {
			a.mem.Stop()
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}

		a.shutdownErr = errors.Join(errs...)
		a.logger.Info("Shutdown complete", "err", a.shutdownErr)
	})
	return a.shutdownErr
}

// DetailedStatus is the body of GET /status/detailed.
type DetailedStatus struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Uptime      string            `json:"uptime"`
	ActiveFlow  string            `json:"activeFlow"`
	Flows       []string          `json:"flows"`
	Helpers     int               `json:"helpers"`
	Store       string            `json:"store"`
	Performance telemetry.Summary `json:"performance"`
}

func (a *App) detailedStatus(ctx context.Context) (any, error) {
	st := DetailedStatus{
		Status:      "ok",
		Version:     Version,
		Uptime:      time.Since(a.started).Round(time.Second).String(),
		ActiveFlow:  a.cfg.ActiveFlow,
		Flows:       a.flows.Names(),
		Helpers:     a.helpers.Len(),
		Store:       "ok",
		Performance: a.monitor.Summary(),
	}
	if err := a.sessions.Ping(ctx); err != nil {
		st.Status = "degraded"
		st.Store = err.Error()
	}
	return st, nil
}
