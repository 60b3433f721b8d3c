package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/workq"
	"github.com/xraph/workq/backoff"
	"github.com/xraph/workq/client"
	"github.com/xraph/workq/codec"
	"github.com/xraph/workq/dlq"
	"github.com/xraph/workq/ext"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
	mw "github.com/xraph/workq/middleware"
	"github.com/xraph/workq/observability"
	"github.com/xraph/workq/queue"
	"github.com/xraph/workq/worker"
)

const instrumentationName = mw.InstrumentationName

// Engine is a fully wired worker process.
type Engine struct {
	cfg        workq.Config
	store      job.Store
	registry   *job.Registry
	extensions *ext.Registry
	client     *client.Client
	dlqService *dlq.Service
	pool       *worker.Pool
	logger     *slog.Logger

	bo         backoff.Strategy
	codec      codec.Codec
	mws        []mw.Middleware
	pending    []ext.Extension
	jobTimeout time.Duration
	queues     *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the operational configuration.
func WithConfig(cfg workq.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = logger }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pending = append(eng.pending, e) }
}

// WithMiddleware adds middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry delay strategy.
// If not set, backoff.DefaultStrategy() (no delay) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithCodec sets the payload codec used by EnqueueValue.
func WithCodec(c codec.Codec) Option {
	return func(eng *Engine) { eng.codec = c }
}

// WithJobTimeout sets the handler deadline for jobs enqueued without their
// own timeout. Zero, the default, means no deadline.
func WithJobTimeout(d time.Duration) Option {
	return func(eng *Engine) { eng.jobTimeout = d }
}

// WithQueues sets per-job-type concurrency and rate limits.
func WithQueues(configs ...queue.Config) Option {
	return func(eng *Engine) { eng.queues = queue.NewManager(configs...) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. Both the metrics
// middleware and the observability extension use it.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New builds an Engine over store. The registry must be fully populated
// before Start.
func New(store job.Store, registry *job.Registry, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, workq.ErrNoStore
	}
	if registry == nil {
		registry = job.NewRegistry()
	}

	eng := &Engine{
		cfg:      workq.DefaultConfig(),
		store:    store,
		registry: registry,
		logger:   slog.Default(),
		codec:    codec.Default,
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}
	if eng.cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("workq/engine: worker count must be positive, got %d", eng.cfg.WorkerCount)
	}

	logger := eng.logger
	eng.extensions = ext.NewRegistry(logger)

	var (
		tracer    = otel.Tracer(instrumentationName)
		metricsMw mw.Middleware
		obsExt    *observability.MetricsExtension
	)
	if eng.tracerProvider != nil {
		tracer = eng.tracerProvider.Tracer(instrumentationName)
	}
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		metricsMw = mw.Metrics()
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)
	for _, e := range eng.pending {
		eng.extensions.Register(e)
	}

	// Default middleware stack: tracing → metrics → logging → recover →
	// queue limits → timeout. Observers sit outside Recover so a panic
	// reaches them as an ErrPanic failure. Waiting for a queue slot does
	// not count against the job timeout.
	allMws := []mw.Middleware{
		mw.TracingWithTracer(tracer),
		metricsMw,
		mw.Logging(logger),
		mw.Recover(logger),
	}
	if eng.queues != nil {
		allMws = append(allMws, queue.Middleware(eng.queues))
	}
	allMws = append(allMws, mw.Timeout(logger, eng.jobTimeout))
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.extensions, store, eng.bo, logger, allMws...)
	executor.SetTracer(tracer)
	eng.pool = worker.NewPool(store, executor, eng.extensions, logger, worker.WithConfig(eng.cfg))

	eng.client = client.New(store,
		client.WithCodec(eng.codec),
		client.WithExtensions(eng.extensions),
		client.WithDefaultMaxRetries(eng.cfg.DefaultMaxRetries),
		client.WithLogger(logger),
	)
	eng.dlqService = dlq.NewService(store,
		dlq.WithExtensions(eng.extensions),
		dlq.WithLogger(logger),
	)

	return eng, nil
}

// Enqueue submits a job with a pre-serialized payload.
func (eng *Engine) Enqueue(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (id.JobID, error) {
	return eng.client.Enqueue(ctx, jobType, payload, opts...)
}

// EnqueueValue serializes v with the engine's codec and enqueues it.
func EnqueueValue[T any](ctx context.Context, eng *Engine, jobType string, v T, opts ...job.Option) (id.JobID, error) {
	return client.EnqueueValue(ctx, eng.client, jobType, v, opts...)
}

// Start launches the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	eng.logger.Info("workq engine starting",
		slog.Int("workers", eng.cfg.WorkerCount),
		slog.Any("job_types", eng.registry.Types()),
	)
	return eng.pool.Start(ctx)
}

// Stop stops claiming and waits for running jobs until ctx expires.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.pool.Stop(ctx)
}

// Stats counts jobs in every state.
type Stats struct {
	Pending    int64 `json:"pending"`
	InFlight   int64 `json:"in_flight"`
	Completed  int64 `json:"completed"`
	DeadLetter int64 `json:"dead_letter"`
}

// Stats returns the number of jobs in each state.
func (eng *Engine) Stats(ctx context.Context) (Stats, error) {
	return CollectStats(ctx, eng.store)
}

// CollectStats counts the jobs of every state in store.
func CollectStats(ctx context.Context, store job.Store) (Stats, error) {
	var s Stats
	targets := []struct {
		state job.State
		dst   *int64
	}{
		{job.StatePending, &s.Pending},
		{job.StateInFlight, &s.InFlight},
		{job.StateCompleted, &s.Completed},
		{job.StateDeadLetter, &s.DeadLetter},
	}
	for _, t := range targets {
		n, err := store.Count(ctx, t.state)
		if err != nil {
			return Stats{}, fmt.Errorf("workq/engine: count %s: %w", t.state, err)
		}
		*t.dst = n
	}
	return s, nil
}

// Config returns the engine's operational configuration.
func (eng *Engine) Config() workq.Config { return eng.cfg }

// Store returns the job store.
func (eng *Engine) Store() job.Store { return eng.store }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Client returns the producer client.
func (eng *Engine) Client() *client.Client { return eng.client }

// DLQ returns the dead-letter service.
func (eng *Engine) DLQ() *dlq.Service { return eng.dlqService }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Queues returns the per-job-type limiter, or nil when none is configured.
func (eng *Engine) Queues() *queue.Manager { return eng.queues }

// Logger returns the engine's logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }
