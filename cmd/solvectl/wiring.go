package main

import (
	"context"
	"fmt"
	"time"

	"github.com/solve3fi/contracts/internal/engine"
	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/platform/aws"
	"github.com/solve3fi/contracts/internal/platform/cache"
	"github.com/solve3fi/contracts/internal/platform/config"
	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/platform/resilience"
	"github.com/solve3fi/contracts/internal/scenario"
	"github.com/solve3fi/contracts/internal/state"
	"github.com/solve3fi/contracts/internal/store"
)

// app holds the infrastructure shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	meters  observability.MeterProvider
	metrics *observability.Metrics
	tracing *observability.TracerProvider

	store      store.Store
	cached     *store.CachedStore
	dispatcher *events.Dispatcher

	closers []func(context.Context) error
}

// setup builds observability, the record store and the event pipeline from
// cfg. Observability comes first so the rest can log.
func setup(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format),
	}

	if err := a.setupObservability(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := a.setupStore(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := a.setupEvents(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) setupObservability(ctx context.Context) error {
	obs := a.cfg.Observability

	a.meters = observability.NewNoopMeterProvider()
	if obs.Metrics.Enabled {
		mp, err := observability.NewMeterProvider(ctx, observability.MeterProviderConfig{
			ServiceName: obs.ServiceName,
			Version:     version,
			Exporter:    observability.MetricExporter(obs.Metrics.Exporter),
			Endpoint:    obs.Metrics.Endpoint,
			Insecure:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create meter provider: %w", err)
		}
		a.meters = mp
	}
	a.closers = append(a.closers, a.meters.Shutdown)
	a.metrics = observability.NewMetrics(a.meters.Meter(obs.ServiceName))

	tp, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
		ServiceName: obs.ServiceName,
		Version:     version,
		Endpoint:    obs.Tracing.Endpoint,
		Enabled:     obs.Tracing.Enabled,
		SampleRatio: obs.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	a.tracing = tp
	a.closers = append(a.closers, tp.Shutdown)

	a.logger.Info("observability setup complete",
		"metrics", obs.Metrics.Enabled,
		"tracing", obs.Tracing.Enabled,
	)
	return nil
}

func (a *app) setupStore(ctx context.Context) error {
	var backing store.Store
	switch a.cfg.Store.Backend {
	case "redis":
		rs, err := store.NewRedisStore(ctx, store.RedisConfig{
			Addr:      a.cfg.Redis.Address,
			Password:  a.cfg.Redis.Password,
			DB:        a.cfg.Redis.DB,
			KeyPrefix: a.cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		backing = rs
	case "postgres":
		ps, err := store.NewPostgresStore(ctx, a.cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		backing = ps
	default:
		backing = store.NewMemoryStore()
	}
	a.store = backing

	if a.cfg.Store.Cache.Enabled {
		a.cached = store.NewCachedStore(backing, a.cfg.Store.Cache.MaxSize, a.cfg.Store.Cache.TTL)
		a.store = a.cached
	}
	// Closing the cached store closes the backing store too.
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })

	a.logger.Info("record store ready",
		"backend", a.cfg.Store.Backend,
		"cache", a.cfg.Store.Cache.Enabled,
	)

	if a.cached != nil && a.cfg.Store.Cache.Warm {
		a.warm(ctx)
	}
	return nil
}

// warm preloads pools, tick arrays and positions into the record cache. A
// failed warmup only costs cache misses.
func (a *app) warm(ctx context.Context) {
	w := cache.NewWarmer(a.logger, cache.DefaultWarmupConfig())
	w.RegisterProvider(store.NewKindWarmer("pools", state.KindPool.Discriminator, a.cached))
	w.RegisterProvider(store.NewKindWarmer("tick_arrays", state.KindTickArray.Discriminator, a.cached))
	w.RegisterProvider(store.NewKindWarmer("positions", state.KindPosition.Discriminator, a.cached))

	if res := w.Warmup(ctx); res.HasErrors() {
		a.logger.LogWarn(ctx, "record cache warmup incomplete", "failed", res.Errors)
	}
}

func (a *app) setupEvents(ctx context.Context) error {
	ev := a.cfg.Events

	var next events.Publisher
	switch ev.Publisher {
	case "sns":
		client, err := aws.NewSNSClient(ctx, aws.Config{
			Region:   a.cfg.AWS.Region,
			Endpoint: a.cfg.AWS.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to create SNS client: %w", err)
		}
		pub, err := events.NewSNSPublisher(events.SNSPublisherConfig{
			Client:   client,
			TopicARN: a.cfg.AWS.SNSTopicARN,
			Logger:   a.logger,
			Metrics:  a.metrics,
			Tracer:   a.tracing.Tracer(),
		})
		if err != nil {
			return fmt.Errorf("failed to create SNS publisher: %w", err)
		}
		next = pub
	default:
		next = events.NewNoOpPublisher(a.logger, a.metrics)
	}

	d, err := events.NewDispatcher(ctx, events.DispatcherConfig{
		Publisher:     next,
		Workers:       ev.Workers,
		QueueSize:     ev.QueueSize,
		RatePerSecond: ev.RateLimit.PerSecond,
		Burst:         ev.RateLimit.Burst,
		Logger:        a.logger,
		Metrics:       a.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create event dispatcher: %w", err)
	}
	a.dispatcher = d
	// Registered last so queued events drain before the store closes.
	a.closers = append(a.closers, func(context.Context) error { d.Close(); return nil })

	a.logger.Info("event publisher ready", "publisher", ev.Publisher, "workers", ev.Workers)
	return nil
}

// conflictRetry applies the configured attempt count to the default
// conflict backoff.
func (a *app) conflictRetry() *resilience.RetryConfig {
	rc := resilience.ConflictRetryConfig()
	rc.MaxAttempts = a.cfg.Engine.RetryAttempts
	return &rc
}

// engine builds an engine on the shared infrastructure.
func (a *app) engine(clock engine.Clock) (*engine.Engine, error) {
	return engine.New(engine.Config{
		Store:         a.store,
		Clock:         clock,
		Publisher:     a.dispatcher,
		Logger:        a.logger,
		Metrics:       a.metrics,
		Tracer:        a.tracing.Tracer(),
		ConflictRetry: a.conflictRetry(),
	})
}

// runner returns a scenario runner on the shared infrastructure.
func (a *app) runner(concurrency int) *scenario.Runner {
	return &scenario.Runner{
		Store:         a.store,
		Registry:      a.cfg.Registry(),
		Publisher:     a.dispatcher,
		Logger:        a.logger,
		Metrics:       a.metrics,
		Tracer:        a.tracing.Tracer(),
		ConflictRetry: a.conflictRetry(),
		Concurrency:   concurrency,
	}
}

// close releases everything in reverse order of setup.
func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.LogError(ctx, "shutdown step failed", err)
		}
	}
	a.closers = nil
}
