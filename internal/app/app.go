// Package app builds the long-lived services shared by every command and acts
// as the dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/api"
	"github.com/JakeFAU/rpa-crawler/internal/clock/system"
	"github.com/JakeFAU/rpa-crawler/internal/config"
	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/dispatcher"
	"github.com/JakeFAU/rpa-crawler/internal/id/uuid"
	"github.com/JakeFAU/rpa-crawler/internal/logging"
	"github.com/JakeFAU/rpa-crawler/internal/queue"
	"github.com/JakeFAU/rpa-crawler/internal/sources"
	pgstore "github.com/JakeFAU/rpa-crawler/internal/storage/postgres"
	"github.com/JakeFAU/rpa-crawler/internal/telemetry"
	"github.com/JakeFAU/rpa-crawler/internal/worker"
)

// Version is stamped at build time.
var Version = "dev"

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	clock      crawler.Clock
	jobs       crawler.JobStore
	sink       crawler.ResultSink
	results    crawler.ResultReader
	pg         *pgstore.Store
	broker     queue.Broker
	dispatcher *dispatcher.Dispatcher
	registry   *sources.Registry
	notifier   crawler.Notifier

	pubsubClients map[string]*pubsub.Client
	// closers run in reverse registration order.
	closers []func(context.Context) error
}

// Option customizes Build.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	collectors []sources.Collector
	// custom is set once WithCollectors is applied, even with no collectors.
	custom bool
}

// WithLogger skips logger construction and uses logger instead.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCollectors replaces the configured source collectors.
func WithCollectors(collectors ...sources.Collector) Option {
	return func(o *options) {
		o.collectors = collectors
		o.custom = true
	}
}

// Build creates the application's dependencies. Nothing here dials a remote
// service except the Postgres pool and, when enabled, schema migration.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger, err = logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	app := &App{
		cfg:           cfg,
		logger:        logger,
		clock:         system.New(),
		pubsubClients: map[string]*pubsub.Client{},
	}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()
	logger.Info("building application dependencies",
		zap.String("version", Version),
		zap.String("database", cfg.Database.Backend),
		zap.String("queue", cfg.Queue.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.String("notify", cfg.Notify.Backend),
	)

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		ProjectID:   cfg.Telemetry.TraceProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.onClose(tp.Shutdown)

	if err = app.setupStores(ctx); err != nil {
		return nil, err
	}
	if err = app.setupBroker(ctx); err != nil {
		return nil, err
	}
	if err = app.setupNotifier(ctx); err != nil {
		return nil, err
	}
	if o.custom {
		app.registry = sources.NewRegistry(o.collectors...)
	} else if err = app.setupCollectors(ctx); err != nil {
		return nil, err
	}

	app.dispatcher = dispatcher.New(
		app.jobs,
		app.broker,
		uuid.New(),
		app.clock,
		dispatcher.Config{EnqueueTimeout: cfg.Queue.EnqueueTimeout},
		logger.Named("dispatcher"),
	)
	return app, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Dispatcher returns the job submission front end.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Registry returns the source collectors.
func (a *App) Registry() *sources.Registry {
	return a.registry
}

// Handler builds the HTTP API.
func (a *App) Handler() http.Handler {
	opts := api.Options{
		RequestTimeout: a.cfg.Server.WriteTimeout,
		Version:        Version,
	}
	if a.cfg.Auth.Enabled {
		opts.APIKey = a.cfg.Auth.APIKey
	}
	return api.NewServer(a.jobs, a.results, a.dispatcher, a.ready, opts, a.logger).Handler()
}

// Worker builds a queue consumer over the shared stores.
func (a *App) Worker() *worker.Worker {
	base, maxBackoff := a.cfg.RetryBackoff()
	return worker.New(
		a.broker,
		a.jobs,
		a.registry,
		a.notifier,
		a.clock,
		crawler.NewExponentialRetryPolicy(a.cfg.Worker.Retry.MaxAttempts, base, maxBackoff),
		worker.Config{Redelivery: worker.Redelivery(a.cfg.Worker.Redelivery)},
		a.logger.Named("worker"),
	)
}

func (a *App) ready(ctx context.Context) error {
	if a.pg == nil {
		return nil
	}
	return a.pg.Ping(ctx)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases every resource Build acquired.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown finished with errors", zap.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
