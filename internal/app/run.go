package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/sources"
)

// Serve runs the HTTP API until ctx ends. withWorker also consumes the queue
// in the same process.
func (a *App) Serve(ctx context.Context, withWorker bool) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port)),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout + 5*time.Second,
	}

	var (
		wg        sync.WaitGroup
		workerErr error
	)
	if withWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Worker().Run(ctx); err != nil {
				workerErr = err
				a.logger.Error("embedded worker stopped", zap.Error(err))
				stop()
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port), zap.Bool("with_worker", withWorker))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()

	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return workerErr
}

// RunWorker consumes the queue until ctx ends.
func (a *App) RunWorker(ctx context.Context) error {
	a.logger.Info("worker started",
		zap.String("queue", a.cfg.Queue.Backend),
		zap.String("redelivery", a.cfg.Worker.Redelivery),
	)
	return a.Worker().Run(ctx)
}

// Migrate creates the relational schema.
func (a *App) Migrate(ctx context.Context) error {
	if a.pg == nil {
		a.logger.Info("no relational database configured, nothing to migrate")
		return nil
	}
	if err := a.pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.Info("database schema ensured")
	return nil
}

// Collect runs one source in process without a job. Stored rows carry no job tag.
func (a *App) Collect(ctx context.Context, source crawler.Source) (sources.Result, error) {
	collector, ok := a.registry.Lookup(source)
	if !ok {
		return sources.Result{}, fmt.Errorf("unknown source %q", source)
	}
	res, err := collector.Collect(ctx, "")
	if err != nil {
		return res, fmt.Errorf("collect %s: %w", source, err)
	}
	a.logger.Info("direct collection finished",
		zap.String("source", string(source)),
		zap.Int("records", res.Records),
		zap.Int("pages", res.Pages),
		zap.String("stop", string(res.Stop)),
	)
	return res, nil
}

// Probe reports how many records the entry point of source currently lists.
func (a *App) Probe(ctx context.Context, source crawler.Source) (int, error) {
	collector, ok := a.registry.Lookup(source)
	if !ok {
		return 0, fmt.Errorf("unknown source %q", source)
	}
	n, err := collector.FetchEntry(ctx)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", source, err)
	}
	return n, nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 20 * time.Second
}

// Enqueue creates and publishes one job per source.
func (a *App) Enqueue(ctx context.Context, srcs ...crawler.Source) ([]crawler.Job, error) {
	return a.dispatcher.Submit(ctx, srcs...)
}
