// Package worker consumes queued jobs and drives each through its lifecycle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/queue"
	"github.com/JakeFAU/rpa-crawler/internal/sources"
	"github.com/JakeFAU/rpa-crawler/internal/telemetry"
)

// Redelivery selects what happens when a delivery names a job that already
// reached a terminal state.
type Redelivery string

// Redelivery policies.
const (
	RedeliverySkip  Redelivery = "skip"
	RedeliveryRerun Redelivery = "rerun"
)

// Config controls Worker behavior.
type Config struct {
	Redelivery Redelivery
}

// Collectors resolves a source to its collector.
type Collectors interface {
	Lookup(source crawler.Source) (sources.Collector, bool)
}

// RetryPolicy paces consumer reconnects.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Worker consumes deliveries and executes the collection pipeline.
type Worker struct {
	broker     queue.Broker
	jobStore   crawler.JobStore
	collectors Collectors
	notifier   crawler.Notifier
	clock      crawler.Clock
	retry      RetryPolicy
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. notifier may be nil.
func New(
	broker queue.Broker,
	jobStore crawler.JobStore,
	collectors Collectors,
	notifier crawler.Notifier,
	clock crawler.Clock,
	retry RetryPolicy,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.Redelivery == "" {
		cfg.Redelivery = RedeliverySkip
	}
	if retry == nil {
		retry = crawler.NewExponentialRetryPolicy(0, time.Second, 30*time.Second)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		broker:     broker,
		jobStore:   jobStore,
		collectors: collectors,
		notifier:   notifier,
		clock:      clock,
		retry:      retry,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run consumes until ctx ends, reopening the consumer with backoff whenever
// the broker connection drops.
func (w *Worker) Run(ctx context.Context) error {
	attempt := 0
	for {
		handled := false
		err := w.broker.Consume(ctx, func(ctx context.Context, msg queue.Message) {
			handled = true
			w.Handle(ctx, msg)
		})
		if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
			w.logger.Info("worker stopped")
			return nil
		}
		if err == nil {
			err = errors.New("consumer returned without error")
		}
		if handled {
			attempt = 0
		}
		if !w.retry.ShouldRetry(err, attempt) {
			return fmt.Errorf("consume: %w", err)
		}
		delay := w.retry.Backoff(attempt)
		attempt++
		w.logger.Warn("consumer lost, reconnecting",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// Handle processes one delivery and settles it.
func (w *Worker) Handle(ctx context.Context, delivery queue.Message) {
	msg := &trackedMessage{Message: delivery}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("delivery handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			if !msg.settled {
				w.nack(msg, w.logger)
			}
		}
	}()

	d, err := queue.Decode(msg.Body())
	if err != nil {
		w.logger.Error("dropping malformed delivery", zap.ByteString("body", msg.Body()), zap.Error(err))
		telemetry.ObserveJob("unknown", "malformed")
		w.ack(msg, w.logger)
		return
	}
	logger := w.logger.With(zap.String("job_id", d.JobID), zap.String("job_type", d.JobType))

	ctx, span := telemetry.Tracer().Start(ctx, "worker.handle", trace.WithAttributes(
		attribute.String("job.id", d.JobID),
		attribute.String("job.type", d.JobType),
	))
	defer span.End()

	job, err := w.jobStore.GetJob(ctx, d.JobID)
	if errors.Is(err, crawler.ErrJobNotFound) {
		logger.Warn("delivery references unknown job, dropping")
		w.ack(msg, logger)
		return
	}
	if err != nil {
		logger.Error("load job failed", zap.Error(err))
		span.RecordError(err)
		w.nack(msg, logger)
		return
	}

	// The stored job is authoritative; job_type only has to agree with it.
	if !sameSource(d.JobType, job.Source) {
		w.rejectMismatch(ctx, msg, job, d.JobType, logger)
		return
	}

	collector, known := w.collectors.Lookup(job.Source)
	if job.Status.Terminal() {
		w.redeliver(ctx, msg, job, collector, logger)
		return
	}
	if !known {
		w.fail(ctx, msg, job, fmt.Sprintf("unknown source %q", job.Source), logger)
		return
	}
	w.execute(ctx, msg, job, collector, logger)
}

func sameSource(jobType string, source crawler.Source) bool {
	return crawler.Source(strings.ToLower(strings.TrimSpace(jobType))) == source
}

func (w *Worker) execute(
	ctx context.Context,
	msg queue.Message,
	job crawler.Job,
	collector sources.Collector,
	logger *zap.Logger,
) {
	span := trace.SpanFromContext(ctx)
	started := w.clock.Now()
	job.Status = crawler.JobStatusRunning
	job.StartedAt = crawler.PointerTime(started)
	job.ErrorDetail = nil
	if err := w.jobStore.UpdateJob(ctx, job); err != nil {
		logger.Error("mark job running failed", zap.Error(err))
		w.nack(msg, logger)
		return
	}
	logger.Info("job started")

	res, runErr := w.collect(ctx, collector, job.ID)

	if runErr != nil && ctx.Err() != nil {
		logger.Warn("job interrupted by shutdown, requeueing", zap.Error(runErr))
		w.nack(msg, logger)
		return
	}

	finished := w.clock.Now()
	job.CompletedAt = crawler.PointerTime(finished)
	if runErr != nil {
		job.Status = crawler.JobStatusFailed
		job.ErrorDetail = crawler.PointerString(crawler.RenderError(runErr))
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(crawler.KindOf(runErr)))
	} else {
		job.Status = crawler.JobStatusCompleted
		job.ResultCount = res.Records
	}

	if err := w.jobStore.UpdateJob(ctx, job); err != nil {
		logger.Error("record job outcome failed", zap.Error(err))
		w.nack(msg, logger)
		return
	}
	w.ack(msg, logger)

	telemetry.ObserveJob(string(job.Source), string(job.Status))
	telemetry.ObserveJobDuration(string(job.Source), string(job.Status), finished.Sub(started))
	if runErr != nil {
		logger.Error("job failed",
			zap.String("kind", string(crawler.KindOf(runErr))),
			zap.Error(runErr),
		)
	} else {
		logger.Info("job completed",
			zap.Int("results", res.Records),
			zap.Int("pages", res.Pages),
			zap.String("stop", string(res.Stop)),
		)
	}
	w.notify(ctx, job, logger)
}

func (w *Worker) collect(ctx context.Context, collector sources.Collector, jobID string) (sources.Result, error) {
	telemetry.IncActiveJobs()
	defer telemetry.DecActiveJobs()
	return collector.Collect(ctx, jobID)
}

// rejectMismatch settles a delivery whose job_type disagrees with the stored
// job. Terminal jobs are left alone; anything else fails without running.
func (w *Worker) rejectMismatch(ctx context.Context, msg queue.Message, job crawler.Job, jobType string, logger *zap.Logger) {
	logger = logger.With(zap.String("job_source", string(job.Source)))
	if job.Status.Terminal() {
		logger.Warn("delivery source does not match finished job, dropping")
		w.ack(msg, logger)
		return
	}
	detail := fmt.Sprintf("delivery job_type %q does not match job source %q", jobType, job.Source)
	w.fail(ctx, msg, job, detail, logger)
}

// fail moves a job straight to failed without running a traversal.
func (w *Worker) fail(ctx context.Context, msg queue.Message, job crawler.Job, detail string, logger *zap.Logger) {
	job.Status = crawler.JobStatusFailed
	job.CompletedAt = crawler.PointerTime(w.clock.Now())
	job.ErrorDetail = crawler.PointerString(detail)
	if err := w.jobStore.UpdateJob(ctx, job); err != nil {
		logger.Error("record rejected job failed", zap.Error(err))
		w.nack(msg, logger)
		return
	}
	logger.Warn("job rejected", zap.String("error_detail", detail))
	telemetry.ObserveJob(string(job.Source), string(crawler.JobStatusFailed))
	w.ack(msg, logger)
	w.notify(ctx, job, logger)
}

// redeliver applies the redelivery policy to a job that is already terminal.
// Terminal statuses are never changed here.
func (w *Worker) redeliver(
	ctx context.Context,
	msg queue.Message,
	job crawler.Job,
	collector sources.Collector,
	logger *zap.Logger,
) {
	logger = logger.With(zap.String("status", string(job.Status)), zap.String("policy", string(w.cfg.Redelivery)))
	if w.cfg.Redelivery != RedeliveryRerun || collector == nil {
		logger.Info("redelivery of finished job, skipping")
		w.ack(msg, logger)
		return
	}

	res, err := collector.Collect(ctx, job.ID)
	if err != nil {
		logger.Warn("rerun of finished job failed, leaving job unchanged", zap.Error(err))
		w.ack(msg, logger)
		return
	}
	job.ResultCount += res.Records
	job.CompletedAt = crawler.PointerTime(w.clock.Now())
	if err := w.jobStore.UpdateJob(ctx, job); err != nil {
		// Requeueing would rerun the traversal again.
		logger.Error("record rerun results failed", zap.Error(err))
	} else {
		logger.Info("rerun of finished job completed", zap.Int("results", res.Records))
	}
	w.ack(msg, logger)
}

func (w *Worker) notify(ctx context.Context, job crawler.Job, logger *zap.Logger) {
	if w.notifier == nil {
		return
	}
	event := crawler.JobEvent{
		JobID:       job.ID,
		Source:      job.Source,
		Status:      job.Status,
		ResultCount: job.ResultCount,
		OccurredAt:  w.clock.Now(),
	}
	if job.ErrorDetail != nil {
		event.ErrorDetail = *job.ErrorDetail
	}
	if err := w.notifier.Notify(ctx, event); err != nil {
		logger.Warn("job event publish failed", zap.Error(err))
	}
}

// trackedMessage remembers whether the delivery was already settled so a
// late panic never nacks an acked delivery tag.
type trackedMessage struct {
	queue.Message
	settled bool
}

func (m *trackedMessage) Ack() error {
	m.settled = true
	return m.Message.Ack()
}

func (m *trackedMessage) Nack(requeue bool) error {
	m.settled = true
	return m.Message.Nack(requeue)
}

func (w *Worker) ack(msg queue.Message, logger *zap.Logger) {
	if err := msg.Ack(); err != nil {
		logger.Error("ack failed", zap.Error(err))
	}
}

func (w *Worker) nack(msg queue.Message, logger *zap.Logger) {
	if err := msg.Nack(true); err != nil {
		logger.Error("nack failed", zap.Error(err))
	}
}
