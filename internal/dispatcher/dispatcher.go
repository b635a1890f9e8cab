// Package dispatcher turns collection requests into pending jobs on the work
// queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/queue"
	"github.com/JakeFAU/rpa-crawler/internal/telemetry"
)

// Config controls submission behavior.
type Config struct {
	// EnqueueTimeout bounds the broker round trip of one submission.
	EnqueueTimeout time.Duration
}

// Dispatcher creates jobs and publishes their deliveries.
type Dispatcher struct {
	jobs   crawler.JobStore
	broker queue.Broker
	ids    crawler.IDGenerator
	clock  crawler.Clock
	cfg    Config
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(
	jobs crawler.JobStore,
	broker queue.Broker,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		jobs:   jobs,
		broker: broker,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Submit creates one pending job per source and enqueues them together. When
// the broker fails the jobs stay pending and the error is returned along with
// every created job. When the store fails partway, the jobs created before the
// failure are still enqueued and returned with the store error.
func (d *Dispatcher) Submit(ctx context.Context, sources ...crawler.Source) ([]crawler.Job, error) {
	if len(sources) == 0 {
		return nil, errors.New("no sources to submit")
	}
	jobs := make([]crawler.Job, 0, len(sources))
	deliveries := make([]queue.Delivery, 0, len(sources))
	var createErr error
	for _, src := range sources {
		job, err := d.create(ctx, src)
		if err != nil {
			createErr = err
			break
		}
		jobs = append(jobs, job)
		deliveries = append(deliveries, queue.Delivery{JobID: job.ID, JobType: string(job.Source)})
	}
	if len(deliveries) == 0 {
		return jobs, createErr
	}
	if createErr != nil {
		d.logger.Warn("job creation failed, enqueueing jobs already created",
			zap.Int("created", len(jobs)),
			zap.Int("requested", len(sources)),
			zap.Error(createErr),
		)
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, d.cfg.EnqueueTimeout)
	defer cancel()
	n, err := d.broker.EnqueueBatch(enqueueCtx, deliveries)
	telemetry.ObserveEnqueue("ok", n)
	if err != nil {
		telemetry.ObserveEnqueue("error", len(deliveries)-n)
		d.logger.Error("enqueue failed, jobs left pending",
			zap.Int("published", n),
			zap.Int("requested", len(deliveries)),
			zap.Error(err),
		)
		return jobs, errors.Join(createErr, fmt.Errorf("enqueue jobs: %w", err))
	}
	for _, job := range jobs {
		d.logger.Info("job submitted", zap.String("job_id", job.ID), zap.String("job_type", string(job.Source)))
	}
	return jobs, createErr
}

// Enqueue publishes the delivery for an existing job.
func (d *Dispatcher) Enqueue(ctx context.Context, jobID string, source crawler.Source) error {
	enqueueCtx, cancel := context.WithTimeout(ctx, d.cfg.EnqueueTimeout)
	defer cancel()
	if err := d.broker.Enqueue(enqueueCtx, queue.Delivery{JobID: jobID, JobType: string(source)}); err != nil {
		telemetry.ObserveEnqueue("error", 1)
		return fmt.Errorf("queue enqueue: %w", err)
	}
	telemetry.ObserveEnqueue("ok", 1)
	return nil
}

func (d *Dispatcher) create(ctx context.Context, src crawler.Source) (crawler.Job, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return crawler.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := crawler.Job{
		ID:        id,
		Source:    src,
		Status:    crawler.JobStatusPending,
		CreatedAt: d.clock.Now(),
	}
	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return crawler.Job{}, crawler.NewError(crawler.KindTransient, "create job", err)
	}
	return job, nil
}
