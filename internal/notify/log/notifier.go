// Package log reports job events through the structured logger.
package log

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

// Notifier writes one log line per event.
type Notifier struct {
	logger *zap.Logger
}

// New returns a Notifier writing to logger.
func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{logger: logger.Named("events")}
}

// Notify logs event at info, or warn for failed jobs.
func (n *Notifier) Notify(_ context.Context, event crawler.JobEvent) error {
	fields := []zap.Field{
		zap.String("job_id", event.JobID),
		zap.String("job_type", string(event.Source)),
		zap.String("status", string(event.Status)),
		zap.Int("results_count", event.ResultCount),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.Status == crawler.JobStatusFailed {
		n.logger.Warn("job finished", append(fields, zap.String("error_message", event.ErrorDetail))...)
		return nil
	}
	n.logger.Info("job finished", fields...)
	return nil
}
