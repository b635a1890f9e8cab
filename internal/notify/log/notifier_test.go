package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

func TestNotifyLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	n := New(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), crawler.JobEvent{
		JobID: "job-1", Source: crawler.SourceHockey, Status: crawler.JobStatusCompleted, ResultCount: 3,
	}))
	require.NoError(t, n.Notify(context.Background(), crawler.JobEvent{
		JobID: "job-2", Source: crawler.SourceOscar, Status: crawler.JobStatusFailed, ErrorDetail: "source_unavailable: index",
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, int64(3), entries[0].ContextMap()["results_count"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "source_unavailable: index", entries[1].ContextMap()["error_message"])
}
