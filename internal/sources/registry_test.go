package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

type stubCollector struct {
	source crawler.Source
}

func (s stubCollector) Source() crawler.Source { return s.source }

func (s stubCollector) FetchEntry(context.Context) (int, error) { return 0, nil }

func (s stubCollector) Collect(context.Context, string) (Result, error) { return Result{}, nil }

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry(stubCollector{source: crawler.SourceOscar}, stubCollector{source: crawler.SourceHockey})

	c, ok := r.Lookup(crawler.SourceHockey)
	require.True(t, ok)
	require.Equal(t, crawler.SourceHockey, c.Source())

	_, ok = r.Lookup(crawler.Source("baseball"))
	require.False(t, ok)

	require.Equal(t, []crawler.Source{crawler.SourceHockey, crawler.SourceOscar}, r.Sources())
}
