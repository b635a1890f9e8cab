// Package sources binds each known crawler.Source to the traversal that
// collects it.
package sources

import (
	"context"
	"sort"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/traversal"
)

// Result summarizes a finished collection.
type Result struct {
	// Records is the number of records collected and persisted.
	Records int
	Pages   int
	Stop    traversal.StopReason
}

// Collector is the capability set every source provides.
type Collector interface {
	Source() crawler.Source
	// FetchEntry probes the entry point and returns how many items it lists
	// without persisting anything.
	FetchEntry(ctx context.Context) (int, error)
	// Collect runs a full traversal for jobID and persists what it gathers.
	// An empty jobID leaves stored rows untagged.
	Collect(ctx context.Context, jobID string) (Result, error)
}

// Registry dispatches sources to collectors.
type Registry struct {
	collectors map[crawler.Source]Collector
}

// NewRegistry indexes collectors by their source. Later entries replace
// earlier ones for the same source.
func NewRegistry(collectors ...Collector) *Registry {
	r := &Registry{collectors: make(map[crawler.Source]Collector, len(collectors))}
	for _, c := range collectors {
		r.collectors[c.Source()] = c
	}
	return r
}

// Lookup returns the collector for source.
func (r *Registry) Lookup(source crawler.Source) (Collector, bool) {
	c, ok := r.collectors[source]
	return c, ok
}

// Sources lists registered sources in a stable order.
func (r *Registry) Sources() []crawler.Source {
	out := make([]crawler.Source, 0, len(r.collectors))
	for s := range r.collectors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
