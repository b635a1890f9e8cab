package traversal

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/telemetry"
)

// Fetcher performs a single synchronous GET.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Pacer spaces out requests to the same host. Wait is called before a fetch
// and Done once it finished, whatever the outcome.
type Pacer interface {
	Wait(ctx context.Context, url string) error
	Done(url string)
}

// IndexFailure selects how an unreachable index is reported.
type IndexFailure string

// Index failure policies.
const (
	// IndexFailureEmpty reports an unreachable index as an empty result.
	IndexFailureEmpty IndexFailure = "empty"
	// IndexFailureFail reports an unreachable index as a source_unavailable error.
	IndexFailureFail IndexFailure = "fail"
)

// EnumerationConfig describes a keyed source fetched over plain HTTP.
type EnumerationConfig struct {
	Source       crawler.Source
	IndexURL     string
	IndexFailure IndexFailure
}

// KeyedSource supplies the source-specific parts of an enumeration.
type KeyedSource[T any] struct {
	// UnitURL returns the URL of the unit for key.
	UnitURL func(key int) (string, error)
	// ParseIndex extracts the keys listed on the index page.
	ParseIndex func(body []byte) ([]int, error)
	// ParseUnit decodes one unit. Records with a blank natural key must be
	// dropped here.
	ParseUnit func(key int, body []byte) ([]T, error)
	Persist   Flusher[T]
}

// Enumeration implements direct enumeration over a discrete key space.
type Enumeration[T any] struct {
	cfg     EnumerationConfig
	src     KeyedSource[T]
	fetcher Fetcher
	pacer   Pacer
	archive *Archiver
	logger  *zap.Logger
}

// NewEnumeration builds an enumeration traversal. pacer and archive may be nil.
func NewEnumeration[T any](
	cfg EnumerationConfig,
	src KeyedSource[T],
	fetcher Fetcher,
	pacer Pacer,
	archive *Archiver,
	logger *zap.Logger,
) *Enumeration[T] {
	if cfg.IndexFailure == "" {
		cfg.IndexFailure = IndexFailureEmpty
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumeration[T]{
		cfg:     cfg,
		src:     src,
		fetcher: fetcher,
		pacer:   pacer,
		archive: archive,
		logger:  logger,
	}
}

// Keys fetches the index and returns its keys in ascending order without
// duplicates.
func (e *Enumeration[T]) Keys(ctx context.Context, jobID string) ([]int, error) {
	body, err := e.fetcher.Fetch(ctx, e.cfg.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	e.archive.Save(ctx, e.cfg.Source, jobID, "index", "text/html; charset=utf-8", body)
	keys, err := e.src.ParseIndex(body)
	if err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return uniqueSorted(keys), nil
}

// Run fetches every key's unit for jobID and persists the accumulated records
// once at the end.
func (e *Enumeration[T]) Run(ctx context.Context, jobID string) (Outcome[T], error) {
	var out Outcome[T]
	logger := e.logger.With(zap.String("job_id", jobID), zap.String("source", string(e.cfg.Source)))

	keys, err := e.Keys(ctx, jobID)
	if err != nil {
		telemetry.ObservePage(string(e.cfg.Source), "unavailable")
		if e.cfg.IndexFailure == IndexFailureFail {
			return out, crawler.NewError(crawler.KindSourceUnavailable, "index", err)
		}
		logger.Error("index unavailable, returning empty result", zap.Error(err))
		out.Stop = StopIndexUnavailable
		return out, nil
	}
	logger.Info("index keys discovered", zap.Ints("keys", keys))

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return out, crawler.NewError(crawler.KindTraversal, fmt.Sprintf("key %d", key), err)
		}
		records, err := e.unit(ctx, jobID, key)
		if err != nil {
			telemetry.ObservePage(string(e.cfg.Source), "error")
			logger.Warn("unit fetch failed, skipping key", zap.Int("key", key), zap.Error(err))
			continue
		}
		out.Pages++
		telemetry.ObservePage(string(e.cfg.Source), "ok")
		out.Records = append(out.Records, records...)
	}
	out.Stop = StopExhausted

	if len(out.Records) > 0 {
		n, err := e.src.Persist(ctx, jobID, out.Records)
		if err != nil {
			return out, crawler.NewError(crawler.KindTransient, "persist records", err)
		}
		if n != len(out.Records) {
			return out, crawler.NewError(crawler.KindTraversal, "persist records",
				fmt.Errorf("persisted %d of %d records", n, len(out.Records)))
		}
		telemetry.ObserveRecords(string(e.cfg.Source), n)
	}
	logger.Info("enumeration traversal finished",
		zap.Int("keys", len(keys)),
		zap.Int("units", out.Pages),
		zap.Int("records", len(out.Records)),
	)
	return out, nil
}

func (e *Enumeration[T]) unit(ctx context.Context, jobID string, key int) ([]T, error) {
	u, err := e.src.UnitURL(key)
	if err != nil {
		return nil, fmt.Errorf("unit url: %w", err)
	}
	if e.pacer != nil {
		if err := e.pacer.Wait(ctx, u); err != nil {
			return nil, fmt.Errorf("pace: %w", err)
		}
		defer e.pacer.Done(u)
	}
	body, err := e.fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch unit: %w", err)
	}
	e.archive.Save(ctx, e.cfg.Source, jobID, fmt.Sprintf("unit-%d", key), "application/json", body)
	records, err := e.src.ParseUnit(key, body)
	if err != nil {
		return nil, fmt.Errorf("parse unit: %w", err)
	}
	return records, nil
}

func uniqueSorted(keys []int) []int {
	seen := make(map[int]struct{}, len(keys))
	out := make([]int, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
