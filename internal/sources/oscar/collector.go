package oscar

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/sources"
	"github.com/JakeFAU/rpa-crawler/internal/traversal"
)

// Config locates the film index.
type Config struct {
	URL          string
	IndexFailure traversal.IndexFailure
}

// Collector enumerates every listed year.
type Collector struct {
	cfg       Config
	sink      crawler.ResultSink
	traversal *traversal.Enumeration[crawler.OscarFilm]
}

var _ sources.Collector = (*Collector)(nil)

// New builds the oscar collector. pacer spaces out per-year requests and may
// be nil.
func New(
	cfg Config,
	fetcher traversal.Fetcher,
	pacer traversal.Pacer,
	sink crawler.ResultSink,
	archive *traversal.Archiver,
	logger *zap.Logger,
) *Collector {
	c := &Collector{cfg: cfg, sink: sink}
	c.traversal = traversal.NewEnumeration(
		traversal.EnumerationConfig{
			Source:       crawler.SourceOscar,
			IndexURL:     cfg.URL,
			IndexFailure: cfg.IndexFailure,
		},
		traversal.KeyedSource[crawler.OscarFilm]{
			UnitURL:    c.yearURL,
			ParseIndex: ParseIndex,
			ParseUnit:  ParseFilms,
			Persist:    c.Persist,
		},
		fetcher,
		pacer,
		archive,
		logger.Named("oscar"),
	)
	return c
}

// Source implements sources.Collector.
func (c *Collector) Source() crawler.Source {
	return crawler.SourceOscar
}

// FetchEntry returns the number of years listed on the index.
func (c *Collector) FetchEntry(ctx context.Context) (int, error) {
	years, err := c.traversal.Keys(ctx, "")
	if err != nil {
		return 0, crawler.NewError(crawler.KindSourceUnavailable, "oscar index", err)
	}
	return len(years), nil
}

// Collect implements sources.Collector.
func (c *Collector) Collect(ctx context.Context, jobID string) (sources.Result, error) {
	out, err := c.traversal.Run(ctx, jobID)
	if err != nil {
		return sources.Result{}, err
	}
	return sources.Result{Records: out.Count(), Pages: out.Pages, Stop: out.Stop}, nil
}

// Persist writes films through the result sink.
func (c *Collector) Persist(ctx context.Context, jobID string, films []crawler.OscarFilm) (int, error) {
	return c.sink.SaveFilms(ctx, jobID, films)
}

func (c *Collector) yearURL(year int) (string, error) {
	base, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse oscar url: %w", err)
	}
	q := url.Values{}
	q.Set("ajax", "true")
	q.Set("year", strconv.Itoa(year))
	return base.ResolveReference(&url.URL{RawQuery: q.Encode()}).String(), nil
}
