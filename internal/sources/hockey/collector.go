package hockey

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/sources"
	"github.com/JakeFAU/rpa-crawler/internal/traversal"
)

// Config locates the team table and its pagination.
type Config struct {
	EntryURL           string
	TableID            string
	PaginationSelector string
	PageParam          string
	WaitTimeout        time.Duration
	SavePerPage        bool
}

// Collector walks every page of the team table.
type Collector struct {
	sink      crawler.ResultSink
	traversal *traversal.Paginated[crawler.TeamSeason]
}

var _ sources.Collector = (*Collector)(nil)

// New builds the hockey collector.
func New(
	cfg Config,
	opener traversal.Opener,
	sink crawler.ResultSink,
	archive *traversal.Archiver,
	logger *zap.Logger,
) *Collector {
	c := &Collector{sink: sink}
	c.traversal = traversal.NewPaginated(
		traversal.PaginatedConfig{
			Source:             crawler.SourceHockey,
			EntryURL:           cfg.EntryURL,
			ContainerID:        cfg.TableID,
			PaginationSelector: cfg.PaginationSelector,
			PageParam:          cfg.PageParam,
			WaitTimeout:        cfg.WaitTimeout,
			SavePerPage:        cfg.SavePerPage,
		},
		opener,
		ParsePage,
		c.Persist,
		archive,
		logger.Named("hockey"),
	)
	return c
}

// Source implements sources.Collector.
func (c *Collector) Source() crawler.Source {
	return crawler.SourceHockey
}

// FetchEntry returns the number of rows on the first page.
func (c *Collector) FetchEntry(ctx context.Context) (int, error) {
	rows, err := c.traversal.FetchEntry(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Collect implements sources.Collector.
func (c *Collector) Collect(ctx context.Context, jobID string) (sources.Result, error) {
	out, err := c.traversal.Run(ctx, jobID)
	if err != nil {
		return sources.Result{}, err
	}
	return sources.Result{Records: out.Count(), Pages: out.Pages, Stop: out.Stop}, nil
}

// Persist writes rows through the result sink.
func (c *Collector) Persist(ctx context.Context, jobID string, rows []crawler.TeamSeason) (int, error) {
	return c.sink.SaveTeamSeasons(ctx, jobID, rows)
}
