package traversal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/telemetry"
)

// PaginatedConfig describes a paginated listing rendered in a browser.
type PaginatedConfig struct {
	Source             crawler.Source
	EntryURL           string
	ContainerID        string
	PaginationSelector string
	PageParam          string
	WaitTimeout        time.Duration
	// SavePerPage flushes every page as soon as it is parsed instead of once
	// at the end.
	SavePerPage bool
}

// PageParser turns the primary content container of one page into records.
// Rows that go stale while being read are skipped by the parser; a stale
// container is reported as ErrStaleElement.
type PageParser[T any] func(ctx context.Context, container Element) ([]T, error)

// Paginated implements sequential paginated traversal over a browser session.
type Paginated[T any] struct {
	cfg     PaginatedConfig
	opener  Opener
	parse   PageParser[T]
	flush   Flusher[T]
	archive *Archiver
	logger  *zap.Logger
}

// NewPaginated builds a paginated traversal. archive may be nil.
func NewPaginated[T any](
	cfg PaginatedConfig,
	opener Opener,
	parse PageParser[T],
	flush Flusher[T],
	archive *Archiver,
	logger *zap.Logger,
) *Paginated[T] {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 12 * time.Second
	}
	if cfg.PaginationSelector == "" {
		cfg.PaginationSelector = ".pagination"
	}
	if cfg.PageParam == "" {
		cfg.PageParam = "page_num"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginated[T]{
		cfg:     cfg,
		opener:  opener,
		parse:   parse,
		flush:   flush,
		archive: archive,
		logger:  logger,
	}
}

// Run visits the entry page and every discovered page for jobID.
func (p *Paginated[T]) Run(ctx context.Context, jobID string) (Outcome[T], error) {
	var out Outcome[T]
	logger := p.logger.With(zap.String("job_id", jobID), zap.String("source", string(p.cfg.Source)))
	err := WithSession(ctx, p.opener, logger, func(s Session) error {
		return p.traverse(ctx, s, jobID, &out, logger)
	})
	if err != nil {
		return out, err
	}
	if !p.cfg.SavePerPage && len(out.Records) > 0 {
		if err := p.persist(ctx, jobID, out.Records); err != nil {
			return out, err
		}
	}
	logger.Info("paginated traversal finished",
		zap.Int("pages", out.Pages),
		zap.Int("records", len(out.Records)),
		zap.String("stop", string(out.Stop)),
	)
	return out, nil
}

// FetchEntry navigates to the entry page and returns the records of page 1
// without following pagination or persisting anything.
func (p *Paginated[T]) FetchEntry(ctx context.Context) ([]T, error) {
	var records []T
	err := WithSession(ctx, p.opener, p.logger, func(s Session) error {
		container, err := p.openEntry(ctx, s)
		if err != nil {
			return err
		}
		records, err = p.parse(ctx, container)
		if err != nil {
			return crawler.NewError(crawler.KindTraversal, "parse entry page", err)
		}
		return nil
	})
	return records, err
}

func (p *Paginated[T]) openEntry(ctx context.Context, s Session) (Element, error) {
	if err := s.Navigate(ctx, p.cfg.EntryURL); err != nil {
		return nil, crawler.NewError(crawler.KindSourceUnavailable, "navigate entry page", err)
	}
	container, err := s.AwaitElement(ctx, p.cfg.ContainerID, p.cfg.WaitTimeout)
	if err != nil {
		op := fmt.Sprintf("await #%s on entry page", p.cfg.ContainerID)
		if errors.Is(err, ErrElementTimeout) {
			return nil, crawler.NewError(crawler.KindSourceUnavailable, op, err)
		}
		return nil, crawler.NewError(crawler.KindTraversal, op, err)
	}
	return container, nil
}

func (p *Paginated[T]) traverse(ctx context.Context, s Session, jobID string, out *Outcome[T], logger *zap.Logger) error {
	container, err := p.openEntry(ctx, s)
	if err != nil {
		telemetry.ObservePage(string(p.cfg.Source), "unavailable")
		return err
	}
	entryURL := p.cfg.EntryURL
	if current, err := s.CurrentURL(ctx); err == nil && current != "" {
		entryURL = current
	}
	entryPage := pageOf(entryURL, p.cfg.PageParam)
	p.snapshot(ctx, s, jobID, entryPage)

	records, err := p.parse(ctx, container)
	if err != nil {
		return crawler.NewError(crawler.KindTraversal, "parse entry page", err)
	}
	out.Pages = 1
	if len(records) == 0 {
		telemetry.ObservePage(string(p.cfg.Source), "empty")
		logger.Warn("entry page yielded no records")
		out.Stop = StopEmptyPage
		return nil
	}
	telemetry.ObservePage(string(p.cfg.Source), "ok")
	if err := p.collect(ctx, jobID, entryPage, records, out); err != nil {
		return err
	}

	refs, err := p.discover(ctx, s, entryURL)
	if err != nil {
		return err
	}
	visited := map[int]struct{}{entryPage: {}}
	for _, ref := range refs {
		if _, seen := visited[ref.Num]; seen {
			continue
		}
		visited[ref.Num] = struct{}{}
		stop, err := p.visit(ctx, s, jobID, ref, out, logger)
		if err != nil {
			return err
		}
		if stop != "" {
			out.Stop = stop
			return nil
		}
	}
	out.Stop = StopExhausted
	return nil
}

// visit handles one discovered page. A non-empty StopReason ends traversal
// while keeping everything gathered so far.
func (p *Paginated[T]) visit(
	ctx context.Context,
	s Session,
	jobID string,
	ref PageRef,
	out *Outcome[T],
	logger *zap.Logger,
) (StopReason, error) {
	pageLog := logger.With(zap.Int("page", ref.Num))
	if err := ctx.Err(); err != nil {
		return "", crawler.NewError(crawler.KindTraversal, fmt.Sprintf("page %d", ref.Num), err)
	}
	if err := s.Navigate(ctx, ref.URL); err != nil {
		return "", crawler.NewError(crawler.KindTraversal, fmt.Sprintf("navigate page %d", ref.Num), err)
	}
	container, err := s.AwaitElement(ctx, p.cfg.ContainerID, p.cfg.WaitTimeout)
	if errors.Is(err, ErrElementTimeout) {
		telemetry.ObservePage(string(p.cfg.Source), "timeout")
		pageLog.Warn("page container did not appear, keeping earlier pages", zap.Error(err))
		return StopTimeout, nil
	}
	if err != nil {
		return "", crawler.NewError(crawler.KindTraversal, fmt.Sprintf("await page %d", ref.Num), err)
	}
	p.snapshot(ctx, s, jobID, ref.Num)

	records, err := p.parse(ctx, container)
	if errors.Is(err, ErrStaleElement) {
		telemetry.ObservePage(string(p.cfg.Source), "stale")
		pageLog.Warn("page container went stale, keeping earlier pages", zap.Error(err))
		return StopStale, nil
	}
	if err != nil {
		return "", crawler.NewError(crawler.KindTraversal, fmt.Sprintf("parse page %d", ref.Num), err)
	}
	out.Pages++
	if len(records) == 0 {
		telemetry.ObservePage(string(p.cfg.Source), "empty")
		pageLog.Info("page yielded no records, stopping")
		return StopEmptyPage, nil
	}
	telemetry.ObservePage(string(p.cfg.Source), "ok")
	return "", p.collect(ctx, jobID, ref.Num, records, out)
}

func (p *Paginated[T]) collect(ctx context.Context, jobID string, page int, records []T, out *Outcome[T]) error {
	if p.cfg.SavePerPage {
		if err := p.persist(ctx, jobID, records); err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
	}
	out.Records = append(out.Records, records...)
	return nil
}

func (p *Paginated[T]) persist(ctx context.Context, jobID string, records []T) error {
	n, err := p.flush(ctx, jobID, records)
	if err != nil {
		return crawler.NewError(crawler.KindTransient, "persist records", err)
	}
	if n != len(records) {
		return crawler.NewError(crawler.KindTraversal, "persist records",
			fmt.Errorf("persisted %d of %d records", n, len(records)))
	}
	telemetry.ObserveRecords(string(p.cfg.Source), n)
	return nil
}

// discover reads every pagination link on the current page and returns the
// referenced pages in ascending numeric order.
func (p *Paginated[T]) discover(ctx context.Context, s Session, base string) ([]PageRef, error) {
	links, err := s.FindAll(ctx, p.cfg.PaginationSelector+" a")
	if err != nil {
		return nil, crawler.NewError(crawler.KindTraversal, "find pagination links", err)
	}
	hrefs := make([]string, 0, len(links))
	for _, link := range links {
		href, ok, err := link.Attribute(ctx, "href")
		if errors.Is(err, ErrStaleElement) {
			continue
		}
		if err != nil {
			return nil, crawler.NewError(crawler.KindTraversal, "read pagination link", err)
		}
		if ok {
			hrefs = append(hrefs, href)
		}
	}
	nums := PageNumbers(hrefs, p.cfg.PageParam)
	refs := make([]PageRef, 0, len(nums))
	for _, n := range nums {
		u, err := PageURL(base, p.cfg.PageParam, n)
		if err != nil {
			return nil, crawler.NewError(crawler.KindTraversal, "build page url", err)
		}
		refs = append(refs, PageRef{Num: n, URL: u})
	}
	return refs, nil
}

func (p *Paginated[T]) snapshot(ctx context.Context, s Session, jobID string, page int) {
	if p.archive == nil {
		return
	}
	html, err := s.HTML(ctx)
	if err != nil {
		p.logger.Debug("page snapshot unavailable", zap.Int("page", page), zap.Error(err))
		return
	}
	p.archive.Save(ctx, p.cfg.Source, jobID, fmt.Sprintf("page-%d", page), "text/html; charset=utf-8", []byte(html))
}
