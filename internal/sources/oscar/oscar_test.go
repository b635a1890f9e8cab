package oscar

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/traversal"
)

const (
	indexURL = "https://example.test/pages/ajax-javascript/"
	indexDoc = `<html><body>
<a href="#" class="year-link" id="2015">2015</a>
<a href="#" class="year-link" id="2012">2012</a>
<a href="#" class="other" id="1999">1999</a>
</body></html>`
)

func TestParseIndex(t *testing.T) {
	t.Parallel()

	years, err := ParseIndex([]byte(indexDoc))
	require.NoError(t, err)
	require.Equal(t, []int{2015, 2012}, years)
}

func TestParseFilmsDropsBlankTitles(t *testing.T) {
	t.Parallel()

	body := `[
		{"title": "  Argo ", "year": 2012, "nominations": 7, "awards": 3, "best_picture": true},
		{"title": "   ", "year": 2012, "nominations": 1, "awards": 0},
		{"title": "Lincoln", "nominations": 12, "awards": 2}
	]`
	films, err := ParseFilms(2012, []byte(body))
	require.NoError(t, err)
	require.Equal(t, []crawler.OscarFilm{
		{Title: "Argo", Year: 2012, Nominations: 7, Awards: 3, BestPicture: true},
		{Title: "Lincoln", Year: 2012, Nominations: 12, Awards: 2},
	}, films)
}

func TestParseFilmsMalformed(t *testing.T) {
	t.Parallel()

	_, err := ParseFilms(2012, []byte(`{"not":"a list"}`))
	require.Error(t, err)
}

func TestCollectorEndToEnd(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{bodies: map[string]string{
		indexURL: `<a class="year-link" id="2012">2012</a>`,
		indexURL + "?ajax=true&year=2012": `[
			{"title": "Argo ", "year": 2012, "nominations": 7, "awards": 3, "best_picture": true},
			{"title": "", "year": 2012, "nominations": 0, "awards": 0, "best_picture": false}
		]`,
	}}
	sink := &fakeSink{}
	c := New(Config{URL: indexURL}, fetcher, nil, sink, nil, zap.NewNop())

	res, err := c.Collect(context.Background(), "job-o")
	require.NoError(t, err)
	require.Equal(t, 1, res.Records)
	require.Equal(t, []crawler.OscarFilm{
		{Title: "Argo", Year: 2012, Nominations: 7, Awards: 3, BestPicture: true},
	}, sink.films)
	require.Equal(t, "job-o", sink.jobID)
	require.Equal(t, crawler.SourceOscar, c.Source())

	n, err := c.FetchEntry(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCollectorIndexFailurePolicy(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("connection refused")}

	empty := New(Config{URL: indexURL}, fetcher, nil, &fakeSink{}, nil, zap.NewNop())
	res, err := empty.Collect(context.Background(), "job-o")
	require.NoError(t, err)
	require.Zero(t, res.Records)
	require.Equal(t, traversal.StopIndexUnavailable, res.Stop)

	failing := New(Config{URL: indexURL, IndexFailure: traversal.IndexFailureFail}, fetcher, nil, &fakeSink{}, nil, zap.NewNop())
	_, err = failing.Collect(context.Background(), "job-o")
	require.Error(t, err)
	require.Equal(t, crawler.KindSourceUnavailable, crawler.KindOf(err))

	_, err = failing.FetchEntry(context.Background())
	require.Error(t, err)
}

// --- fakes ---

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.New("unexpected url " + url)
	}
	return []byte(body), nil
}

type fakeSink struct {
	jobID string
	films []crawler.OscarFilm
}

func (f *fakeSink) SaveTeamSeasons(context.Context, string, []crawler.TeamSeason) (int, error) {
	return 0, errors.New("unexpected")
}

func (f *fakeSink) SaveFilms(_ context.Context, jobID string, films []crawler.OscarFilm) (int, error) {
	f.jobID = jobID
	f.films = append(f.films, films...)
	return len(films), nil
}
