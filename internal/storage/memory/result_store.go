package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

type taggedSeason struct {
	teamID int
	jobID  string
	row    crawler.TeamSeason
}

type taggedFilm struct {
	filmID int
	jobID  string
	row    crawler.OscarFilm
}

// ResultStore keeps entities unique by natural key and appends dated rows,
// mirroring the relational layout.
type ResultStore struct {
	mu      sync.RWMutex
	teams   map[string]int
	films   map[string]int
	seasons []taggedSeason
	awards  []taggedFilm
}

// NewResultStore constructs a ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{
		teams: make(map[string]int),
		films: make(map[string]int),
	}
}

// SaveTeamSeasons implements crawler.ResultSink.
func (s *ResultStore) SaveTeamSeasons(_ context.Context, jobID string, rows []crawler.TeamSeason) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.seasons = append(s.seasons, taggedSeason{teamID: upsert(s.teams, r.Name), jobID: jobID, row: r})
	}
	return len(rows), nil
}

// SaveFilms implements crawler.ResultSink.
func (s *ResultStore) SaveFilms(_ context.Context, jobID string, rows []crawler.OscarFilm) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.awards = append(s.awards, taggedFilm{filmID: upsert(s.films, r.Title), jobID: jobID, row: r})
	}
	return len(rows), nil
}

// TeamSeasonsByJob implements crawler.ResultReader.
func (s *ResultStore) TeamSeasonsByJob(_ context.Context, jobID string) ([]crawler.TeamSeason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []crawler.TeamSeason{}
	for _, t := range s.seasons {
		if t.jobID == jobID {
			out = append(out, t.row)
		}
	}
	return out, nil
}

// FilmsByJob implements crawler.ResultReader.
func (s *ResultStore) FilmsByJob(_ context.Context, jobID string) ([]crawler.OscarFilm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []crawler.OscarFilm{}
	for _, t := range s.awards {
		if t.jobID == jobID {
			out = append(out, t.row)
		}
	}
	return out, nil
}

// RecentTeamSeasons implements crawler.ResultReader.
func (s *ResultStore) RecentTeamSeasons(_ context.Context, limit int) ([]crawler.TeamSeason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []crawler.TeamSeason{}
	for i := len(s.seasons) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.seasons[i].row)
	}
	return out, nil
}

// RecentFilms implements crawler.ResultReader.
func (s *ResultStore) RecentFilms(_ context.Context, limit int) ([]crawler.OscarFilm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []crawler.OscarFilm{}
	for i := len(s.awards) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.awards[i].row)
	}
	return out, nil
}

// Teams returns the number of distinct team entities.
func (s *ResultStore) Teams() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.teams)
}

// Films returns the number of distinct film entities.
func (s *ResultStore) Films() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.films)
}

func upsert(keys map[string]int, key string) int {
	if id, ok := keys[key]; ok {
		return id
	}
	id := len(keys) + 1
	keys[key] = id
	return id
}
