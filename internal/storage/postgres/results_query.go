package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

const (
	teamSeasonSelect = `
SELECT t.name, h.year, h.wins, h.losses, h.losses_ot,
	h.wins_percentage, h.goals_for, h.goals_against, h.goal_difference
FROM hockey_team_historic h
JOIN hockey_team t ON t.id = h.team_id`
	filmSelect = `
SELECT f.title, o.year, o.nominations, o.awards, o.best_picture
FROM oscar_winner_films o
JOIN films f ON f.id = o.film_id`
)

// TeamSeasonsByJob returns the season rows stored by jobID in insertion order.
func (s *Store) TeamSeasonsByJob(ctx context.Context, jobID string) ([]crawler.TeamSeason, error) {
	return s.teamSeasons(ctx, teamSeasonSelect+` WHERE h.job_id = $1 ORDER BY h.id`, jobID)
}

// RecentTeamSeasons returns the newest season rows across all jobs.
func (s *Store) RecentTeamSeasons(ctx context.Context, limit int) ([]crawler.TeamSeason, error) {
	return s.teamSeasons(ctx, teamSeasonSelect+` ORDER BY h.id DESC LIMIT $1`, limit)
}

// FilmsByJob returns the film rows stored by jobID in insertion order.
func (s *Store) FilmsByJob(ctx context.Context, jobID string) ([]crawler.OscarFilm, error) {
	return s.films(ctx, filmSelect+` WHERE o.job_id = $1 ORDER BY o.id`, jobID)
}

// RecentFilms returns the newest film rows across all jobs.
func (s *Store) RecentFilms(ctx context.Context, limit int) ([]crawler.OscarFilm, error) {
	return s.films(ctx, filmSelect+` ORDER BY o.id DESC LIMIT $1`, limit)
}

func (s *Store) teamSeasons(ctx context.Context, sql string, arg any) ([]crawler.TeamSeason, error) {
	rows, err := s.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("query team seasons: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (crawler.TeamSeason, error) {
		var r crawler.TeamSeason
		err := row.Scan(&r.Name, &r.Year, &r.Wins, &r.Losses, &r.LossesOT,
			&r.WinPct, &r.GoalsFor, &r.GoalsAgainst, &r.GoalDiff)
		return r, err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return nil, fmt.Errorf("scan team seasons: %w", err)
	}
	return out, nil
}

func (s *Store) films(ctx context.Context, sql string, arg any) ([]crawler.OscarFilm, error) {
	rows, err := s.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("query films: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (crawler.OscarFilm, error) {
		var r crawler.OscarFilm
		err := row.Scan(&r.Title, &r.Year, &r.Nominations, &r.Awards, &r.BestPicture)
		return r, err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return nil, fmt.Errorf("scan films: %w", err)
	}
	return out, nil
}
