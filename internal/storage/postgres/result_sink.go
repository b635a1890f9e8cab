package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

const (
	upsertTeamSQL = `
INSERT INTO hockey_team (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`
	insertTeamSeasonSQL = `
INSERT INTO hockey_team_historic (
	team_id, year, wins, losses, losses_ot,
	wins_percentage, goals_for, goals_against, goal_difference, job_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	upsertFilmSQL = `
INSERT INTO films (title) VALUES ($1)
ON CONFLICT (title) DO UPDATE SET title = EXCLUDED.title
RETURNING id`
	insertOscarFilmSQL = `
INSERT INTO oscar_winner_films (film_id, year, nominations, awards, best_picture, job_id)
VALUES ($1,$2,$3,$4,$5,$6)`
)

// SaveTeamSeasons upserts each team by name and appends its season row, all in
// one transaction.
func (s *Store) SaveTeamSeasons(ctx context.Context, jobID string, rows []crawler.TeamSeason) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		ids := make(map[string]int64, len(rows))
		for _, r := range rows {
			id, err := upsertEntity(ctx, tx, upsertTeamSQL, r.Name, ids)
			if err != nil {
				return fmt.Errorf("upsert team %q: %w", r.Name, err)
			}
			if _, err := tx.Exec(ctx, insertTeamSeasonSQL,
				id, r.Year, r.Wins, r.Losses, r.LossesOT,
				r.WinPct, r.GoalsFor, r.GoalsAgainst, r.GoalDiff, nullable(jobID),
			); err != nil {
				return fmt.Errorf("insert season %q/%d: %w", r.Name, r.Year, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// SaveFilms upserts each film by title and appends its awards row, all in one
// transaction.
func (s *Store) SaveFilms(ctx context.Context, jobID string, rows []crawler.OscarFilm) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		ids := make(map[string]int64, len(rows))
		for _, r := range rows {
			id, err := upsertEntity(ctx, tx, upsertFilmSQL, r.Title, ids)
			if err != nil {
				return fmt.Errorf("upsert film %q: %w", r.Title, err)
			}
			if _, err := tx.Exec(ctx, insertOscarFilmSQL,
				id, r.Year, r.Nominations, r.Awards, r.BestPicture, nullable(jobID),
			); err != nil {
				return fmt.Errorf("insert film %q/%d: %w", r.Title, r.Year, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// upsertEntity returns the id of the entity with key, inserting it when
// missing. ids caches keys already resolved in this transaction.
func upsertEntity(ctx context.Context, tx pgx.Tx, sql, key string, ids map[string]int64) (int64, error) {
	if id, ok := ids[key]; ok {
		return id, nil
	}
	var id int64
	if err := tx.QueryRow(ctx, sql, key).Scan(&id); err != nil {
		return 0, err //nolint:wrapcheck // wrapped by callers
	}
	ids[key] = id
	return id, nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
