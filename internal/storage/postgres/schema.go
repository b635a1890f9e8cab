package postgres

import (
	"context"
	"fmt"
)

// schemaStatements are idempotent and applied in order.
var schemaStatements = []string{
	`DO $$ BEGIN
	CREATE TYPE job_type AS ENUM ('hockey', 'oscar');
EXCEPTION WHEN duplicate_object THEN NULL;
END $$`,
	`DO $$ BEGIN
	CREATE TYPE job_status AS ENUM ('pending', 'running', 'completed', 'failed');
EXCEPTION WHEN duplicate_object THEN NULL;
END $$`,
	`CREATE TABLE IF NOT EXISTS jobs (
	id            SERIAL PRIMARY KEY,
	job_id        VARCHAR(255) NOT NULL UNIQUE,
	job_type      job_type NOT NULL,
	status        job_status NOT NULL DEFAULT 'pending',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	error_message TEXT,
	results_count INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS hockey_team (
	id   SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS hockey_team_historic (
	id              SERIAL PRIMARY KEY,
	team_id         INTEGER NOT NULL REFERENCES hockey_team (id) ON DELETE CASCADE,
	year            INTEGER NOT NULL,
	wins            INTEGER NOT NULL,
	losses          INTEGER NOT NULL,
	losses_ot       INTEGER NOT NULL,
	wins_percentage DOUBLE PRECISION NOT NULL,
	goals_for       DOUBLE PRECISION NOT NULL,
	goals_against   DOUBLE PRECISION NOT NULL,
	goal_difference DOUBLE PRECISION NOT NULL,
	job_id          VARCHAR(255)
)`,
	`CREATE INDEX IF NOT EXISTS hockey_team_historic_job_id_idx ON hockey_team_historic (job_id)`,
	`CREATE TABLE IF NOT EXISTS films (
	id    SERIAL PRIMARY KEY,
	title VARCHAR(255) NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS oscar_winner_films (
	id           SERIAL PRIMARY KEY,
	film_id      INTEGER NOT NULL REFERENCES films (id) ON DELETE CASCADE,
	year         INTEGER NOT NULL,
	nominations  INTEGER NOT NULL,
	awards       INTEGER NOT NULL,
	best_picture BOOLEAN NOT NULL DEFAULT FALSE,
	job_id       VARCHAR(255)
)`,
	`CREATE INDEX IF NOT EXISTS oscar_winner_films_film_id_idx ON oscar_winner_films (film_id)`,
	`CREATE INDEX IF NOT EXISTS oscar_winner_films_job_id_idx ON oscar_winner_films (job_id)`,
}

// EnsureSchema creates every enum, table, and index that does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
