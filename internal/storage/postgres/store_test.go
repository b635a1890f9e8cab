package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

var jobCols = []string{"job_id", "job_type", "status", "created_at", "started_at", "completed_at", "error_message", "results_count"}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewWithPool(nil)
	require.Error(t, err)
}

func TestCreateJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	job := crawler.Job{ID: "job-1", Source: crawler.SourceHockey, Status: crawler.JobStatusPending, CreatedAt: created}

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", "hockey", "pending", created, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	started := created.Add(time.Second)
	detail := "source_unavailable: await #hockey-table on entry page"

	mock.ExpectQuery("SELECT job_id, job_type::text").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobCols).
			AddRow("job-1", "hockey", "failed", created, &started, &started, &detail, 0))

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.SourceHockey, job.Source)
	require.Equal(t, crawler.JobStatusFailed, job.Status)
	require.Equal(t, started, *job.StartedAt)
	require.Equal(t, detail, *job.ErrorDetail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT job_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, crawler.ErrJobNotFound)
}

func TestUpdateJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	completed := started.Add(time.Minute)
	job := crawler.Job{
		ID:          "job-1",
		Source:      crawler.SourceOscar,
		Status:      crawler.JobStatusCompleted,
		StartedAt:   &started,
		CompletedAt: &completed,
		ResultCount: 87,
	}

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "completed", &started, &completed, (*string)(nil), 87).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.UpdateJob(context.Background(), job))

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "completed", &started, &completed, (*string)(nil), 87).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, store.UpdateJob(context.Background(), job), crawler.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs(10, 5).
		WillReturnRows(pgxmock.NewRows(jobCols).
			AddRow("job-2", "oscar", "pending", created.Add(time.Minute), (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), 0).
			AddRow("job-1", "hockey", "completed", created, &created, &created, (*string)(nil), 24))

	jobs, err := store.ListJobs(context.Background(), 10, 5)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "job-2", jobs[0].ID)
	require.Nil(t, jobs[0].StartedAt)
	require.Equal(t, 24, jobs[1].ResultCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTeamSeasonsUpsertsOncePerTeam(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := []crawler.TeamSeason{
		{Name: "Boston Bruins", Year: 1990, Wins: 44, Losses: 24, WinPct: 0.55, GoalsFor: 299, GoalsAgainst: 264, GoalDiff: 35},
		{Name: "Boston Bruins", Year: 1991, Wins: 36, Losses: 32, WinPct: 0.45, GoalsFor: 270, GoalsAgainst: 275, GoalDiff: -5},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO hockey_team \\(name\\)").
		WithArgs("Boston Bruins").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO hockey_team_historic").
		WithArgs(int64(7), 1990, 44, 24, 0, 0.55, 299.0, 264.0, 35.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO hockey_team_historic").
		WithArgs(int64(7), 1991, 36, 32, 0, 0.45, 270.0, 275.0, -5.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := store.SaveTeamSeasons(context.Background(), "job-1", rows)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveFilmsWithoutJobStoresNullTag(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO films").
		WithArgs("Argo").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("INSERT INTO oscar_winner_films").
		WithArgs(int64(3), 2012, 7, 3, true, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := store.SaveFilms(context.Background(), "", []crawler.OscarFilm{
		{Title: "Argo", Year: 2012, Nominations: 7, Awards: 3, BestPicture: true},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveFilmsRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO films").
		WithArgs("Argo").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("INSERT INTO oscar_winner_films").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	n, err := store.SaveFilms(context.Background(), "job-1", []crawler.OscarFilm{{Title: "Argo", Year: 2012}})
	require.Error(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEmptyIsNoop(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	n, err := store.SaveTeamSeasons(context.Background(), "job-1", nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamSeasonsByJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cols := []string{"name", "year", "wins", "losses", "losses_ot", "wins_percentage", "goals_for", "goals_against", "goal_difference"}
	mock.ExpectQuery("WHERE h.job_id = \\$1").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("Boston Bruins", 1990, 44, 24, 0, 0.55, 299.0, 264.0, 35.0))

	rows, err := store.TeamSeasonsByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, []crawler.TeamSeason{{
		Name: "Boston Bruins", Year: 1990, Wins: 44, Losses: 24,
		WinPct: 0.55, GoalsFor: 299, GoalsAgainst: 264, GoalDiff: 35,
	}}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentFilms(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("ORDER BY o.id DESC LIMIT \\$1").
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows([]string{"title", "year", "nominations", "awards", "best_picture"}).
			AddRow("Argo", 2012, 7, 3, true).
			AddRow("Lincoln", 2012, 12, 2, false))

	films, err := store.RecentFilms(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, films, 2)
	require.True(t, films[0].BestPicture)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaAppliesEveryStatement(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	for _, stmt := range schemaStatements {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaStopsOnError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(schemaStatements[0])).WillReturnError(errors.New("permission denied"))
	err := store.EnsureSchema(context.Background())
	require.ErrorContains(t, err, "statement 1")
}

func TestPing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
