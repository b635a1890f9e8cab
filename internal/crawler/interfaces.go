package crawler

import (
	"context"
	"io"
	"time"
)

// JobStore persists job lifecycle state.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	// UpdateJob writes the full mutable field set of job in one statement.
	UpdateJob(ctx context.Context, job Job) error
	ListJobs(ctx context.Context, limit, offset int) ([]Job, error)
}

// ResultSink upserts entities by natural key and appends dated rows tagged
// with the owning job. An empty jobID stores a NULL tag.
type ResultSink interface {
	SaveTeamSeasons(ctx context.Context, jobID string, rows []TeamSeason) (int, error)
	SaveFilms(ctx context.Context, jobID string, rows []OscarFilm) (int, error)
}

// ResultReader serves stored records back to clients.
type ResultReader interface {
	TeamSeasonsByJob(ctx context.Context, jobID string) ([]TeamSeason, error)
	FilmsByJob(ctx context.Context, jobID string) ([]OscarFilm, error)
	RecentTeamSeasons(ctx context.Context, limit int) ([]TeamSeason, error)
	RecentFilms(ctx context.Context, limit int) ([]OscarFilm, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Notifier announces terminal job transitions.
type Notifier interface {
	Notify(ctx context.Context, event JobEvent) error
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
