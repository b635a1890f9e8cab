package crawler

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a collection job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition may leave the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Source identifies a known collection target.
type Source string

// Known sources.
const (
	SourceHockey Source = "hockey"
	SourceOscar  Source = "oscar"
)

// Sources lists every known source in submission order.
func Sources() []Source {
	return []Source{SourceHockey, SourceOscar}
}

// Valid reports whether s names a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceHockey, SourceOscar:
		return true
	default:
		return false
	}
}

// ParseSource normalizes raw into a known Source.
func ParseSource(raw string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown source %q", raw)
	}
	return s, nil
}

// Job represents the metadata persisted for each requested collection run.
type Job struct {
	ID          string     `json:"job_id"`
	Source      Source     `json:"job_type"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ErrorDetail *string    `json:"error_message,omitempty"`
	ResultCount int        `json:"results_count"`
}

// TeamSeason is one season row of the hockey team table. Name is the natural
// key of the parent team entity.
type TeamSeason struct {
	Name         string  `json:"team_name"`
	Year         int     `json:"year"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	LossesOT     int     `json:"losses_ot"`
	WinPct       float64 `json:"wins_percentage"`
	GoalsFor     float64 `json:"goals_for"`
	GoalsAgainst float64 `json:"goals_against"`
	GoalDiff     float64 `json:"goal_difference"`
}

// OscarFilm is one film entry of an awards year. Title is the natural key of
// the parent film entity.
type OscarFilm struct {
	Title       string `json:"title"`
	Year        int    `json:"year"`
	Nominations int    `json:"nominations"`
	Awards      int    `json:"awards"`
	BestPicture bool   `json:"best_picture"`
}

// JobEvent is published after a job reaches a terminal state.
type JobEvent struct {
	JobID       string    `json:"job_id"`
	Source      Source    `json:"job_type"`
	Status      JobStatus `json:"status"`
	ResultCount int       `json:"results_count"`
	ErrorDetail string    `json:"error_message,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// PointerTime returns a pointer to a copy of t.
func PointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

// PointerString returns a pointer to a copy of s.
func PointerString(s string) *string {
	v := s
	return &v
}
