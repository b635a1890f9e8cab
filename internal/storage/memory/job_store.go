// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

// JobStore keeps jobs in a map.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crawler.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]crawler.Job)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, crawler.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// UpdateJob replaces the stored job.
func (s *JobStore) UpdateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return crawler.ErrJobNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// ListJobs returns jobs newest first.
func (s *JobStore) ListJobs(_ context.Context, limit, offset int) ([]crawler.Job, error) {
	s.mu.RLock()
	all := make([]crawler.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, cloneJob(job))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []crawler.Job{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// cloneJob copies the pointer fields so callers cannot mutate stored state.
func cloneJob(job crawler.Job) crawler.Job {
	if job.StartedAt != nil {
		job.StartedAt = crawler.PointerTime(*job.StartedAt)
	}
	if job.CompletedAt != nil {
		job.CompletedAt = crawler.PointerTime(*job.CompletedAt)
	}
	if job.ErrorDetail != nil {
		job.ErrorDetail = crawler.PointerString(*job.ErrorDetail)
	}
	return job
}
