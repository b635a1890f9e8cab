package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/id/uuid"
)

const (
	defaultJobsLimit    = 50
	maxJobsLimit        = 500
	defaultResultsLimit = 100
	maxResultsLimit     = 1000
)

func (s *Server) crawlSource(w http.ResponseWriter, r *http.Request) {
	src, err := crawler.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, s.logger, http.StatusNotFound, err.Error())
		return
	}
	jobs, ok := s.submit(w, r, src)
	if !ok {
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, jobs[0])
}

func (s *Server) crawlAll(w http.ResponseWriter, r *http.Request) {
	jobs, ok := s.submit(w, r, crawler.Sources()...)
	if !ok {
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, map[string]any{"jobs": jobs})
}

// submit writes the error response itself and reports false when nothing
// was queued.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, sources ...crawler.Source) ([]crawler.Job, bool) {
	jobs, err := s.submitter.Submit(r.Context(), sources...)
	if err == nil {
		return jobs, true
	}
	s.logger.Error("submit jobs failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.Int("created", len(jobs)),
		zap.Error(err),
	)
	if len(jobs) == len(sources) {
		// Jobs exist but never reached the queue.
		writeJSON(w, s.logger, http.StatusServiceUnavailable, map[string]any{
			"error": "job queue unavailable",
			"jobs":  jobs,
		})
		return nil, false
	}
	if len(jobs) > 0 {
		// Some jobs were created before the store failed.
		writeJSON(w, s.logger, http.StatusServiceUnavailable, map[string]any{
			"error": "job store unavailable",
			"jobs":  jobs,
		})
		return nil, false
	}
	writeError(w, s.logger, http.StatusServiceUnavailable, "job store unavailable")
	return nil, false
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultJobsLimit, maxJobsLimit)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0, -1)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := s.jobs.ListJobs(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []crawler.Job{}
	}
	writeJSON(w, s.logger, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.logger, http.StatusOK, job)
}

func (s *Server) getJobResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != crawler.JobStatusCompleted {
		writeJSON(w, s.logger, http.StatusConflict, map[string]any{
			"job_id":  job.ID,
			"status":  job.Status,
			"message": "job not completed yet",
			"results": []any{},
		})
		return
	}

	var (
		results any
		count   int
		err     error
	)
	switch job.Source {
	case crawler.SourceHockey:
		var rows []crawler.TeamSeason
		rows, err = s.results.TeamSeasonsByJob(r.Context(), job.ID)
		results, count = nonNil(rows), len(rows)
	case crawler.SourceOscar:
		var rows []crawler.OscarFilm
		rows, err = s.results.FilmsByJob(r.Context(), job.ID)
		results, count = nonNil(rows), len(rows)
	default:
		err = errors.New("job has no result table")
	}
	if err != nil {
		s.logger.Error("load job results failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to fetch job results")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"job_id":        job.ID,
		"status":        job.Status,
		"job_type":      job.Source,
		"results_count": count,
		"results":       results,
	})
}

func (s *Server) sourceResults(w http.ResponseWriter, r *http.Request) {
	src, err := crawler.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, s.logger, http.StatusNotFound, err.Error())
		return
	}
	limit, err := intParam(r, "limit", defaultResultsLimit, maxResultsLimit)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}

	var (
		results any
		total   int
	)
	switch src {
	case crawler.SourceHockey:
		var rows []crawler.TeamSeason
		rows, err = s.results.RecentTeamSeasons(r.Context(), limit)
		results, total = nonNil(rows), len(rows)
	case crawler.SourceOscar:
		var rows []crawler.OscarFilm
		rows, err = s.results.RecentFilms(r.Context(), limit)
		results, total = nonNil(rows), len(rows)
	}
	if err != nil {
		s.logger.Error("load results failed", zap.String("source", string(src)), zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to fetch results")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"total":   total,
		"limit":   limit,
		"results": results,
	})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (crawler.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	if !uuid.Valid(jobID) {
		writeError(w, s.logger, http.StatusNotFound, "job not found")
		return crawler.Job{}, false
	}
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, crawler.ErrJobNotFound) {
		writeError(w, s.logger, http.StatusNotFound, "job not found")
		return crawler.Job{}, false
	}
	if err != nil {
		s.logger.Error("load job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to load job")
		return crawler.Job{}, false
	}
	return job, true
}

// intParam parses a non-negative query parameter. A positive max caps it.
func intParam(r *http.Request, name string, def, maxValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	if maxValue > 0 && v > maxValue {
		v = maxValue
	}
	return v, nil
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
