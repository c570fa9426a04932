package inmemory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dvloznov/finance-insights/internal/jobs"
)

// Store keeps analysis jobs in memory, safe for concurrent use.
//
// Raw user ids and bundles are only needed until a job finishes, so they are
// dropped once a job reaches a terminal status.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.AnalysisJob
	now  func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.AnalysisJob),
		now:  time.Now,
	}
}

func (s *Store) SaveJob(ctx context.Context, job *jobs.AnalysisJob) error {
	if job == nil || job.JobID == "" {
		return errors.New("SaveJob: job id is required")
	}

	stored := clone(job)
	if terminal(stored.Status) {
		forget(stored)
	}

	s.mu.Lock()
	s.jobs[job.JobID] = stored
	s.mu.Unlock()
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return clone(job), nil
}

// ListJobs returns matching jobs oldest first, ties broken by id, then
// applies offset and limit.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalysisJob, error) {
	s.mu.RLock()
	matched := make([]*jobs.AnalysisJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if matches(job, filter) {
			matched = append(matched, clone(job))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *jobs.AnalysisJob) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.JobID < b.JobID:
			return -1
		case a.JobID > b.JobID:
			return 1
		}
		return 0
	})

	return page(matched, filter.Offset, filter.Limit), nil
}

// UpdateJobStatus moves a job to status. Entering running stamps StartedAt
// and a terminal status stamps CompletedAt; existing stamps are kept.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("UpdateJobStatus: %s: %w", jobID, jobs.ErrJobNotFound)
	}

	now := s.now()
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	if status == jobs.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if terminal(status) {
		if job.CompletedAt == nil {
			job.CompletedAt = &now
		}
		forget(job)
	}
	return nil
}

func terminal(status jobs.JobStatus) bool {
	return status == jobs.JobStatusCompleted || status == jobs.JobStatusFailed
}

func forget(job *jobs.AnalysisJob) {
	job.UserID = ""
	job.Bundle = nil
}

func matches(job *jobs.AnalysisJob, f jobs.JobFilter) bool {
	if f.UserRef != "" && job.UserRef != f.UserRef {
		return false
	}
	return f.Status == "" || job.Status == f.Status
}

func page(list []*jobs.AnalysisJob, offset, limit int) []*jobs.AnalysisJob {
	if offset > 0 {
		if offset >= len(list) {
			return []*jobs.AnalysisJob{}
		}
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

// clone copies job including the values behind its pointer and slice fields.
func clone(job *jobs.AnalysisJob) *jobs.AnalysisJob {
	c := *job
	c.Bundle = slices.Clone(job.Bundle)
	c.From = copyTime(job.From)
	c.To = copyTime(job.To)
	c.StartedAt = copyTime(job.StartedAt)
	c.CompletedAt = copyTime(job.CompletedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ jobs.JobStore = (*Store)(nil)
