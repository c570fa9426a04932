// Package worker schedules recurring analyses for a fixed set of users.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/dvloznov/finance-insights/internal/schema"
)

// DefaultWindow is how far back each scheduled analysis looks.
const DefaultWindow = 90 * 24 * time.Hour

// JobFactory builds analysis jobs. *advisor.Service implements it.
type JobFactory interface {
	NewJob(userID string, kind schema.Kind, bundle json.RawMessage) *jobs.AnalysisJob
}

// Scheduler enqueues one job per user and kind on every run. Jobs carry no
// bundle, so the worker loads transactions from the configured source.
type Scheduler struct {
	factory   JobFactory
	publisher jobs.Publisher
	users     []string
	kinds     []schema.Kind
	window    time.Duration
	log       zerolog.Logger
}

// NewScheduler creates a scheduler. Empty kinds means both kinds; a
// non-positive window means DefaultWindow.
func NewScheduler(factory JobFactory, publisher jobs.Publisher, users []string, kinds []schema.Kind, window time.Duration, log zerolog.Logger) *Scheduler {
	if len(kinds) == 0 {
		kinds = []schema.Kind{schema.KindSingle, schema.KindIntegrated}
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Scheduler{
		factory:   factory,
		publisher: publisher,
		users:     users,
		kinds:     kinds,
		window:    window,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// RunOnce enqueues the jobs for the window ending at now. It keeps going
// after a failed publish and reports every failure.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (int, error) {
	to := now.UTC().Truncate(24 * time.Hour)
	from := to.Add(-s.window)

	var errs []error
	enqueued := 0
	for _, userID := range s.users {
		for _, kind := range s.kinds {
			if err := ctx.Err(); err != nil {
				return enqueued, err
			}
			job := s.factory.NewJob(userID, kind, nil)
			job.From = &from
			job.To = &to
			if err := s.publisher.PublishAnalysis(ctx, job); err != nil {
				errs = append(errs, fmt.Errorf("RunOnce: %s %s: %w", job.UserRef, kind, err))
				continue
			}
			enqueued++
			s.log.Debug().Str("job_id", job.JobID).Str("user", job.UserRef).Str("kind", string(kind)).Msg("Scheduled analysis")
		}
	}
	return enqueued, errors.Join(errs...)
}

// Run calls RunOnce immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, clock func() time.Time) {
	if clock == nil {
		clock = time.Now
	}
	s.runAndLog(ctx, clock())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAndLog(ctx, clock())
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context, now time.Time) {
	n, err := s.RunOnce(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Int("enqueued", n).Msg("Scheduling run incomplete")
		return
	}
	s.log.Info().Int("enqueued", n).Msg("Scheduling run complete")
}
