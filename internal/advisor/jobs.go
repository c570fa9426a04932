package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-insights/internal/guard"
	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/dvloznov/finance-insights/internal/jsonval"
	"github.com/dvloznov/finance-insights/internal/schema"
)

// NewJob builds an analysis job for userID. The bundle may be empty, in which
// case the worker loads transactions from the configured source.
func (s *Service) NewJob(userID string, kind schema.Kind, bundle json.RawMessage) *jobs.AnalysisJob {
	return &jobs.AnalysisJob{
		UserID:  userID,
		UserRef: s.UserRef(userID),
		Kind:    string(kind),
		Bundle:  bundle,
	}
}

// JobHandler returns the handler a worker runs for analysis jobs. Failures
// are reduced to their public message before they reach the job store.
// Only model and storage failures are retried.
func (s *Service) JobHandler() jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		j, ok := job.(*jobs.AnalysisJob)
		if !ok {
			return jobs.Permanent(fmt.Errorf("unsupported job type %q", job.GetType()))
		}

		kind, err := schema.ParseKind(j.Kind)
		if err != nil {
			return jobs.Permanent(err)
		}

		req := Request{UserID: j.UserID, Kind: kind}
		if j.From != nil {
			req.From = *j.From
		}
		if j.To != nil {
			req.To = *j.To
		}
		if len(j.Bundle) > 0 {
			bundle, err := jsonval.Parse(j.Bundle)
			if err != nil {
				return jobs.Permanent(errors.New("bundle is not valid JSON"))
			}
			req.Bundle = bundle
		}

		res, err := s.Analyze(ctx, req)
		if err != nil {
			public := errors.New(PublicMessage(err))
			if retryable(err) {
				return public
			}
			return jobs.Permanent(public)
		}

		j.AnalysisID = res.Analysis.ID
		return nil
	}
}

func retryable(err error) bool {
	for _, permanent := range []error{
		ErrInvalidRequest,
		ErrValidationFailed,
		ErrNoData,
		ErrUnsafeBundle,
		guard.ErrEmptyResponse,
		guard.ErrSuspiciousContent,
		context.Canceled,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
