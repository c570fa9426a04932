// Package advisor runs an analysis end to end: it loads a user's financial
// bundle, sanitizes it, asks a model for insights, validates and guards the
// answer, and records the result.
//
// Nothing the model returns reaches a repository, an archive or a publisher
// without passing the schema validator and the response guard first.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/jsonval"
	"github.com/dvloznov/finance-insights/internal/schema"
)

// AllKinds is the request kind that runs every analysis kind in one call.
const AllKinds = "all"

var (
	// ErrInvalidRequest is returned for a missing user id or unknown kind.
	ErrInvalidRequest = errors.New("invalid analysis request")
	// ErrNoData is returned when a request carries no bundle and no
	// transaction source is configured.
	ErrNoData = errors.New("no financial data to analyze")
	// ErrUnsafeBundle is returned when personal data survives sanitization.
	ErrUnsafeBundle = errors.New("sanitized bundle failed validation")
	// ErrModelFailed wraps errors from the model client.
	ErrModelFailed = errors.New("model call failed")
	// ErrValidationFailed is matched by every *ValidationError.
	ErrValidationFailed = errors.New("model response failed validation")
)

// ValidationError reports the issues found in the last model response after
// every attempt was used.
type ValidationError struct {
	Issues   []schema.Issue
	Attempts int
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.String()
	}
	return fmt.Sprintf("%s after %d attempt(s): %s", ErrValidationFailed, e.Attempts, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// InsightRepository stores guarded analyses.
type InsightRepository interface {
	SaveAnalysis(ctx context.Context, a *domain.Analysis) error
	// GetAnalysis returns domain.ErrAnalysisNotFound for unknown ids.
	GetAnalysis(ctx context.Context, id string) (*domain.Analysis, error)
	// ListAnalyses returns the newest analyses for userRef first.
	ListAnalyses(ctx context.Context, userRef string, limit int) ([]*domain.Analysis, error)
}

// TransactionSource loads stored transactions for a user. A zero from or to
// leaves that side of the range open.
type TransactionSource interface {
	ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error)
}

// Archiver keeps an audit copy of every guarded response.
type Archiver interface {
	ArchiveAnalysis(ctx context.Context, a *domain.Analysis) (string, error)
}

// Publisher announces stored analyses to other services.
type Publisher interface {
	PublishInsightsGenerated(ctx context.Context, a *domain.Analysis) error
}

// Request asks for one analysis. When Bundle is nil the transactions in
// [From, To] are loaded from the configured TransactionSource.
type Request struct {
	UserID string
	Kind   schema.Kind
	Bundle jsonval.Value
	From   time.Time
	To     time.Time
}

// Result is a completed analysis.
type Result struct {
	Analysis *domain.Analysis
	// Response is the guarded response, identical to Analysis.Response.
	Response jsonval.Object
	// Warnings are non-fatal validator findings on the accepted response.
	Warnings []schema.Issue
}

// PublicMessage maps an analysis error to text that is safe to show a client.
// Raw model output and matched patterns never appear in it.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid analysis request"
	case errors.Is(err, ErrValidationFailed):
		return "model response failed validation"
	case errors.Is(err, ErrNoData):
		return "no financial data to analyze"
	case errors.Is(err, ErrUnsafeBundle):
		return "bundle could not be sanitized"
	default:
		return "analysis unavailable"
	}
}
