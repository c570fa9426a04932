package advisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/guard"
	"github.com/dvloznov/finance-insights/internal/jsonval"
	"github.com/dvloznov/finance-insights/internal/model"
	"github.com/dvloznov/finance-insights/internal/sanitizer"
	"github.com/dvloznov/finance-insights/internal/schema"
)

const (
	DefaultMaxAttempts = 2
	DefaultListLimit   = 20
)

// Config wires a Service. Sanitizer, Guard and Generator are required.
// Repository, Source, Archiver and Publisher are optional; a nil Repository
// means analyses are returned but not stored.
type Config struct {
	Sanitizer *sanitizer.Sanitizer
	Guard     *guard.Guard
	Generator model.Generator

	Repository InsightRepository
	Source     TransactionSource
	Archiver   Archiver
	Publisher  Publisher

	ModelTimeout  time.Duration
	MaxAttempts   int
	MinConfidence float64

	Clock  func() time.Time
	Logger *zerolog.Logger
}

// Service runs analyses. It is safe for concurrent use.
type Service struct {
	cfg       Config
	validator *schema.Validator
	log       zerolog.Logger
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Sanitizer == nil || cfg.Guard == nil || cfg.Generator == nil {
		return nil, errors.New("NewService: sanitizer, guard and generator are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "advisor").Logger()
	}
	return &Service{cfg: cfg, validator: schema.NewValidator(log), log: log}, nil
}

func (s *Service) pipeline(log zerolog.Logger) *Pipeline {
	return NewPipeline(
		&LoadBundleStep{Source: s.cfg.Source},
		&SanitizeStep{Sanitizer: s.cfg.Sanitizer},
		&GateStep{Sanitizer: s.cfg.Sanitizer},
		&RenderStep{},
		&GenerateStep{
			Generator:   s.cfg.Generator,
			Validator:   s.validator,
			Timeout:     s.cfg.ModelTimeout,
			MaxAttempts: s.cfg.MaxAttempts,
			Log:         log,
		},
		&ProjectStep{},
		&ConfidenceFilterStep{Threshold: s.cfg.MinConfidence},
		&GuardStep{Guard: s.cfg.Guard},
		&PolicyStep{Log: log},
		&BuildAnalysisStep{Model: s.cfg.Generator.Name(), Clock: s.cfg.Clock},
		&ArchiveStep{Archiver: s.cfg.Archiver, Log: log},
		&PersistStep{Repository: s.cfg.Repository},
		&PublishStep{Publisher: s.cfg.Publisher, Log: log},
	)
}

// Analyze runs one analysis.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	if _, err := schema.ParseKind(string(req.Kind)); err != nil {
		return nil, fmt.Errorf("Analyze: %w: %w", ErrInvalidRequest, err)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("Analyze: %w: user id is required", ErrInvalidRequest)
	}

	userRef := s.cfg.Sanitizer.AnonymizeUserID(req.UserID)
	log := s.log.With().Str("user", userRef).Str("kind", string(req.Kind)).Logger()

	state := &State{Request: req}
	start := time.Now()
	if err := s.pipeline(log).Execute(ctx, state); err != nil {
		log.Error().Err(redactedError(err)).Int("attempts", state.Attempts).Msg("analysis failed")
		return nil, fmt.Errorf("Analyze: %w", err)
	}

	log.Info().
		Str("analysis_id", state.Analysis.ID).
		Int("insights", state.Stats.Count).
		Int("attempts", state.Attempts).
		Dur("took", time.Since(start)).
		Msg("analysis completed")

	return &Result{Analysis: state.Analysis, Response: state.Guarded, Warnings: state.Warnings}, nil
}

// AnalyzeAll runs one analysis per kind concurrently over the same request.
// Results are returned in kind order. The first failure cancels the rest.
func (s *Service) AnalyzeAll(ctx context.Context, req Request, kinds ...schema.Kind) ([]*Result, error) {
	if len(kinds) == 0 {
		kinds = []schema.Kind{schema.KindSingle, schema.KindIntegrated}
	}

	results := make([]*Result, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		r := req
		r.Kind = kind
		g.Go(func() error {
			res, err := s.Analyze(gctx, r)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("AnalyzeAll: %w", err)
	}
	return results, nil
}

// Get returns a stored analysis.
func (s *Service) Get(ctx context.Context, id string) (*domain.Analysis, error) {
	if s.cfg.Repository == nil {
		return nil, domain.ErrAnalysisNotFound
	}
	a, err := s.cfg.Repository.GetAnalysis(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

// ListForUser returns the newest analyses for a real user id. The id is
// anonymized before it reaches the repository.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if s.cfg.Repository == nil {
		return []*domain.Analysis{}, nil
	}
	list, err := s.cfg.Repository.ListAnalyses(ctx, s.UserRef(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("ListForUser: %w", err)
	}
	return list, nil
}

// Preview returns the sanitized bundle exactly as it would be sent to the model.
func (s *Service) Preview(ctx context.Context, req Request) (jsonval.Value, error) {
	state := &State{Request: req}
	p := NewPipeline(
		&LoadBundleStep{Source: s.cfg.Source},
		&SanitizeStep{Sanitizer: s.cfg.Sanitizer},
		&GateStep{Sanitizer: s.cfg.Sanitizer},
	)
	if err := p.Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("Preview: %w", err)
	}
	return state.Sanitized, nil
}

// UserRef returns the anonymized id for userID.
func (s *Service) UserRef(userID string) string {
	return s.cfg.Sanitizer.AnonymizeUserID(userID)
}

// redactedError keeps validation details out of logs; the issue list can
// quote model text.
func redactedError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%w after %d attempt(s), %d issue(s)", ErrValidationFailed, ve.Attempts, len(ve.Issues))
	}
	return err
}
