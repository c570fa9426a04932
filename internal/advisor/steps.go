package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/guard"
	"github.com/dvloznov/finance-insights/internal/jsonval"
	"github.com/dvloznov/finance-insights/internal/model"
	"github.com/dvloznov/finance-insights/internal/prompts"
	"github.com/dvloznov/finance-insights/internal/sanitizer"
	"github.com/dvloznov/finance-insights/internal/schema"
)

// LoadBundleStep uses the request bundle, or builds one from stored transactions.
type LoadBundleStep struct {
	Source TransactionSource
}

func (s *LoadBundleStep) Execute(ctx context.Context, state *State) error {
	if state.Request.Bundle != nil {
		state.Raw = state.Request.Bundle
		return nil
	}
	if s.Source == nil {
		return ErrNoData
	}

	txs, err := s.Source.ListTransactions(ctx, state.Request.UserID, state.Request.From, state.Request.To)
	if err != nil {
		return fmt.Errorf("LoadBundleStep: listing transactions: %w", err)
	}
	entries := make(jsonval.Array, len(txs))
	for i, tx := range txs {
		entries[i] = jsonval.FromAny(tx.BundleEntry())
	}
	state.Raw = jsonval.Object{"transactions": entries}
	return nil
}

// SanitizeStep prepares the bundle for the model.
type SanitizeStep struct {
	Sanitizer *sanitizer.Sanitizer
}

func (s *SanitizeStep) Execute(ctx context.Context, state *State) error {
	state.UserRef = s.Sanitizer.AnonymizeUserID(state.Request.UserID)
	state.Quality = s.Sanitizer.AssessDataQuality(state.Raw)
	state.Sanitized = s.Sanitizer.PrepareForAnalysis(state.Raw, state.Request.UserID)
	return nil
}

// GateStep refuses to send a bundle that still carries personal data.
type GateStep struct {
	Sanitizer *sanitizer.Sanitizer
}

func (s *GateStep) Execute(ctx context.Context, state *State) error {
	v := s.Sanitizer.ValidateSanitized(state.Sanitized)
	if v.IsValid {
		return nil
	}
	name := v.Pattern
	if name == "" {
		name = v.Field
	}
	return fmt.Errorf("%w: %s at %q", ErrUnsafeBundle, name, v.Path)
}

// RenderStep builds the prompt for the requested kind.
type RenderStep struct{}

func (s *RenderStep) Execute(ctx context.Context, state *State) error {
	prompt, err := prompts.Render(state.Request.Kind, state.Sanitized)
	if err != nil {
		return fmt.Errorf("RenderStep: %w", err)
	}
	state.Prompt = prompt
	return nil
}

// GenerateStep calls the model and validates its answer. A rejected answer
// is retried with a corrective prompt listing the issues, up to MaxAttempts
// calls in total.
type GenerateStep struct {
	Generator   model.Generator
	Validator   *schema.Validator
	Timeout     time.Duration
	MaxAttempts int
	Log         zerolog.Logger
}

func (s *GenerateStep) Execute(ctx context.Context, state *State) error {
	maxAttempts := s.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	prompt := state.Prompt
	var issues []schema.Issue
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		state.Attempts = attempt

		completion, err := s.generate(ctx, prompt)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrModelFailed, err)
		}
		state.Completion = completion

		var result schema.Result
		parsed, err := model.ParseResponse(completion.Text)
		if err != nil {
			result = schema.Result{Errors: []schema.Issue{{Rule: "json", Message: "response is not a JSON document"}}}
		} else {
			result = s.Validator.Validate(parsed, state.Request.Kind)
		}

		if result.IsValid {
			state.Validated = result.Data
			state.Warnings = result.Warnings
			s.Log.Debug().
				Int("attempt", attempt).
				Int64("prompt_tokens", completion.Usage.PromptTokens).
				Int64("completion_tokens", completion.Usage.CompletionTokens).
				Msg("model response accepted")
			return nil
		}

		issues = result.Errors
		s.Log.Info().Int("attempt", attempt).Int("issues", len(issues)).Msg("model response rejected")
		prompt = prompts.Corrective(state.Prompt, result.Messages())
	}

	return &ValidationError{Issues: issues, Attempts: state.Attempts}
}

func (s *GenerateStep) generate(ctx context.Context, prompt model.Prompt) (model.Completion, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.Generator.Generate(ctx, prompt)
}

// ProjectStep drops top-level members the schema does not declare.
type ProjectStep struct{}

func (s *ProjectStep) Execute(ctx context.Context, state *State) error {
	state.Validated = schema.SanitizeToSchema(state.Validated, state.Request.Kind)
	return nil
}

// ConfidenceFilterStep drops insights below Threshold.
type ConfidenceFilterStep struct {
	Threshold float64
}

func (s *ConfidenceFilterStep) Execute(ctx context.Context, state *State) error {
	if s.Threshold <= 0 {
		return nil
	}
	state.Validated = schema.FilterByConfidence(state.Validated, s.Threshold)
	return nil
}

// GuardStep applies the response guard.
type GuardStep struct {
	Guard *guard.Guard
}

func (s *GuardStep) Execute(ctx context.Context, state *State) error {
	guarded, err := s.Guard.GuardResponse(state.Validated)
	if err != nil {
		return fmt.Errorf("GuardStep: %w", err)
	}
	state.Guarded = guarded
	state.Stats, _ = guard.StatsFromGuarded(guarded)
	return nil
}

// PolicyStep adds the low-confidence disclaimer and logs the advisory
// checks. The advisory checks never fail the analysis.
type PolicyStep struct {
	Log zerolog.Logger
}

func (s *PolicyStep) Execute(ctx context.Context, state *State) error {
	state.Guarded = guard.AddConfidenceDisclaimer(state.Guarded)

	if err := guard.ValidateDataReferences(state.Guarded); err != nil {
		s.Log.Warn().Err(err).Msg("action item policy")
	}
	if err := guard.ValidateMonetaryValues(state.Guarded); err != nil {
		s.Log.Warn().Err(err).Msg("monetary policy")
	}
	if report := schema.ValidateNumericRanges(state.Guarded); !report.IsValid {
		s.Log.Warn().Strs("issues", report.Issues).Msg("numeric ranges")
	}
	return nil
}

// BuildAnalysisStep turns the guarded response into a domain.Analysis.
type BuildAnalysisStep struct {
	Model string
	Clock func() time.Time
}

func (s *BuildAnalysisStep) Execute(ctx context.Context, state *State) error {
	data, err := jsonval.Marshal(state.Guarded)
	if err != nil {
		return fmt.Errorf("BuildAnalysisStep: marshal response: %w", err)
	}

	modelName := state.Completion.Model
	if modelName == "" {
		modelName = s.Model
	}

	state.Analysis = &domain.Analysis{
		ID:                uuid.NewString(),
		UserRef:           state.UserRef,
		Kind:              string(state.Request.Kind),
		Model:             modelName,
		Attempts:          state.Attempts,
		Response:          json.RawMessage(data),
		InsightCount:      state.Stats.Count,
		AverageConfidence: state.Stats.AverageConfidence,
		ByPriority:        state.Stats.ByPriority,
		DataQuality:       state.Quality.Score,
		CreatedAt:         s.Clock().UTC(),
	}
	return nil
}

// ArchiveStep stores an audit copy. Archive failures are logged, not returned.
type ArchiveStep struct {
	Archiver Archiver
	Log      zerolog.Logger
}

func (s *ArchiveStep) Execute(ctx context.Context, state *State) error {
	if s.Archiver == nil {
		return nil
	}
	uri, err := s.Archiver.ArchiveAnalysis(ctx, state.Analysis)
	if err != nil {
		s.Log.Warn().Err(err).Str("analysis_id", state.Analysis.ID).Msg("archive failed")
		return nil
	}
	state.Analysis.ArchiveURI = uri
	return nil
}

// PersistStep saves the analysis.
type PersistStep struct {
	Repository InsightRepository
}

func (s *PersistStep) Execute(ctx context.Context, state *State) error {
	if s.Repository == nil {
		return nil
	}
	if err := s.Repository.SaveAnalysis(ctx, state.Analysis); err != nil {
		return fmt.Errorf("PersistStep: %w", err)
	}
	return nil
}

// PublishStep announces the analysis. Publish failures are logged, not returned.
type PublishStep struct {
	Publisher Publisher
	Log       zerolog.Logger
}

func (s *PublishStep) Execute(ctx context.Context, state *State) error {
	if s.Publisher == nil {
		return nil
	}
	if err := s.Publisher.PublishInsightsGenerated(ctx, state.Analysis); err != nil {
		s.Log.Warn().Err(err).Str("analysis_id", state.Analysis.ID).Msg("publish failed")
	}
	return nil
}
