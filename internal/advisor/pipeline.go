package advisor

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/guard"
	"github.com/dvloznov/finance-insights/internal/jsonval"
	"github.com/dvloznov/finance-insights/internal/model"
	"github.com/dvloznov/finance-insights/internal/sanitizer"
	"github.com/dvloznov/finance-insights/internal/schema"
)

// Step is a single stage of an analysis.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, state *State) error

func (f StepFunc) Execute(ctx context.Context, state *State) error {
	return f(ctx, state)
}

// State holds the values passed between steps.
type State struct {
	Request Request
	UserRef string

	Raw       jsonval.Value
	Sanitized jsonval.Value
	Quality   sanitizer.DataQuality

	Prompt     model.Prompt
	Completion model.Completion
	Attempts   int

	Validated jsonval.Value
	Warnings  []schema.Issue

	Guarded jsonval.Object
	Stats   guard.Stats

	Analysis *domain.Analysis
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first error.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
