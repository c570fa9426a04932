// Package model talks to generative models. Everything a model returns is
// untrusted text; callers parse it with ParseResponse and validate the result.
package model

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when a model answers with no text.
var ErrEmptyCompletion = errors.New("empty completion from model")

// Prompt is a rendered request: instructions plus the user turn.
type Prompt struct {
	System string
	User   string
}

type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Completion is the raw model answer.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Generator sends a prompt to a model.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (Completion, error)
	Name() string
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt Prompt) (Completion, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt Prompt) (Completion, error) {
	return f(ctx, prompt)
}

func (f GeneratorFunc) Name() string { return "func" }

// Static always answers with the same text. Used by the CLI to replay a
// saved response.
type Static struct {
	Text string
}

func (s Static) Generate(ctx context.Context, _ Prompt) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	if s.Text == "" {
		return Completion{}, ErrEmptyCompletion
	}
	return Completion{Text: s.Text, Model: "static"}, nil
}

func (Static) Name() string { return "static" }
