// Package guard is the last line of defence between a validated model
// response and anything that persists or serves it.
//
// GuardResponse works on its own copy of the response and applies a fixed
// sequence of passes: limit insights, clamp confidence, check for suspicious
// content, ensure every insight is actionable, clean free text and attach
// audit metadata. Only two conditions are errors: an empty response and
// suspicious content. Everything else is truncated or clamped silently.
package guard

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

var (
	// ErrEmptyResponse is returned when there is nothing to guard.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrSuspiciousContent is returned when the response contains data that
	// looks like a card number, an SSN or a credential.
	ErrSuspiciousContent = errors.New("suspicious content in model response")
	// ErrMonetaryOutOfRange is returned by ValidateMonetaryValues.
	ErrMonetaryOutOfRange = errors.New("monetary value out of range")
	// ErrMissingSuggestedAmount is returned by ValidateDataReferences.
	ErrMissingSuggestedAmount = errors.New("action item missing suggested amount")
)

// MetadataKey holds the audit block attached by GuardResponse.
const MetadataKey = "_guarded"

const (
	DefaultMaxInsights          = 10
	DefaultMaxActionItems       = 3
	DefaultMinActionDescription = 5
	DefaultVersion              = "1.0.0"

	// MaxMonetaryValue bounds every monetary amount in either direction.
	MaxMonetaryValue = 1_000_000
)

var insightKeys = []string{"insights", "integratedInsights"}

// Config tunes the guard. Zero fields take the defaults above.
type Config struct {
	MaxInsights          int
	MaxActionItems       int
	MinActionDescription int
	Version              string
	// KeepMonetaryValues disables clamping of impact.amount during the
	// confidence pass.
	KeepMonetaryValues bool
	Clock              func() time.Time
	Logger             *zerolog.Logger
}

// Guard applies the guard passes. It holds no mutable state.
type Guard struct {
	cfg Config
	log zerolog.Logger
}

// New creates a Guard from cfg.
func New(cfg Config) *Guard {
	if cfg.MaxInsights <= 0 {
		cfg.MaxInsights = DefaultMaxInsights
	}
	if cfg.MaxActionItems <= 0 {
		cfg.MaxActionItems = DefaultMaxActionItems
	}
	if cfg.MinActionDescription <= 0 {
		cfg.MinActionDescription = DefaultMinActionDescription
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "guard").Logger()
	}
	return &Guard{cfg: cfg, log: log}
}

// GuardResponse returns the guarded copy of response.
func (g *Guard) GuardResponse(response jsonval.Value) (jsonval.Object, error) {
	obj, ok := response.(jsonval.Object)
	if !ok || len(obj) == 0 {
		return nil, ErrEmptyResponse
	}

	obj = g.limitInsights(obj)
	obj = g.clampNumbers(obj)
	if kind, found := findSuspicious(obj); found {
		g.log.Warn().Str("pattern", kind).Msg("model response blocked")
		return nil, fmt.Errorf("%w: %s", ErrSuspiciousContent, kind)
	}
	obj = g.ensureActionable(obj)
	obj = sanitizeText(obj).(jsonval.Object)

	stats := ComputeStats(obj)
	g.log.Debug().Int("insights", stats.Count).Float64("avg_confidence", stats.AverageConfidence).Msg("response guarded")

	return obj.With(MetadataKey, jsonval.Object{
		"timestamp": jsonval.String(g.cfg.Clock().UTC().Format(time.RFC3339)),
		"version":   jsonval.String(g.cfg.Version),
		"stats":     stats.ToValue(),
	}), nil
}

// limitInsights keeps the highest-confidence insights when there are too
// many. Ties keep their original order.
func (g *Guard) limitInsights(obj jsonval.Object) jsonval.Object {
	for _, key := range insightKeys {
		insights, ok := obj[key].(jsonval.Array)
		if !ok || len(insights) <= g.cfg.MaxInsights {
			continue
		}
		sorted := make(jsonval.Array, len(insights))
		copy(sorted, insights)
		sort.SliceStable(sorted, func(i, j int) bool {
			return confidenceOf(sorted[i]) > confidenceOf(sorted[j])
		})
		obj = obj.With(key, sorted[:g.cfg.MaxInsights])
	}
	return obj
}

// clampNumbers rounds every confidence member to an integer in [0,100] and
// bounds impact.amount inside insights.
func (g *Guard) clampNumbers(obj jsonval.Object) jsonval.Object {
	out := clampConfidence(obj).(jsonval.Object)
	if g.cfg.KeepMonetaryValues {
		return out
	}
	for _, key := range insightKeys {
		insights, ok := out[key].(jsonval.Array)
		if !ok {
			continue
		}
		clamped := make(jsonval.Array, len(insights))
		for i, item := range insights {
			clamped[i] = clampImpact(item)
		}
		out = out.With(key, clamped)
	}
	return out
}

func clampConfidence(v jsonval.Value) jsonval.Value {
	switch t := v.(type) {
	case jsonval.Array:
		out := make(jsonval.Array, len(t))
		for i, item := range t {
			out[i] = clampConfidence(item)
		}
		return out
	case jsonval.Object:
		out := make(jsonval.Object, len(t))
		for k, item := range t {
			if n, ok := item.(jsonval.Number); ok && k == "confidence" {
				out[k] = jsonval.Number(math.Round(clamp(float64(n), 0, 100)))
				continue
			}
			out[k] = clampConfidence(item)
		}
		return out
	default:
		return v
	}
}

func clampImpact(insight jsonval.Value) jsonval.Value {
	obj, ok := insight.(jsonval.Object)
	if !ok {
		return insight
	}
	impact := jsonval.ObjectAt(obj, "impact")
	amount, ok := jsonval.NumberAt(impact, "amount")
	if !ok {
		return insight
	}
	bounded := clamp(amount, -MaxMonetaryValue, MaxMonetaryValue)
	if bounded == amount {
		return insight
	}
	return obj.With("impact", impact.With("amount", jsonval.Number(bounded)))
}

// ensureActionable drops insights without a usable action item and keeps at
// most MaxActionItems per insight. Descriptions are measured after text
// cleaning so that a second pass makes the same decision.
func (g *Guard) ensureActionable(obj jsonval.Object) jsonval.Object {
	for _, key := range insightKeys {
		insights, ok := obj[key].(jsonval.Array)
		if !ok {
			continue
		}
		kept := jsonval.Array{}
		for _, item := range insights {
			insight, ok := item.(jsonval.Object)
			if !ok {
				continue
			}
			actions := jsonval.ArrayAt(insight, "actionItems")
			if len(actions) == 0 || !g.allDescribed(actions) {
				continue
			}
			if len(actions) > g.cfg.MaxActionItems {
				insight = insight.With("actionItems", append(jsonval.Array{}, actions[:g.cfg.MaxActionItems]...))
			}
			kept = append(kept, insight)
		}
		obj = obj.With(key, kept)
	}
	return obj
}

func (g *Guard) allDescribed(actions jsonval.Array) bool {
	for _, a := range actions {
		desc := cleanText(jsonval.StringAt(a, "description"))
		if len([]rune(desc)) < g.cfg.MinActionDescription {
			return false
		}
	}
	return true
}

func confidenceOf(v jsonval.Value) float64 {
	c, ok := jsonval.NumberAt(v, "confidence")
	if !ok {
		return math.Inf(-1)
	}
	return c
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
