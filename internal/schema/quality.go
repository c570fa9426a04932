package schema

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

// DefaultConfidenceThreshold is used by FilterByConfidence callers that have
// no configured threshold.
const DefaultConfidenceThreshold = 70

const (
	maxImpactAmount     = 1_000_000
	minImpactPercentage = -1000
	maxImpactPercentage = 1000
)

// SanitizeToSchema keeps only the top-level members declared by the schema
// for kind. It does not check validity. Non-object responses and unknown
// kinds yield an empty object.
func SanitizeToSchema(response jsonval.Value, kind Kind) jsonval.Object {
	out := jsonval.Object{}
	c, ok := schemas[kind]
	obj, isObj := response.(jsonval.Object)
	if !ok || !isObj {
		return out
	}
	for k, v := range obj {
		if _, declared := c.properties[k]; declared {
			out[k] = v
		}
	}
	return out
}

// MeetsQualityStandards reports whether a response is worth showing: at least
// one insight, one of them with confidence of 70 or more, and every insight
// carrying an action item and a data reference.
func MeetsQualityStandards(response jsonval.Value) bool {
	insights := insightsOf(response)
	if len(insights) == 0 {
		return false
	}
	confident := false
	for _, item := range insights {
		insight, ok := item.(jsonval.Object)
		if !ok {
			return false
		}
		if len(jsonval.ArrayAt(insight, "actionItems")) == 0 || len(jsonval.ArrayAt(insight, "dataReferences")) == 0 {
			return false
		}
		if c, _ := jsonval.NumberAt(insight, "confidence"); c >= DefaultConfidenceThreshold {
			confident = true
		}
	}
	return confident
}

// FilterByConfidence returns a copy of response keeping only insights whose
// confidence is at least threshold. Insights without a numeric confidence
// are dropped.
func FilterByConfidence(response jsonval.Value, threshold float64) jsonval.Value {
	obj, ok := response.(jsonval.Object)
	if !ok {
		return response
	}
	out := obj
	for _, key := range []string{KindSingle.InsightsKey(), KindIntegrated.InsightsKey()} {
		insights, ok := obj[key].(jsonval.Array)
		if !ok {
			continue
		}
		kept := jsonval.Array{}
		for _, item := range insights {
			if c, ok := jsonval.NumberAt(item, "confidence"); ok && c >= threshold {
				kept = append(kept, item)
			}
		}
		out = out.With(key, kept)
	}
	return out
}

// NumericReport lists numeric fields outside their expected ranges.
type NumericReport struct {
	IsValid bool     `json:"isValid"`
	Issues  []string `json:"issues"`
}

// ValidateNumericRanges checks confidence, impact.amount and
// impact.percentage without failing the response. It is meant for monitoring.
func ValidateNumericRanges(response jsonval.Value) NumericReport {
	report := NumericReport{IsValid: true, Issues: []string{}}
	check := func(path string, v, lo, hi float64) {
		if v < lo || v > hi {
			report.IsValid = false
			report.Issues = append(report.Issues, fmt.Sprintf("%s %g outside [%g, %g]", path, v, lo, hi))
		}
	}

	key := insightsKeyOf(response)
	for i, item := range insightsOf(response) {
		path := fmt.Sprintf("%s[%d]", key, i)
		if c, ok := jsonval.NumberAt(item, "confidence"); ok {
			check(path+".confidence", c, 0, 100)
		}
		if a, ok := jsonval.NumberAt(item, "impact", "amount"); ok {
			check(path+".impact.amount", a, 0, maxImpactAmount)
		}
		if p, ok := jsonval.NumberAt(item, "impact", "percentage"); ok {
			check(path+".impact.percentage", p, minImpactPercentage, maxImpactPercentage)
		}
	}
	return report
}

func insightsKeyOf(response jsonval.Value) string {
	if _, ok := jsonval.Lookup(response, KindIntegrated.InsightsKey()); ok {
		if _, single := jsonval.Lookup(response, KindSingle.InsightsKey()); !single {
			return KindIntegrated.InsightsKey()
		}
	}
	return KindSingle.InsightsKey()
}

func insightsOf(response jsonval.Value) jsonval.Array {
	return jsonval.ArrayAt(response, insightsKeyOf(response))
}

// Validator wraps the package functions with logging.
type Validator struct {
	log zerolog.Logger
}

// NewValidator returns a Validator that logs through log.
func NewValidator(log zerolog.Logger) *Validator {
	return &Validator{log: log.With().Str("component", "schema").Logger()}
}

// Validate runs Validate and logs the outcome. Only paths and rule names are
// logged, never response text.
func (v *Validator) Validate(response jsonval.Value, kind Kind) Result {
	res := Validate(response, kind)
	for _, w := range res.Warnings {
		v.log.Warn().Str("kind", string(kind)).Str("path", w.Path).Str("rule", w.Rule).Msg("response validation warning")
	}
	if !res.IsValid {
		rulesHit := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			rulesHit = append(rulesHit, e.Rule)
		}
		v.log.Info().Str("kind", string(kind)).Strs("rules", rulesHit).Int("errors", len(res.Errors)).Msg("response rejected")
	}
	return res
}
