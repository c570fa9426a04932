package guard

import (
	"fmt"
	"math"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

// These checks are not part of GuardResponse. Callers opt into them.

// DisclaimerKey holds the note added by AddConfidenceDisclaimer.
const DisclaimerKey = "disclaimer"

// LowConfidenceThreshold marks insights that earn a disclaimer.
const LowConfidenceThreshold = 70

// ConfidenceDisclaimer is the note shown next to low-confidence insights.
const ConfidenceDisclaimer = "Some insights are based on limited data and have lower confidence. Review them before acting."

var amountRequired = map[string]struct{}{
	"adjust_budget":    {},
	"increase_savings": {},
}

// ValidateDataReferences requires a parameters.suggestedAmount on every
// adjust_budget and increase_savings action item.
func ValidateDataReferences(response jsonval.Value) error {
	for _, key := range insightKeys {
		for i, insight := range jsonval.ArrayAt(response, key) {
			for j, action := range jsonval.ArrayAt(insight, "actionItems") {
				if _, needs := amountRequired[jsonval.StringAt(action, "type")]; !needs {
					continue
				}
				if v, ok := jsonval.Lookup(action, "parameters", "suggestedAmount"); ok && v.Kind() != jsonval.KindNull {
					continue
				}
				return fmt.Errorf("%w: %s[%d].actionItems[%d]", ErrMissingSuggestedAmount, key, i, j)
			}
		}
	}
	return nil
}

// AddConfidenceDisclaimer returns a copy of response with a disclaimer when
// any insight has confidence below LowConfidenceThreshold.
func AddConfidenceDisclaimer(response jsonval.Object) jsonval.Object {
	for _, key := range insightKeys {
		for _, insight := range jsonval.ArrayAt(response, key) {
			if c, ok := jsonval.NumberAt(insight, "confidence"); ok && c < LowConfidenceThreshold {
				return response.With(DisclaimerKey, jsonval.String(ConfidenceDisclaimer))
			}
		}
	}
	return response
}

var monetaryFields = map[string]struct{}{
	"amount": {},
	"value":  {},
	"total":  {},
}

// ValidateMonetaryValues fails when any member named amount, value or total
// holds a number beyond MaxMonetaryValue in magnitude, at any depth.
func ValidateMonetaryValues(response jsonval.Value) error {
	var err error
	jsonval.Walk(response, func(path string, v jsonval.Value) bool {
		if err != nil {
			return false
		}
		obj, ok := v.(jsonval.Object)
		if !ok {
			return true
		}
		for _, k := range obj.Keys() {
			if _, monetary := monetaryFields[k]; !monetary {
				continue
			}
			if n, ok := obj[k].(jsonval.Number); ok && math.Abs(float64(n)) > MaxMonetaryValue {
				field := k
				if path != "" {
					field = path + "." + k
				}
				err = fmt.Errorf("%w: %s", ErrMonetaryOutOfRange, field)
				return false
			}
		}
		return true
	})
	return err
}
