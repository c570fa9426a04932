package schema

import (
	"fmt"
	"unicode/utf8"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

const (
	// HighConfidence is the confidence above which an insight needs corroboration.
	HighConfidence = 90
	// MinHighConfidenceReferences is the evidence required above HighConfidence.
	MinHighConfidenceReferences = 2
	// MinActionDescription is the shortest acceptable action item description.
	MinActionDescription = 10
)

// A rule inspects a structurally valid response and returns errors and warnings.
type rule func(response jsonval.Value, kind Kind) (errs, warns []Issue)

// rules run in order and share one engine for both kinds.
var rules = []rule{
	dataReferenceValues,
	confidenceEvidence,
	actionDescriptions,
}

// dataReferenceValues rejects null reference values. A zero is accepted but
// reported as a warning unless the reference is a count.
func dataReferenceValues(response jsonval.Value, kind Kind) (errs, warns []Issue) {
	eachInsight(response, kind, func(path string, insight jsonval.Object) {
		for j, ref := range jsonval.ArrayAt(insight, "dataReferences") {
			refObj, _ := ref.(jsonval.Object)
			refPath := fmt.Sprintf("%s.dataReferences[%d]", path, j)

			value, ok := refObj.Get("value")
			if !ok || value.Kind() == jsonval.KindNull {
				errs = append(errs, Issue{
					Path:    refPath + ".value",
					Rule:    "dataReferenceValue",
					Message: fmt.Sprintf("%s: value must be defined and non-null", refPath),
				})
				continue
			}
			if n, isNum := value.(jsonval.Number); isNum && n == 0 && jsonval.StringAt(refObj, "type") != "count" {
				warns = append(warns, Issue{
					Path:    refPath + ".value",
					Rule:    "zeroDataReference",
					Message: fmt.Sprintf("%s: value is 0 but type is not count", refPath),
				})
			}
		}
	})
	return errs, warns
}

func confidenceEvidence(response jsonval.Value, kind Kind) (errs, warns []Issue) {
	eachInsight(response, kind, func(path string, insight jsonval.Object) {
		confidence, _ := jsonval.NumberAt(insight, "confidence")
		refs := len(jsonval.ArrayAt(insight, "dataReferences"))
		if confidence > HighConfidence && refs < MinHighConfidenceReferences {
			errs = append(errs, Issue{
				Path: path,
				Rule: "confidenceEvidence",
				Message: fmt.Sprintf("%s: confidence %g requires at least %d data references, found %d",
					path, confidence, MinHighConfidenceReferences, refs),
			})
		}
	})
	return errs, nil
}

func actionDescriptions(response jsonval.Value, kind Kind) (errs, warns []Issue) {
	eachInsight(response, kind, func(path string, insight jsonval.Object) {
		for j, item := range jsonval.ArrayAt(insight, "actionItems") {
			desc := jsonval.StringAt(item, "description")
			if utf8.RuneCountInString(desc) < MinActionDescription {
				itemPath := fmt.Sprintf("%s.actionItems[%d]", path, j)
				errs = append(errs, Issue{
					Path: itemPath + ".description",
					Rule: "actionDescription",
					Message: fmt.Sprintf("%s: description must be at least %d characters, got %d",
						itemPath, MinActionDescription, utf8.RuneCountInString(desc)),
				})
			}
		}
	})
	return errs, nil
}

func eachInsight(response jsonval.Value, kind Kind, fn func(path string, insight jsonval.Object)) {
	key := kind.InsightsKey()
	for i, item := range jsonval.ArrayAt(response, key) {
		if insight, ok := item.(jsonval.Object); ok {
			fn(fmt.Sprintf("%s[%d]", key, i), insight)
		}
	}
}
