package sanitizer

import (
	"github.com/dvloznov/finance-insights/internal/jsonval"
)

// Validation is the outcome of ValidateSanitized. On failure exactly one of
// Pattern or Field is set, along with the path where it was found.
type Validation struct {
	IsValid bool   `json:"isValid"`
	Pattern string `json:"pattern,omitempty"`
	Field   string `json:"field,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ValidateSanitized checks that no denylisted field name and no sensitive
// pattern survives anywhere in v, whether in object keys, string leaves or
// numbers that serialize as a card, SSN or phone number. It is the last
// check before data is sent to a model.
func ValidateSanitized(v jsonval.Value) Validation {
	result := Validation{IsValid: true}
	jsonval.Walk(v, func(path string, node jsonval.Value) bool {
		if !result.IsValid {
			return false
		}
		switch t := node.(type) {
		case jsonval.String:
			if name, ok := matchPattern(string(t)); ok {
				result = Validation{Pattern: name, Path: path}
			}
		case jsonval.Number:
			if name, ok := numericPattern(float64(t)); ok {
				result = Validation{Pattern: name, Path: path}
			}
		case jsonval.Object:
			for _, k := range t.Keys() {
				if IsPIIField(k) {
					result = Validation{Field: k, Path: join(path, k)}
					return false
				}
				if name, ok := matchPattern(k); ok {
					result = Validation{Pattern: name, Path: join(path, k)}
					return false
				}
			}
		}
		return result.IsValid
	})
	return result
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
