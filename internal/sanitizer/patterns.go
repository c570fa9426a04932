package sanitizer

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

// RedactionToken replaces every sensitive substring.
const RedactionToken = "[REDACTED]"

// piiFields are compared against the lowercase form of object keys.
var piiFields = map[string]struct{}{
	"email":         {},
	"phone":         {},
	"address":       {},
	"city":          {},
	"state":         {},
	"zip":           {},
	"ssn":           {},
	"taxid":         {},
	"accountnumber": {},
	"routingnumber": {},
	"password":      {},
	"token":         {},
	"secret":        {},
	"apikey":        {},
	"firstname":     {},
	"lastname":      {},
	"fullname":      {},
	"birthdate":     {},
	"ipaddress":     {},
	"useragent":     {},
}

// IsPIIField reports whether key names a field that must never leave the service.
func IsPIIField(key string) bool {
	_, ok := piiFields[strings.ToLower(key)]
	return ok
}

type sensitivePattern struct {
	name string
	re   *regexp.Regexp
}

// Order matters only for which name ValidateSanitized reports.
var sensitivePatterns = []sensitivePattern{
	{name: "ssn", re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{name: "card_number", re: regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`)},
	{name: "email", re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{name: "phone", re: regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{name: "labelled_number", re: regexp.MustCompile(`(?i)(account\s*number|ssn)\W*\d+`)},
}

// scrubText redacts every sensitive substring in s. A redaction can open a
// word boundary next to digits that were not matched before, so patterns are
// re-applied until nothing changes. Every match holds a digit or an '@' and
// the token holds neither, so the loop terminates.
func scrubText(s string) string {
	for {
		out := s
		for _, p := range sensitivePatterns {
			out = p.re.ReplaceAllString(out, RedactionToken)
		}
		if out == s {
			return out
		}
		s = out
	}
}

// matchPattern returns the name of the first sensitive pattern found in s.
func matchPattern(s string) (string, bool) {
	for _, p := range sensitivePatterns {
		if p.re.MatchString(s) {
			return p.name, true
		}
	}
	return "", false
}

// numericPattern reports whether a number, once rounded the way RoundNumbers
// rounds it, is a whole number whose digits form a card, SSN or phone number.
// Fractional amounts are left alone.
func numericPattern(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	f = round2(f)
	if f != math.Trunc(f) {
		return "", false
	}
	return matchPattern(strconv.FormatFloat(math.Abs(f), 'f', -1, 64))
}

// scrubLeaf redacts sensitive substrings in strings and replaces numbers
// that look like identifiers with the redaction token.
func scrubLeaf(v jsonval.Value) jsonval.Value {
	switch t := v.(type) {
	case jsonval.String:
		return jsonval.String(scrubText(string(t)))
	case jsonval.Number:
		if _, ok := numericPattern(float64(t)); ok {
			return jsonval.String(RedactionToken)
		}
	}
	return v
}
