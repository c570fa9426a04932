package guard

import (
	"regexp"
	"strings"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

var stripChars = strings.NewReplacer(
	"<", "",
	">", "",
	`\`, "",
	"$", "",
	";", "",
	"|", "",
	"&", "",
)

// cleanText removes markup and shell metacharacters, collapses whitespace
// and trims.
func cleanText(s string) string {
	return strings.Join(strings.Fields(stripChars.Replace(s)), " ")
}

func sanitizeText(v jsonval.Value) jsonval.Value {
	return jsonval.MapStrings(v, cleanText)
}

type suspiciousPattern struct {
	name string
	re   *regexp.Regexp
}

// Matched against the serialized response, numbers included. A digit run
// must not continue a longer number or a fraction, but may touch letters, so
// a card number glued to text still stops the response.
var suspiciousPatterns = []suspiciousPattern{
	{name: "card_number", re: regexp.MustCompile(`(?:^|[^\d.])(?:\d{4}[- ]?){3}\d{4}(?:\D|$)`)},
	{name: "ssn", re: regexp.MustCompile(`(?:^|[^\d.])\d{3}-\d{2}-\d{4}(?:\D|$)`)},
	{name: "credential_keyword", re: regexp.MustCompile(`(?i)\b(?:credit card|ccv|pin|password)\b`)},
}

func findSuspicious(obj jsonval.Object) (string, bool) {
	data, err := jsonval.Marshal(obj)
	if err != nil {
		return "unserializable", true
	}
	for _, p := range suspiciousPatterns {
		if p.re.Match(data) {
			return p.name, true
		}
	}
	return "", false
}
