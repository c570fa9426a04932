// Package sanitizer removes personal data from a financial bundle before it
// is sent to a generative model.
//
// SanitizeForAI applies four passes in order: RemovePII, SummarizeTransactions,
// ScrubPatterns and RoundNumbers. Each pass is exported, idempotent and never
// mutates its input.
package sanitizer

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

// DefaultSchemaVersion is stamped into _metadata when Config leaves it empty.
const DefaultSchemaVersion = "1.0"

const anonymizedIDLength = 16

// Config carries the values a Sanitizer needs from its environment.
type Config struct {
	// Salt is mixed into every anonymized user id. It must stay stable across
	// restarts or the same user stops mapping to the same id.
	Salt          string
	SchemaVersion string
	Clock         func() time.Time
	Logger        *zerolog.Logger
}

// Sanitizer holds the salt and clock. It has no mutable state and is safe for
// concurrent use.
type Sanitizer struct {
	salt          string
	schemaVersion string
	now           func() time.Time
	log           zerolog.Logger
}

// New creates a Sanitizer from cfg.
func New(cfg Config) *Sanitizer {
	s := &Sanitizer{
		salt:          cfg.Salt,
		schemaVersion: cfg.SchemaVersion,
		now:           cfg.Clock,
		log:           zerolog.Nop(),
	}
	if s.schemaVersion == "" {
		s.schemaVersion = DefaultSchemaVersion
	}
	if s.now == nil {
		s.now = time.Now
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "sanitizer").Logger()
	}
	return s
}

// SanitizeForAI returns a copy of bundle with PII removed, transactions
// summarized, sensitive substrings redacted and numbers rounded.
func SanitizeForAI(bundle jsonval.Value) jsonval.Value {
	return RoundNumbers(ScrubPatterns(SummarizeTransactions(RemovePII(bundle))))
}

// SanitizeForAI is the method form of the package function.
func (s *Sanitizer) SanitizeForAI(bundle jsonval.Value) jsonval.Value {
	return SanitizeForAI(bundle)
}

// RemovePII drops every object member whose key is a PII field name, at any depth.
func RemovePII(v jsonval.Value) jsonval.Value {
	return jsonval.DropKeys(v, IsPIIField)
}

// ScrubPatterns redacts sensitive substrings in every string leaf and object
// key. Whole numbers shaped like a card, SSN or phone number become the
// redaction token.
func ScrubPatterns(v jsonval.Value) jsonval.Value {
	return jsonval.MapKeys(jsonval.MapLeaves(v, scrubLeaf), scrubText)
}

// RoundNumbers rounds every numeric leaf to two decimal places.
func RoundNumbers(v jsonval.Value) jsonval.Value {
	return jsonval.MapNumbers(v, round2)
}

func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

// AnonymizeUserID maps a real user id to a stable pseudonym.
func (s *Sanitizer) AnonymizeUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID + s.salt))
	return "user_" + hex.EncodeToString(sum[:])[:anonymizedIDLength]
}

// PrepareForAnalysis sanitizes data and attaches the anonymized user id and a
// _metadata block. Data quality is assessed on the raw bundle, before
// transactions are summarized away.
func (s *Sanitizer) PrepareForAnalysis(data jsonval.Value, userID string) jsonval.Value {
	quality := AssessDataQuality(data)

	sanitized, ok := SanitizeForAI(data).(jsonval.Object)
	if !ok {
		sanitized = jsonval.Object{}
	}

	anonID := s.AnonymizeUserID(userID)
	out := sanitized.
		With("userId", jsonval.String(anonID)).
		With("_metadata", jsonval.Object{
			"sanitizedAt":   jsonval.String(s.now().UTC().Format(time.RFC3339)),
			"schemaVersion": jsonval.String(s.schemaVersion),
			"dataQuality":   quality.ToValue(),
		})

	s.log.Debug().
		Str("user", anonID).
		Int("transactions", quality.TransactionCount).
		Int("data_quality", quality.Score).
		Msg("bundle prepared for analysis")

	return out
}

// AssessDataQuality is the method form of the package function.
func (s *Sanitizer) AssessDataQuality(data jsonval.Value) DataQuality {
	return AssessDataQuality(data)
}

// ValidateSanitized is the method form of the package function. Failures are
// logged with the pattern or field name only.
func (s *Sanitizer) ValidateSanitized(v jsonval.Value) Validation {
	result := ValidateSanitized(v)
	if !result.IsValid {
		s.log.Warn().
			Str("pattern", result.Pattern).
			Str("field", result.Field).
			Str("path", result.Path).
			Msg("sanitized bundle failed final check")
	}
	return result
}
