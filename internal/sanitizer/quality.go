package sanitizer

import (
	"time"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

// Quality levels reported by AssessDataQuality.
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
)

// DataQuality describes how much the model has to work with.
type DataQuality struct {
	Score            int      `json:"score"`
	Level            string   `json:"level"`
	TransactionCount int      `json:"transactionCount"`
	SpanDays         int      `json:"spanDays"`
	Missing          []string `json:"missing"`
}

// ToValue converts q into the _metadata.dataQuality block.
func (q DataQuality) ToValue() jsonval.Value {
	missing := make(jsonval.Array, len(q.Missing))
	for i, m := range q.Missing {
		missing[i] = jsonval.String(m)
	}
	return jsonval.Object{
		"score":            jsonval.Number(q.Score),
		"level":            jsonval.String(q.Level),
		"transactionCount": jsonval.Number(q.TransactionCount),
		"spanDays":         jsonval.Number(q.SpanDays),
		"missing":          missing,
	}
}

// AssessDataQuality scores a raw bundle from 0 to 100. The components add up
// to more than 100 for rich bundles and the total is clamped.
func AssessDataQuality(data jsonval.Value) DataQuality {
	obj, _ := data.(jsonval.Object)
	txs, _ := obj[transactionsKey].(jsonval.Array)

	q := DataQuality{TransactionCount: len(txs), Missing: []string{}}

	if len(txs) > 0 {
		q.Score += 40
	} else {
		q.Missing = append(q.Missing, "transactions")
	}

	if !jsonval.IsEmpty(obj["categories"]) || hasTransactionCategories(txs) {
		q.Score += 20
	} else {
		q.Missing = append(q.Missing, "categories")
	}

	for _, key := range []string{"budgets", "goals"} {
		if !jsonval.IsEmpty(obj[key]) {
			q.Score += 20
		} else {
			q.Missing = append(q.Missing, key)
		}
	}

	if len(txs) >= 50 {
		q.Score += 20
	}
	if len(txs) >= 20 {
		q.Score += 10
	}

	q.SpanDays = spanDays(txs)
	if q.SpanDays >= 90 {
		q.Score += 20
	}

	if q.Score > 100 {
		q.Score = 100
	}

	switch {
	case q.Score >= 80:
		q.Level = QualityHigh
	case q.Score >= 50:
		q.Level = QualityMedium
	default:
		q.Level = QualityLow
	}
	return q
}

func hasTransactionCategories(txs jsonval.Array) bool {
	for _, item := range txs {
		tx, ok := item.(jsonval.Object)
		if !ok {
			continue
		}
		if c, ok := tx["category"].(jsonval.String); ok && c != "" {
			return true
		}
	}
	return false
}

// spanDays measures the calendar distance between the earliest and latest
// parseable transaction dates. Only the YYYY-MM-DD prefix is read.
func spanDays(txs jsonval.Array) int {
	var first, last time.Time
	for _, item := range txs {
		tx, ok := item.(jsonval.Object)
		if !ok {
			continue
		}
		s, ok := tx["date"].(jsonval.String)
		if !ok || len(s) < 10 {
			continue
		}
		d, err := time.Parse(time.DateOnly, string(s[:10]))
		if err != nil {
			continue
		}
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if last.IsZero() || d.After(last) {
			last = d
		}
	}
	if first.IsZero() {
		return 0
	}
	return int(last.Sub(first).Hours() / 24)
}
