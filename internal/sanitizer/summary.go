package sanitizer

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

const (
	transactionsKey = "transactions"
	summaryKey      = "transactionSummary"
	uncategorized   = "uncategorized"
)

var monthKey = regexp.MustCompile(`^\d{4}-\d{2}$`)

type bucket struct {
	count int
	total decimal.Decimal
}

// SummarizeTransactions replaces a top-level transactions array with a
// transactionSummary object. Values without a transactions array are
// returned unchanged.
func SummarizeTransactions(v jsonval.Value) jsonval.Value {
	obj, ok := v.(jsonval.Object)
	if !ok {
		return v
	}
	raw, ok := obj[transactionsKey].(jsonval.Array)
	if !ok {
		return v
	}
	return obj.Without(transactionsKey).With(summaryKey, summarize(raw))
}

func summarize(txs jsonval.Array) jsonval.Object {
	var (
		count            int
		total            = decimal.Zero
		categories       = map[string]*bucket{}
		months           = map[string]decimal.Decimal{}
		earliest, latest string
		seenDate         bool
	)

	for _, item := range txs {
		tx, ok := item.(jsonval.Object)
		if !ok {
			continue
		}
		count++

		amount := amountOf(tx)
		total = total.Add(amount)

		name := categoryOf(tx)
		b, ok := categories[name]
		if !ok {
			b = &bucket{total: decimal.Zero}
			categories[name] = b
		}
		b.count++
		b.total = b.total.Add(amount)

		date, ok := tx["date"].(jsonval.String)
		if !ok || date == "" {
			continue
		}
		d := string(date)
		if len(d) >= 7 && monthKey.MatchString(d[:7]) {
			months[d[:7]] = months[d[:7]].Add(amount)
		}
		if !seenDate || d < earliest {
			earliest = d
		}
		if !seenDate || d > latest {
			latest = d
		}
		seenDate = true
	}

	byCategory := make(jsonval.Object, len(categories))
	for name, b := range categories {
		byCategory[name] = jsonval.Object{
			"count": jsonval.Number(b.count),
			"total": money(b.total),
		}
	}

	byMonth := make(jsonval.Object, len(months))
	for month, sum := range months {
		byMonth[month] = money(sum)
	}

	var dateRange jsonval.Value = jsonval.Null{}
	if seenDate {
		dateRange = jsonval.Object{
			"earliest": jsonval.String(earliest),
			"latest":   jsonval.String(latest),
		}
	}

	average := decimal.Zero
	if count > 0 {
		average = total.DivRound(decimal.NewFromInt(int64(count)), 2)
	}

	return jsonval.Object{
		"totalCount":    jsonval.Number(count),
		"totalAmount":   money(total),
		"byCategory":    byCategory,
		"byMonth":       byMonth,
		"dateRange":     dateRange,
		"averageAmount": money(average),
	}
}

// categoryOf names the bucket a transaction is counted in. Names that are
// themselves PII field names are folded into a redacted bucket so the summary
// cannot reintroduce a denylisted key. Sensitive substrings are scrubbed here
// too, so categories that redact to the same name share one bucket.
func categoryOf(tx jsonval.Object) string {
	c, ok := tx["category"].(jsonval.String)
	name := strings.TrimSpace(string(c))
	if !ok || name == "" {
		return uncategorized
	}
	if IsPIIField(name) {
		return RedactionToken
	}
	return scrubText(name)
}

// amountOf accepts numbers and numeric strings; anything else counts as zero.
func amountOf(tx jsonval.Object) decimal.Decimal {
	var f float64
	switch a := tx["amount"].(type) {
	case jsonval.Number:
		f = float64(a)
	case jsonval.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(string(a)), 64)
		if err != nil {
			return decimal.Zero
		}
		f = parsed
	default:
		return decimal.Zero
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func money(d decimal.Decimal) jsonval.Number {
	return jsonval.Number(d.Round(2).InexactFloat64())
}
