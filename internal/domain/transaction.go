package domain

import (
	"time"
)

// Transaction is one stored transaction, as read from a TransactionSource.
// It is converted into a raw bundle entry before sanitization.
type Transaction struct {
	Date        time.Time // transaction date, day precision
	Description string
	Amount      float64 // IN = positive, OUT = negative
	Currency    string
	Category    string
	Subcategory string
}

// BundleEntry renders t in the shape the sanitizer aggregates: ISO date,
// signed amount and category.
func (t Transaction) BundleEntry() map[string]interface{} {
	entry := map[string]interface{}{
		"date":        t.Date.Format("2006-01-02"),
		"amount":      t.Amount,
		"currency":    t.Currency,
		"description": t.Description,
	}
	if t.Category != "" {
		entry["category"] = t.Category
	}
	if t.Subcategory != "" {
		entry["subcategory"] = t.Subcategory
	}
	return entry
}
