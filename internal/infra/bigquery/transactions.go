package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// TransactionRow is the subset of the transactions table read for analysis.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED STRING

	RawDescription  string              `bigquery:"raw_description"`
	CategoryName    bigquery.NullString `bigquery:"category_name"`
	SubcategoryName bigquery.NullString `bigquery:"subcategory_name"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// toDomain converts a row into a domain transaction. NUMERIC amounts are
// converted to the nearest float.
func (r *TransactionRow) toDomain() domain.Transaction {
	tx := domain.Transaction{
		Date:        r.TransactionDate.In(time.UTC),
		Description: r.RawDescription,
		Currency:    r.Currency,
	}
	if r.Amount != nil {
		tx.Amount, _ = r.Amount.Float64()
	}
	if r.CategoryName.Valid {
		tx.Category = r.CategoryName.StringVal
	}
	if r.SubcategoryName.Valid {
		tx.Subcategory = r.SubcategoryName.StringVal
	}
	return tx
}
