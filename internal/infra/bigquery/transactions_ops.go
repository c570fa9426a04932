package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// ListTransactions implements advisor.TransactionSource.
func (r *Repository) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	rows, err := QueryTransactionsWithClient(ctx, r.client, r.projectID, r.datasetID, userID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// transactionsQuery builds the SQL and parameters for a user's transactions.
// A zero from or to leaves that bound open.
func transactionsQuery(projectID, datasetID, userID string, from, to time.Time) (string, []bigquery.QueryParameter) {
	var b strings.Builder
	b.WriteString(`
		SELECT
			transaction_id,
			user_id,
			transaction_date,
			amount,
			currency,
			raw_description,
			category_name,
			subcategory_name,
			created_ts
		FROM ` + tableRef(projectID, datasetID, transactionsTable) + `
		WHERE user_id = @user_id`)

	params := []bigquery.QueryParameter{{Name: "user_id", Value: userID}}
	if !from.IsZero() {
		b.WriteString("\n\t\t  AND transaction_date >= @start_date")
		params = append(params, bigquery.QueryParameter{Name: "start_date", Value: civil.DateOf(from)})
	}
	if !to.IsZero() {
		b.WriteString("\n\t\t  AND transaction_date <= @end_date")
		params = append(params, bigquery.QueryParameter{Name: "end_date", Value: civil.DateOf(to)})
	}
	b.WriteString("\n\t\tORDER BY transaction_date, created_ts\n")
	return b.String(), params
}

// QueryTransactionsWithClient reads a user's transactions in date order.
func QueryTransactionsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, userID string, from, to time.Time) ([]*TransactionRow, error) {
	sql, params := transactionsQuery(projectID, datasetID, userID, from, to)
	q := client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactions: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactions: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
