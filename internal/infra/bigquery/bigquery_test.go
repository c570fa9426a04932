package bigquery

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/finance-insights/internal/advisor"
	"github.com/dvloznov/finance-insights/internal/domain"
)

var (
	_ advisor.InsightRepository = (*Repository)(nil)
	_ advisor.TransactionSource = (*Repository)(nil)
)

func TestAnalysisRowConversion(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &domain.Analysis{
		ID:                "a1",
		UserRef:           "user_0123456789abcdef",
		Kind:              "single",
		Model:             "gemini:gemini-2.5-flash",
		Attempts:          2,
		Response:          json.RawMessage(`{"insights":[]}`),
		InsightCount:      0,
		AverageConfidence: 0,
		ByPriority:        map[string]int{"high": 1, "medium": 0, "low": 0},
		DataQuality:       60,
		ArchiveURI:        "gs://bucket/analyses/a1.json",
		CreatedAt:         created,
	}

	row, err := analysisToRow(a)
	if err != nil {
		t.Fatalf("analysisToRow: %v", err)
	}
	if !row.ByPriority.Valid || !row.ArchiveURI.Valid {
		t.Fatalf("expected by_priority and archive_uri to be set: %+v", row)
	}
	if row.Attempts != 2 || row.DataQuality != 60 {
		t.Errorf("unexpected counters: %+v", row)
	}

	back, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if back.ID != a.ID || back.UserRef != a.UserRef || back.ArchiveURI != a.ArchiveURI {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if back.ByPriority["high"] != 1 {
		t.Errorf("ByPriority = %v", back.ByPriority)
	}
	if string(back.Response) != `{"insights":[]}` {
		t.Errorf("Response = %s", back.Response)
	}
}

func TestAnalysisRow_NullColumns(t *testing.T) {
	row := &AnalysisRow{AnalysisID: "a1", Response: `{}`}
	a, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if a.ArchiveURI != "" || a.ByPriority != nil {
		t.Errorf("null columns should stay empty: %+v", a)
	}

	row.ByPriority = bigquery.NullJSON{JSONVal: "not json", Valid: true}
	if _, err := row.toDomain(); err == nil {
		t.Error("expected error for malformed by_priority")
	}
}

func TestTransactionRow_ToDomain(t *testing.T) {
	row := &TransactionRow{
		TransactionID:   "t1",
		TransactionDate: civil.Date{Year: 2024, Month: time.January, Day: 5},
		Amount:          big.NewRat(-2345, 100),
		Currency:        "GBP",
		RawDescription:  "TESCO STORES",
		CategoryName:    bigquery.NullString{StringVal: "Groceries", Valid: true},
	}

	tx := row.toDomain()

	if tx.Amount != -23.45 {
		t.Errorf("Amount = %v, want -23.45", tx.Amount)
	}
	if got := tx.Date.Format("2006-01-02"); got != "2024-01-05" {
		t.Errorf("Date = %s", got)
	}
	if tx.Category != "Groceries" || tx.Subcategory != "" {
		t.Errorf("categories = %q/%q", tx.Category, tx.Subcategory)
	}
}

func TestTransactionsQuery(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		from, to   time.Time
		wantParams []string
	}{
		{"open range", time.Time{}, time.Time{}, []string{"user_id"}},
		{"from only", from, time.Time{}, []string{"user_id", "start_date"}},
		{"both bounds", from, to, []string{"user_id", "start_date", "end_date"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params := transactionsQuery("proj", "finance", "alice", tt.from, tt.to)

			if !strings.Contains(sql, "`proj.finance.transactions`") {
				t.Errorf("query does not reference the table: %s", sql)
			}
			if len(params) != len(tt.wantParams) {
				t.Fatalf("got %d params, want %d", len(params), len(tt.wantParams))
			}
			for i, name := range tt.wantParams {
				if params[i].Name != name {
					t.Errorf("param[%d] = %s, want %s", i, params[i].Name, name)
				}
				if !strings.Contains(sql, "@"+name) {
					t.Errorf("query is missing @%s", name)
				}
			}
		})
	}

	_, params := transactionsQuery("proj", "finance", "alice", from, to)
	if params[1].Value != (civil.Date{Year: 2024, Month: time.January, Day: 1}) {
		t.Errorf("start_date = %v", params[1].Value)
	}
}
