package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// AnalysisRow mirrors the analyses table.
type AnalysisRow struct {
	AnalysisID string `bigquery:"analysis_id"` // REQUIRED
	UserRef    string `bigquery:"user_ref"`    // REQUIRED, anonymized
	Kind       string `bigquery:"kind"`        // REQUIRED
	ModelName  string `bigquery:"model_name"`
	Attempts   int64  `bigquery:"attempts"`

	Response string `bigquery:"response"` // JSON, guarded response

	InsightCount      int64               `bigquery:"insight_count"`
	AverageConfidence float64             `bigquery:"average_confidence"`
	ByPriority        bigquery.NullJSON   `bigquery:"by_priority"`
	DataQuality       int64               `bigquery:"data_quality"`
	ArchiveURI        bigquery.NullString `bigquery:"archive_uri"`

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// analysisToRow converts a domain analysis into its table row.
func analysisToRow(a *domain.Analysis) (*AnalysisRow, error) {
	row := &AnalysisRow{
		AnalysisID:        a.ID,
		UserRef:           a.UserRef,
		Kind:              a.Kind,
		ModelName:         a.Model,
		Attempts:          int64(a.Attempts),
		Response:          string(a.Response),
		InsightCount:      int64(a.InsightCount),
		AverageConfidence: a.AverageConfidence,
		DataQuality:       int64(a.DataQuality),
		CreatedTS:         a.CreatedAt,
	}
	if a.ByPriority != nil {
		data, err := json.Marshal(a.ByPriority)
		if err != nil {
			return nil, fmt.Errorf("analysisToRow: by_priority: %w", err)
		}
		row.ByPriority = bigquery.NullJSON{JSONVal: string(data), Valid: true}
	}
	if a.ArchiveURI != "" {
		row.ArchiveURI = bigquery.NullString{StringVal: a.ArchiveURI, Valid: true}
	}
	return row, nil
}

// toDomain converts a row back into a domain analysis.
func (r *AnalysisRow) toDomain() (*domain.Analysis, error) {
	a := &domain.Analysis{
		ID:                r.AnalysisID,
		UserRef:           r.UserRef,
		Kind:              r.Kind,
		Model:             r.ModelName,
		Attempts:          int(r.Attempts),
		Response:          json.RawMessage(r.Response),
		InsightCount:      int(r.InsightCount),
		AverageConfidence: r.AverageConfidence,
		DataQuality:       int(r.DataQuality),
		CreatedAt:         r.CreatedTS,
	}
	if r.ByPriority.Valid {
		if err := json.Unmarshal([]byte(r.ByPriority.JSONVal), &a.ByPriority); err != nil {
			return nil, fmt.Errorf("AnalysisRow.toDomain: by_priority: %w", err)
		}
	}
	if r.ArchiveURI.Valid {
		a.ArchiveURI = r.ArchiveURI.StringVal
	}
	return a, nil
}
