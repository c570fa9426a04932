package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-insights/internal/domain"
)

const analysisColumns = `
	analysis_id, user_ref, kind, model_name, attempts,
	TO_JSON_STRING(response) AS response,
	insight_count, average_confidence, by_priority, data_quality,
	archive_uri, created_ts`

// SaveAnalysis implements advisor.InsightRepository.
func (r *Repository) SaveAnalysis(ctx context.Context, a *domain.Analysis) error {
	return InsertAnalysisWithClient(ctx, r.client, r.projectID, r.datasetID, a)
}

// GetAnalysis implements advisor.InsightRepository.
func (r *Repository) GetAnalysis(ctx context.Context, id string) (*domain.Analysis, error) {
	return GetAnalysisWithClient(ctx, r.client, r.projectID, r.datasetID, id)
}

// ListAnalyses implements advisor.InsightRepository.
func (r *Repository) ListAnalyses(ctx context.Context, userRef string, limit int) ([]*domain.Analysis, error) {
	return ListAnalysesWithClient(ctx, r.client, r.projectID, r.datasetID, userRef, limit)
}

// InsertAnalysisWithClient inserts one analysis. Uses DML INSERT to avoid
// streaming buffer issues on rows that are read back right away.
func InsertAnalysisWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, a *domain.Analysis) error {
	row, err := analysisToRow(a)
	if err != nil {
		return fmt.Errorf("InsertAnalysis: %w", err)
	}

	q := client.Query(`
		INSERT INTO ` + tableRef(projectID, datasetID, analysesTable) + ` (
			analysis_id, user_ref, kind, model_name, attempts,
			response, insight_count, average_confidence, by_priority,
			data_quality, archive_uri, created_ts
		)
		VALUES (
			@analysis_id, @user_ref, @kind, @model_name, @attempts,
			PARSE_JSON(@response), @insight_count, @average_confidence, SAFE.PARSE_JSON(NULLIF(@by_priority, '')),
			@data_quality, @archive_uri, @created_ts
		)
	`)

	q.Parameters = []bigquery.QueryParameter{
		{Name: "analysis_id", Value: row.AnalysisID},
		{Name: "user_ref", Value: row.UserRef},
		{Name: "kind", Value: row.Kind},
		{Name: "model_name", Value: row.ModelName},
		{Name: "attempts", Value: row.Attempts},
		{Name: "response", Value: row.Response},
		{Name: "insight_count", Value: row.InsightCount},
		{Name: "average_confidence", Value: row.AverageConfidence},
		{Name: "by_priority", Value: row.ByPriority.JSONVal},
		{Name: "data_quality", Value: row.DataQuality},
		{Name: "archive_uri", Value: row.ArchiveURI},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertAnalysis: %w", err)
	}
	return nil
}

// GetAnalysisWithClient loads one analysis by id.
func GetAnalysisWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, id string) (*domain.Analysis, error) {
	q := client.Query(`
		SELECT ` + analysisColumns + `
		FROM ` + tableRef(projectID, datasetID, analysesTable) + `
		WHERE analysis_id = @analysis_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "analysis_id", Value: id},
	}

	rows, err := readAnalyses(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetAnalysis: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("GetAnalysis: %s: %w", id, domain.ErrAnalysisNotFound)
	}
	return rows[0], nil
}

// ListAnalysesWithClient loads the newest analyses for userRef.
func ListAnalysesWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, userRef string, limit int) ([]*domain.Analysis, error) {
	q := client.Query(`
		SELECT ` + analysisColumns + `
		FROM ` + tableRef(projectID, datasetID, analysesTable) + `
		WHERE user_ref = @user_ref
		ORDER BY created_ts DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_ref", Value: userRef},
		{Name: "limit", Value: limit},
	}

	rows, err := readAnalyses(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListAnalyses: %w", err)
	}
	return rows, nil
}

func readAnalyses(ctx context.Context, q *bigquery.Query) ([]*domain.Analysis, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	out := []*domain.Analysis{}
	for {
		var r AnalysisRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		a, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
