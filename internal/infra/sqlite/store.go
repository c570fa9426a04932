// Package sqlite is the local SQLite backend for analyses and transactions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/finance-insights/internal/domain"
)

const (
	// Fixed width so created_at sorts lexicographically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	dateLayout = "2006-01-02"
)

// Store implements the analysis repository and transaction source on SQLite.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open creates the database file if needed, runs migrations and returns a Store.
func Open(dbPath string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("Open: create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("Open: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}

	return &Store{db: db, log: log.With().Str("component", "sqlite").Logger()}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveAnalysis implements advisor.InsightRepository.
func (s *Store) SaveAnalysis(ctx context.Context, a *domain.Analysis) error {
	var byPriority sql.NullString
	if a.ByPriority != nil {
		data, err := json.Marshal(a.ByPriority)
		if err != nil {
			return fmt.Errorf("SaveAnalysis: by_priority: %w", err)
		}
		byPriority = sql.NullString{String: string(data), Valid: true}
	}
	archiveURI := sql.NullString{String: a.ArchiveURI, Valid: a.ArchiveURI != ""}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (
			id, user_ref, kind, model, attempts, response,
			insight_count, average_confidence, by_priority, data_quality,
			archive_uri, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserRef, a.Kind, a.Model, a.Attempts, string(a.Response),
		a.InsightCount, a.AverageConfidence, byPriority, a.DataQuality,
		archiveURI, a.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("SaveAnalysis: insert: %w", err)
	}

	s.log.Debug().Str("analysis_id", a.ID).Str("kind", a.Kind).Msg("analysis saved")
	return nil
}

const analysisColumns = `id, user_ref, kind, model, attempts, response,
	insight_count, average_confidence, by_priority, data_quality,
	archive_uri, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var (
		a          domain.Analysis
		response   string
		byPriority sql.NullString
		archiveURI sql.NullString
		createdAt  string
	)
	err := row.Scan(
		&a.ID, &a.UserRef, &a.Kind, &a.Model, &a.Attempts, &response,
		&a.InsightCount, &a.AverageConfidence, &byPriority, &a.DataQuality,
		&archiveURI, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	a.Response = json.RawMessage(response)
	if byPriority.Valid {
		if err := json.Unmarshal([]byte(byPriority.String), &a.ByPriority); err != nil {
			return nil, fmt.Errorf("by_priority: %w", err)
		}
	}
	a.ArchiveURI = archiveURI.String
	if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	return &a, nil
}

// GetAnalysis implements advisor.InsightRepository.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*domain.Analysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetAnalysis: %s: %w", id, domain.ErrAnalysisNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAnalysis: %w", err)
	}
	return a, nil
}

// ListAnalyses implements advisor.InsightRepository.
func (s *Store) ListAnalyses(ctx context.Context, userRef string, limit int) ([]*domain.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+analysisColumns+`
		FROM analyses
		WHERE user_ref = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, userRef, limit)
	if err != nil {
		return nil, fmt.Errorf("ListAnalyses: query: %w", err)
	}
	defer rows.Close()

	out := []*domain.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAnalyses: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAnalyses: rows: %w", err)
	}
	return out, nil
}

// InsertTransactions stores transactions for userID in one transaction.
func (s *Store) InsertTransactions(ctx context.Context, userID string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("InsertTransactions: begin: %w", err)
	}
	defer dbtx.Rollback()

	stmt, err := dbtx.PrepareContext(ctx, `
		INSERT INTO transactions (user_id, date, description, amount, currency, category, subcategory)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("InsertTransactions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx, userID, tx.Date.Format(dateLayout), tx.Description,
			tx.Amount, tx.Currency, tx.Category, tx.Subcategory); err != nil {
			return fmt.Errorf("InsertTransactions: insert: %w", err)
		}
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("InsertTransactions: commit: %w", err)
	}
	s.log.Info().Int("count", len(txs)).Msg("transactions imported")
	return nil
}

// ListTransactions implements advisor.TransactionSource.
func (s *Store) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	query := `SELECT date, description, amount, currency, category, subcategory
		FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, from.Format(dateLayout))
	}
	if !to.IsZero() {
		query += ` AND date <= ?`
		args = append(args, to.Format(dateLayout))
	}
	query += ` ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			tx   domain.Transaction
			date string
		)
		if err := rows.Scan(&date, &tx.Description, &tx.Amount, &tx.Currency, &tx.Category, &tx.Subcategory); err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}
		if tx.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("ListTransactions: date %q: %w", date, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactions: rows: %w", err)
	}
	return out, nil
}
