package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrAnalysisNotFound is returned by repositories when no analysis matches.
var ErrAnalysisNotFound = errors.New("analysis not found")

// Analysis is a stored analysis run. Response holds the guarded model
// response and nothing else from the model. UserRef is the anonymized user
// id; the real id is never stored.
type Analysis struct {
	ID       string `json:"id"`
	UserRef  string `json:"user_ref"`
	Kind     string `json:"kind"`
	Model    string `json:"model"`
	Attempts int    `json:"attempts"`

	Response json.RawMessage `json:"response"`

	InsightCount      int            `json:"insight_count"`
	AverageConfidence float64        `json:"average_confidence"`
	ByPriority        map[string]int `json:"by_priority"`
	DataQuality       int            `json:"data_quality"`

	ArchiveURI string    `json:"archive_uri,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
