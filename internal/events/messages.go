package events

import (
	"encoding/json"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// InsightsGeneratedMessage announces a stored analysis. It carries ids and
// counters only; consumers fetch the analysis itself through the API.
type InsightsGeneratedMessage struct {
	AnalysisID        string         `json:"analysis_id"`
	UserRef           string         `json:"user_ref"`
	Kind              string         `json:"kind"`
	InsightCount      int            `json:"insight_count"`
	AverageConfidence float64        `json:"average_confidence"`
	ByPriority        map[string]int `json:"by_priority,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}

// NewInsightsGeneratedMessage builds the message for a.
func NewInsightsGeneratedMessage(a *domain.Analysis, now time.Time) *InsightsGeneratedMessage {
	return &InsightsGeneratedMessage{
		AnalysisID:        a.ID,
		UserRef:           a.UserRef,
		Kind:              a.Kind,
		InsightCount:      a.InsightCount,
		AverageConfidence: a.AverageConfidence,
		ByPriority:        a.ByPriority,
		Timestamp:         now.UTC(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *InsightsGeneratedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InsightsGeneratedMessageFromJSON decodes a message.
func InsightsGeneratedMessageFromJSON(data []byte) (*InsightsGeneratedMessage, error) {
	var msg InsightsGeneratedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
