package guard

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

// Stats summarises the insights that survived guarding.
type Stats struct {
	Count             int            `json:"count"`
	AverageConfidence float64        `json:"averageConfidence"`
	ByPriority        map[string]int `json:"byPriority"`
}

var priorities = []string{"high", "medium", "low"}

// ComputeStats counts insights across both insight arrays. Unknown
// priorities are not counted in ByPriority.
func ComputeStats(response jsonval.Value) Stats {
	stats := Stats{ByPriority: map[string]int{}}
	for _, p := range priorities {
		stats.ByPriority[p] = 0
	}

	sum := decimal.Zero
	for _, key := range insightKeys {
		for _, item := range jsonval.ArrayAt(response, key) {
			stats.Count++
			if c, ok := jsonval.NumberAt(item, "confidence"); ok {
				sum = sum.Add(decimal.NewFromFloat(c))
			}
			p := jsonval.StringAt(item, "priority")
			if _, known := stats.ByPriority[p]; known {
				stats.ByPriority[p]++
			}
		}
	}
	if stats.Count > 0 {
		stats.AverageConfidence = sum.DivRound(decimal.NewFromInt(int64(stats.Count)), 2).InexactFloat64()
	}
	return stats
}

// ToValue renders s as the stats member of the audit block.
func (s Stats) ToValue() jsonval.Value {
	byPriority := make(jsonval.Object, len(s.ByPriority))
	for p, n := range s.ByPriority {
		byPriority[p] = jsonval.Number(n)
	}
	return jsonval.Object{
		"count":             jsonval.Number(s.Count),
		"averageConfidence": jsonval.Number(s.AverageConfidence),
		"byPriority":        byPriority,
	}
}

// StatsFromGuarded reads the stats back out of a guarded response.
func StatsFromGuarded(guarded jsonval.Value) (Stats, bool) {
	block := jsonval.ObjectAt(guarded, MetadataKey, "stats")
	if block == nil {
		return Stats{}, false
	}
	count, _ := jsonval.NumberAt(block, "count")
	avg, _ := jsonval.NumberAt(block, "averageConfidence")
	stats := Stats{Count: int(count), AverageConfidence: avg, ByPriority: map[string]int{}}
	for p, n := range jsonval.ObjectAt(block, "byPriority") {
		if num, ok := n.(jsonval.Number); ok {
			stats.ByPriority[p] = int(num)
		}
	}
	return stats, true
}
