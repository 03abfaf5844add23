package monitor

import (
	"strings"
	"time"

	"github.com/kubeintel/kubeintel/internal/telemetry"
)

// Insight extraction caps. Model responses repeat keywords; the caps keep
// the counts meaningful.
const (
	maxAnomalies       = 5
	maxWarnings        = 10
	maxRecommendations = 8
)

// Insights is the product of one monitoring cycle.
type Insights struct {
	Type                 string    `json:"type"`
	Analysis             string    `json:"analysis"`
	Timestamp            time.Time `json:"timestamp"`
	Cycle                int       `json:"cycle"`
	AnomaliesFound       int       `json:"anomalies_found"`
	WarningsFound        int       `json:"warnings_found"`
	RecommendationsFound int       `json:"recommendations_found"`
}

// extractInsights scans an analysis response for signals by keyword.
func extractInsights(analysis string, cycle int) Insights {
	lower := strings.ToLower(analysis)

	anomalies := strings.Count(lower, "anomaly") + strings.Count(lower, "issue")
	warnings := strings.Count(lower, "warning") + strings.Count(lower, "attention")
	recommendations := strings.Count(lower, "recommend") + strings.Count(lower, "suggest")

	return Insights{
		Type:                 "comprehensive_predictions",
		Analysis:             analysis,
		Timestamp:            time.Now().UTC(),
		Cycle:                cycle,
		AnomaliesFound:       anomalies,
		WarningsFound:        warnings,
		RecommendationsFound: recommendations,
	}
}

// Counts returns the capped counts recorded on the flow.
func (i Insights) Counts() telemetry.InsightCounts {
	return telemetry.InsightCounts{
		Anomalies:       min(i.AnomaliesFound, maxAnomalies),
		Warnings:        min(i.WarningsFound, maxWarnings),
		Recommendations: min(i.RecommendationsFound, maxRecommendations),
	}
}
