package monitor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractInsightsCountsKeywords(t *testing.T) {
	analysis := `Found an anomaly in kube-system: one pod shows a memory issue.
Warning: node pressure needs attention.
I recommend scaling the deployment and suggest reviewing limits.`

	in := extractInsights(analysis, 3)

	assert.Equal(t, "comprehensive_predictions", in.Type)
	assert.Equal(t, 3, in.Cycle)
	assert.Equal(t, 2, in.AnomaliesFound, "anomaly + issue")
	assert.Equal(t, 2, in.WarningsFound, "warning + attention")
	assert.Equal(t, 2, in.RecommendationsFound, "recommend + suggest")
	assert.Equal(t, analysis, in.Analysis)
}

func TestExtractInsightsCaseInsensitive(t *testing.T) {
	in := extractInsights("ANOMALY detected. WARNING raised. RECOMMEND restart.", 1)

	assert.Equal(t, 1, in.AnomaliesFound)
	assert.Equal(t, 1, in.WarningsFound)
	assert.Equal(t, 1, in.RecommendationsFound)
}

func TestExtractInsightsEmpty(t *testing.T) {
	in := extractInsights("all healthy", 1)

	assert.Zero(t, in.AnomaliesFound)
	assert.Zero(t, in.WarningsFound)
	assert.Zero(t, in.RecommendationsFound)
}

func TestInsightCountsAreCapped(t *testing.T) {
	analysis := strings.Repeat("anomaly ", 20) +
		strings.Repeat("warning ", 20) +
		strings.Repeat("recommend ", 20)
	in := extractInsights(analysis, 1)

	counts := in.Counts()
	assert.Equal(t, 5, counts.Anomalies)
	assert.Equal(t, 10, counts.Warnings)
	assert.Equal(t, 8, counts.Recommendations)

	// The raw insight keeps the uncapped counts.
	assert.Equal(t, 20, in.AnomaliesFound)
}
