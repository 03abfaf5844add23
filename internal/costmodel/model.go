package costmodel

import (
	"fmt"
	"time"

	"github.com/kubeintel/kubeintel/internal/telemetry"
)

// Default token estimates for flows that recorded no usage.
// Agent flows carry a larger context and produce longer responses.
const (
	defaultAgentInputTokens    = 50_000
	defaultAgentOutputTokens   = 2000
	defaultMonitorInputTokens  = 30_000
	defaultMonitorOutputTokens = 1500
)

// Projection assumptions.
const (
	cyclesPerHour      = 12 // One monitoring cycle every 5 minutes
	cyclesPerDay       = 288
	analysesPerDay     = 10 // Conservative on-demand estimate
	rotationsPerDay    = 1.4
	daysPerMonth       = 30
	maxUnrotatedTokens = 300_000 // Context size by cycle 200 without rotation
	rotationCycles     = 200
	// Rough current spend used for the rotation savings percentage.
	assumedRotatedCost = 50.0
)

// highCostPerRequest is the average request cost above which the model
// recommends intervention.
const highCostPerRequest = 0.05

// Model computes cost reports for the flow ledger.
type Model struct {
	modelID   string
	pricing   ModelPricing
	estimator TokenEstimator
}

// New creates a cost model for the given Bedrock model ID.
func New(modelID string, estimator TokenEstimator) *Model {
	return &Model{
		modelID:   modelID,
		pricing:   PricingFor(modelID),
		estimator: estimator,
	}
}

// Pricing returns the model's pricing row.
func (m *Model) Pricing() ModelPricing { return m.pricing }

// Estimator returns the configured token estimator.
func (m *Model) Estimator() TokenEstimator { return m.estimator }

// Cost prices a single token usage pair.
func (m *Model) Cost(inputTokens, outputTokens int) float64 {
	return Cost(inputTokens, outputTokens, m.pricing)
}

// FlowCost is the priced detail for one flow.
type FlowCost struct {
	ID              string  `json:"id"`
	DurationSeconds float64 `json:"duration_seconds"`
	Status          string  `json:"status"`
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	TotalTokens     int     `json:"total_tokens"`
	Cost            float64 `json:"cost"`
	InputCost       float64 `json:"input_cost"`
	OutputCost      float64 `json:"output_cost"`
}

// GroupCosts aggregates costs for one flow type.
type GroupCosts struct {
	FlowCount          int        `json:"flow_count"`
	TotalInputTokens   int        `json:"total_input_tokens"`
	TotalOutputTokens  int        `json:"total_output_tokens"`
	TotalTokens        int        `json:"total_tokens"`
	TotalCost          float64    `json:"total_cost"`
	AverageCostPerFlow float64    `json:"average_cost_per_flow"`
	Flows              []FlowCost `json:"flows"` // last 10 for detail
}

// SessionContext estimates the cost of the persistent session context.
type SessionContext struct {
	EstimatedContextSize int     `json:"estimated_context_size"`
	ContextCostPerCall   float64 `json:"context_cost_per_call"`
	MessageCount         int     `json:"message_count"`
}

// Totals summarizes spend across all flows.
type Totals struct {
	TotalInputTokens      int     `json:"total_input_tokens"`
	TotalOutputTokens     int     `json:"total_output_tokens"`
	TotalTokens           int     `json:"total_tokens"`
	TotalCost             float64 `json:"total_cost"`
	AverageCostPerRequest float64 `json:"average_cost_per_request"`
}

// Breakdown is the full cost decomposition.
type Breakdown struct {
	AgentAnalysis        GroupCosts     `json:"agent_analysis"`
	BackgroundMonitoring GroupCosts     `json:"background_monitoring"`
	SessionContext       SessionContext `json:"session_context"`
	Totals               Totals         `json:"totals"`
}

// PeriodProjection is projected spend over one period.
type PeriodProjection struct {
	BackgroundMonitoring float64 `json:"background_monitoring"`
	AgentAnalysis        float64 `json:"agent_analysis"`
	SessionRotations     float64 `json:"session_rotations,omitempty"`
	TotalEstimated       float64 `json:"total_estimated"`
}

// RotationSavings compares spend against an unrotated-session counterfactual.
type RotationSavings struct {
	CostWithoutRotation float64 `json:"cost_without_rotation"`
	CostWithRotation    float64 `json:"cost_with_rotation"`
	SavingsPercentage   float64 `json:"savings_percentage"`
}

// Projections holds hourly, daily, and monthly spend forecasts.
type Projections struct {
	Hourly                 PeriodProjection `json:"hourly"`
	Daily                  PeriodProjection `json:"daily"`
	Monthly                PeriodProjection `json:"monthly"`
	SessionRotationSavings RotationSavings  `json:"session_rotation_savings"`
}

// Recommendation is a rule-based cost advisory.
type Recommendation struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
	Impact      string `json:"impact"`
}

// SessionAnalysis is the estimated state of the persistent model session.
type SessionAnalysis struct {
	ActiveSessions            int     `json:"active_sessions"`
	EstimatedContextSize      int     `json:"estimated_context_size"`
	MessageCount              int     `json:"message_count"`
	SessionAgeHours           float64 `json:"session_age_hours"`
	EstimatedTokensPerMessage int     `json:"estimated_tokens_per_message"`
}

// ModelInfo describes the priced model in reports.
type ModelInfo struct {
	Model   string       `json:"model"`
	Pricing ModelPricing `json:"pricing"`
}

// Report is the full payload for the cost analysis endpoint.
type Report struct {
	Timestamp       time.Time        `json:"timestamp"`
	ModelInfo       ModelInfo        `json:"model_info"`
	SessionAnalysis SessionAnalysis  `json:"session_analysis"`
	CostBreakdown   Breakdown        `json:"cost_breakdown"`
	Projections     Projections      `json:"projections"`
	Recommendations []Recommendation `json:"optimization_recommendations"`
}

// Session file analysis needs pod-level access; report a fixed estimate
// derived from typical observed sessions.
func (m *Model) SessionAnalysis() SessionAnalysis {
	return SessionAnalysis{
		ActiveSessions:            1,
		EstimatedContextSize:      30_000,
		MessageCount:              20,
		SessionAgeHours:           0.5,
		EstimatedTokensPerMessage: 1500,
	}
}

// Report builds the full cost analysis from ledger flows.
func (m *Model) Report(agentFlows, monitorFlows []telemetry.Flow) Report {
	breakdown := m.Breakdown(agentFlows, monitorFlows)
	return Report{
		Timestamp:       time.Now().UTC(),
		ModelInfo:       ModelInfo{Model: m.modelID, Pricing: m.pricing},
		SessionAnalysis: m.SessionAnalysis(),
		CostBreakdown:   breakdown,
		Projections:     m.Projections(breakdown),
		Recommendations: m.Recommendations(breakdown),
	}
}

// Breakdown prices all flows and aggregates totals. Flows with no recorded
// tokens fall back to the per-type default estimates.
func (m *Model) Breakdown(agentFlows, monitorFlows []telemetry.Flow) Breakdown {
	agent := m.groupCosts(agentFlows, defaultAgentInputTokens, defaultAgentOutputTokens)
	monitor := m.groupCosts(monitorFlows, defaultMonitorInputTokens, defaultMonitorOutputTokens)

	session := m.SessionAnalysis()
	contextCost := m.Cost(session.EstimatedContextSize, 0)

	totals := Totals{
		TotalInputTokens:  agent.TotalInputTokens + monitor.TotalInputTokens,
		TotalOutputTokens: agent.TotalOutputTokens + monitor.TotalOutputTokens,
		TotalCost:         agent.TotalCost + monitor.TotalCost,
	}
	totals.TotalTokens = totals.TotalInputTokens + totals.TotalOutputTokens
	requests := len(agentFlows) + len(monitorFlows)
	if requests < 1 {
		requests = 1
	}
	totals.AverageCostPerRequest = totals.TotalCost / float64(requests)

	return Breakdown{
		AgentAnalysis:        agent,
		BackgroundMonitoring: monitor,
		SessionContext: SessionContext{
			EstimatedContextSize: session.EstimatedContextSize,
			ContextCostPerCall:   contextCost,
			MessageCount:         session.MessageCount,
		},
		Totals: totals,
	}
}

func (m *Model) groupCosts(flows []telemetry.Flow, defaultInput, defaultOutput int) GroupCosts {
	g := GroupCosts{Flows: []FlowCost{}}
	if len(flows) == 0 {
		return g
	}

	for _, f := range flows {
		input, output := f.Tokens.Input, f.Tokens.Output
		if input == 0 {
			input = defaultInput
		}
		if output == 0 {
			output = defaultOutput
		}

		fc := FlowCost{
			ID:              f.ID,
			DurationSeconds: float64(f.Duration) / 1000,
			Status:          string(f.Status),
			InputTokens:     input,
			OutputTokens:    output,
			TotalTokens:     input + output,
			InputCost:       Cost(input, 0, m.pricing),
			OutputCost:      Cost(0, output, m.pricing),
		}
		fc.Cost = fc.InputCost + fc.OutputCost

		g.Flows = append(g.Flows, fc)
		g.TotalInputTokens += input
		g.TotalOutputTokens += output
		g.TotalCost += fc.Cost
	}

	g.FlowCount = len(flows)
	g.TotalTokens = g.TotalInputTokens + g.TotalOutputTokens
	g.AverageCostPerFlow = g.TotalCost / float64(len(flows))
	if len(g.Flows) > 10 {
		g.Flows = g.Flows[len(g.Flows)-10:]
	}
	return g
}

// Projections forecasts spend from the breakdown's per-flow averages.
// Monthly totals are exactly daily totals times 30.
func (m *Model) Projections(b Breakdown) Projections {
	monitorPerCycle := b.BackgroundMonitoring.AverageCostPerFlow
	agentPerAnalysis := b.AgentAnalysis.AverageCostPerFlow

	hourly := PeriodProjection{
		BackgroundMonitoring: monitorPerCycle * cyclesPerHour,
		AgentAnalysis:        agentPerAnalysis * (float64(analysesPerDay) / 24),
	}
	hourly.TotalEstimated = hourly.BackgroundMonitoring + hourly.AgentAnalysis

	daily := PeriodProjection{
		BackgroundMonitoring: monitorPerCycle * cyclesPerDay,
		AgentAnalysis:        agentPerAnalysis * analysesPerDay,
		SessionRotations:     rotationsPerDay,
	}
	daily.TotalEstimated = daily.BackgroundMonitoring + daily.AgentAnalysis

	monthly := PeriodProjection{
		BackgroundMonitoring: daily.BackgroundMonitoring * daysPerMonth,
		AgentAnalysis:        daily.AgentAnalysis * daysPerMonth,
		TotalEstimated:       daily.TotalEstimated * daysPerMonth,
	}

	return Projections{
		Hourly:                 hourly,
		Daily:                  daily,
		Monthly:                monthly,
		SessionRotationSavings: m.rotationSavings(b.Totals.TotalCost),
	}
}

// rotationSavings compares spend against letting the session context grow
// unrotated to the 300k-token ceiling for a full rotation period.
func (m *Model) rotationSavings(currentCost float64) RotationSavings {
	costPerCallMax := float64(maxUnrotatedTokens) / 1_000_000 * m.pricing.InputPerMTok
	withoutRotation := costPerCallMax * rotationCycles

	savingsPct := 0.0
	if withoutRotation > 0 {
		savingsPct = (withoutRotation - assumedRotatedCost) / withoutRotation * 100
	}

	return RotationSavings{
		CostWithoutRotation: withoutRotation,
		CostWithRotation:    currentCost,
		SavingsPercentage:   savingsPct,
	}
}

// Recommendations generates rule-based cost advisories.
func (m *Model) Recommendations(b Breakdown) []Recommendation {
	var recs []Recommendation

	if avg := b.Totals.AverageCostPerRequest; avg > highCostPerRequest {
		recs = append(recs, Recommendation{
			Type:        "warning",
			Title:       "High Average Cost Per Request",
			Description: fmt.Sprintf("Average cost of $%.4f per request is above optimal range", avg),
			Suggestion:  "Consider more frequent session rotation or prompt optimization",
			Impact:      "high",
		})
	}

	recs = append(recs,
		Recommendation{
			Type:        "optimization",
			Title:       "Session Rotation Efficiency",
			Description: "Current 200-cycle rotation provides good cost control",
			Suggestion:  "Monitor for performance degradation to optimize rotation frequency",
			Impact:      "medium",
		},
		Recommendation{
			Type:        "optimization",
			Title:       "Token Usage Optimization",
			Description: "Batch operations and structured prompts help minimize token usage",
			Suggestion:  "Continue using execute_bash_batch for multiple commands",
			Impact:      "medium",
		},
		Recommendation{
			Type:        "monitoring",
			Title:       "Cost Monitoring",
			Description: "Regular cost tracking helps identify usage patterns",
			Suggestion:  "Review cost visualizer daily to track trends",
			Impact:      "low",
		},
	)

	return recs
}
