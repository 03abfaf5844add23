package server

import (
	"net/http"
	"time"
)

// ledger queries for costing include everything the rings hold, not just
// the default page size.
func (s *Server) costReportFlows() (agent, monitor int) {
	return s.cfg.Telemetry.AgentFlowsLimit, s.cfg.Telemetry.MonitorFlowsLimit
}

func (s *Server) handleCostAnalysis(w http.ResponseWriter, r *http.Request) {
	agentLimit, monitorLimit := s.costReportFlows()
	report := s.costs.Report(s.collector.AgentFlows(agentLimit), s.collector.MonitorFlows(monitorLimit))
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSessionDetails(w http.ResponseWriter, r *http.Request) {
	details := map[string]any{
		"timestamp": time.Now().UTC(),
		"session_info": map[string]any{
			"active_sessions":   1,
			"session_directory": "/tmp/kubeintel_sessions",
			"estimated_files":   20,
			"rotation_status":   "active",
		},
		"note": "Detailed session file analysis requires pod-level access",
	}
	if s.monitor != nil {
		details["monitor"] = s.monitor.Status()
	}
	if s.archive != nil {
		if cycles, err := s.archive.RecentCycles(10); err == nil {
			details["archived_cycles"] = cycles
		}
		if cost, err := s.archive.TotalCost(); err == nil {
			details["archived_total_cost"] = cost
		}
	}
	s.writeJSON(w, http.StatusOK, details)
}

// scenario is one projected usage level.
type scenario struct {
	Description string  `json:"description"`
	DailyCost   float64 `json:"daily_cost"`
	MonthlyCost float64 `json:"monthly_cost"`
}

func (s *Server) handleCostProjections(w http.ResponseWriter, r *http.Request) {
	agentLimit, monitorLimit := s.costReportFlows()
	breakdown := s.costs.Breakdown(s.collector.AgentFlows(agentLimit), s.collector.MonitorFlows(monitorLimit))
	projections := s.costs.Projections(breakdown)

	scenarios := map[string]any{
		"current_usage": projections.Daily,
		"high_usage": scenario{
			Description: "20 agent analyses per day",
			DailyCost:   projections.Daily.TotalEstimated * 2,
			MonthlyCost: projections.Monthly.TotalEstimated * 2,
		},
		"low_usage": scenario{
			Description: "5 agent analyses per day",
			DailyCost:   projections.Daily.TotalEstimated * 0.5,
			MonthlyCost: projections.Monthly.TotalEstimated * 0.5,
		},
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC(),
		"projections": map[string]any{
			"hourly":                   projections.Hourly,
			"daily":                    projections.Daily,
			"monthly":                  projections.Monthly,
			"session_rotation_savings": projections.SessionRotationSavings,
			"scenarios":                scenarios,
		},
	})
}
