package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kubeintel/kubeintel/internal/telemetry"
)

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func (s *Server) handleAgentFlows(w http.ResponseWriter, r *http.Request) {
	flows := s.collector.AgentFlows(queryInt(r, "limit", 0))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"flows":     flows,
		"count":     len(flows),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleMonitorFlows(w http.ResponseWriter, r *http.Request) {
	flows := s.collector.MonitorFlows(queryInt(r, "limit", 0))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"flows":     flows,
		"count":     len(flows),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleFlowMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"metrics":   s.collector.Metrics(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleTelemetryStatus(w http.ResponseWriter, r *http.Request) {
	m := s.collector.Metrics()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":              "active",
		"telemetry_enabled":   true,
		"traces_enabled":      m.TracesEnabled,
		"active_flows":        m.ActiveFlows,
		"total_flows_tracked": m.TotalFlows,
		"agent_flows":         m.AgentFlows,
		"monitor_flows":       m.MonitorFlows,
		"total_traces":        m.TotalTraces,
		"success_rate":        m.SuccessRate,
		"live_subscribers":    s.broker.SubscriberCount(),
		"timestamp":           time.Now().UTC(),
	})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	flowType := telemetry.FlowType(r.URL.Query().Get("flow_type"))
	traces := s.collector.Traces(queryInt(r, "limit", 0), flowType)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"traces":         traces,
		"count":          len(traces),
		"traces_enabled": s.collector.Metrics().TracesEnabled,
		"timestamp":      time.Now().UTC(),
	})
}

func (s *Server) handleTraceByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	trace, ok := s.collector.TraceByID(id)
	if !ok {
		s.writeError(w, "trace "+id+" not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"trace":     trace,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleClearFlows(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	cleared := s.collector.ClearOldFlows(time.Duration(hours) * time.Hour)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"cleared":   cleared,
		"hours":     hours,
		"timestamp": time.Now().UTC(),
	})
}
