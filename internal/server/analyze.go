package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kubeintel/kubeintel/internal/agent"
)

const defaultAnalysisRequest = "Provide comprehensive cluster health analysis with specific pod counts and metrics"

// analysisID makes a human-sortable analysis identifier.
func analysisID(now time.Time) string {
	return fmt.Sprintf("analysis-%s-%s",
		now.UTC().Format("20060102-150405"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *Server) handleAnalyzeGet(w http.ResponseWriter, r *http.Request) {
	s.runAnalysis(w, r, agent.Request{AnalysisRequest: defaultAnalysisRequest})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid analysis request", http.StatusBadRequest)
		return
	}
	if req.AnalysisRequest == "" {
		req.AnalysisRequest = defaultAnalysisRequest
	}
	s.runAnalysis(w, r, req)
}

func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request, req agent.Request) {
	if s.agent == nil {
		s.writeError(w, "kubernetes agent not initialized", http.StatusServiceUnavailable)
		return
	}

	id := analysisID(time.Now())
	log.Info().Str("analysis_id", id).Str("scope", req.Scope).Msg("processing analysis request")

	result := s.agent.AnalyzeCluster(r.Context(), req)

	if result.Status == "timeout" {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"analysis_id":      id,
			"status":           "timeout",
			"error":            result.Error,
			"timestamp":        time.Now().UTC(),
			"success":          false,
			"timeout_duration": s.cfg.Agent.Timeout.Seconds(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"analysis_id": id,
		"success":     result.Success,
		"analysis":    result.Analysis,
		"status":      result.Status,
		"error":       result.Error,
		"metadata":    result.Metadata,
		"timestamp":   time.Now().UTC(),
	})
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":    "unavailable",
			"message":   "Background monitoring not initialized",
			"timestamp": time.Now().UTC(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, s.monitor.Predictions())
}
