// Package server exposes the KubeIntel HTTP API.
//
// Routes cover on-demand analysis, monitor predictions, the cost model,
// the flow ledger, a websocket live feed, and two server-rendered
// dashboards. All JSON errors go through writeError.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kubeintel/kubeintel/internal/agent"
	"github.com/kubeintel/kubeintel/internal/config"
	"github.com/kubeintel/kubeintel/internal/costmodel"
	"github.com/kubeintel/kubeintel/internal/monitor"
	"github.com/kubeintel/kubeintel/internal/store"
	"github.com/kubeintel/kubeintel/internal/telemetry"
)

// Version is reported by the health and root endpoints.
const Version = "2.0.0"

// Server carries the service dependencies for the HTTP handlers.
// Agent, Monitor, and Archive may be nil when their feature is disabled.
type Server struct {
	cfg       *config.Config
	collector *telemetry.Collector
	costs     *costmodel.Model
	agent     *agent.Agent
	monitor   *monitor.Monitor
	archive   *store.Store
	broker    *Broker

	startedAt time.Time
	http      *http.Server
}

// New wires the server and its routes. The broker is attached to the
// collector so ledger events reach live feed subscribers.
func New(cfg *config.Config, collector *telemetry.Collector, costs *costmodel.Model,
	an *agent.Agent, mon *monitor.Monitor, archive *store.Store) *Server {

	s := &Server{
		cfg:       cfg,
		collector: collector,
		costs:     costs,
		agent:     an,
		monitor:   mon,
		archive:   archive,
		broker:    NewBroker(),
		startedAt: time.Now(),
	}
	collector.OnEvent(s.broker.Publish)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /analyze", s.handleAnalyzeGet)
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /predictions", s.handlePredictions)

	mux.HandleFunc("GET /api/cost/analysis", s.handleCostAnalysis)
	mux.HandleFunc("GET /api/cost/session-details", s.handleSessionDetails)
	mux.HandleFunc("GET /api/cost/projections", s.handleCostProjections)

	mux.HandleFunc("GET /api/telemetry/agent-flows", s.handleAgentFlows)
	mux.HandleFunc("GET /api/telemetry/monitor-flows", s.handleMonitorFlows)
	mux.HandleFunc("GET /api/telemetry/metrics", s.handleFlowMetrics)
	mux.HandleFunc("GET /api/telemetry/status", s.handleTelemetryStatus)
	mux.HandleFunc("GET /api/telemetry/traces", s.handleTraces)
	mux.HandleFunc("GET /api/telemetry/traces/{id}", s.handleTraceByID)
	mux.HandleFunc("POST /api/telemetry/clear", s.handleClearFlows)
	mux.HandleFunc("GET /api/telemetry/live", s.handleLiveFeed)

	mux.HandleFunc("GET /cost-visualizer", s.handleCostVisualizer)
	mux.HandleFunc("GET /flow-visualizer", s.handleFlowVisualizer)
	mux.HandleFunc("GET /stats", s.handleStats)

	s.http = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.Server.Addr).Msg("http server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": msg, "type": "kubeintel_error"},
	})
}

// isLoopback reports whether the remote address is localhost.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service":   "kubeintel",
		"version":   Version,
		"timestamp": time.Now().UTC(),
		"endpoints": []string{
			"/health", "/analyze", "/predictions",
			"/api/cost/analysis", "/api/cost/projections",
			"/api/telemetry/agent-flows", "/api/telemetry/monitor-flows",
			"/api/telemetry/metrics", "/api/telemetry/traces",
			"/cost-visualizer", "/flow-visualizer",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"healthy":   true,
		"status":    "ok",
		"version":   Version,
		"timestamp": time.Now().UTC(),
		"server":    "running",
	})
}
