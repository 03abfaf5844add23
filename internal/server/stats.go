package server

import (
	"net/http"
	"time"

	"github.com/kubeintel/kubeintel/internal/monitor"
	"github.com/kubeintel/kubeintel/internal/telemetry"
)

// StatsResponse is the operator stats payload. Served to localhost only.
type StatsResponse struct {
	Service       string            `json:"service"`
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Timestamp     time.Time         `json:"timestamp"`
	Ledger        telemetry.Metrics `json:"ledger"`
	LiveFeed      LiveFeedStats     `json:"live_feed"`
	Monitor       *monitor.Status   `json:"monitor,omitempty"`
	Archive       *ArchiveStats     `json:"archive,omitempty"`
}

// LiveFeedStats reports websocket fan-out state.
type LiveFeedStats struct {
	Subscribers int `json:"subscribers"`
}

// ArchiveStats summarizes the persisted cycle history.
type ArchiveStats struct {
	InsightTotals map[string]int `json:"insight_totals"`
	TotalCost     float64        `json:"total_cost"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		s.writeError(w, "stats endpoint is restricted to localhost", http.StatusForbidden)
		return
	}

	resp := StatsResponse{
		Service:       "kubeintel",
		Version:       Version,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Timestamp:     time.Now().UTC(),
		Ledger:        s.collector.Metrics(),
		LiveFeed:      LiveFeedStats{Subscribers: s.broker.SubscriberCount()},
	}

	if s.monitor != nil {
		status := s.monitor.Status()
		resp.Monitor = &status
	}

	if s.archive != nil {
		archive := &ArchiveStats{}
		if totals, err := s.archive.InsightTotals(); err == nil {
			archive.InsightTotals = totals
		}
		if cost, err := s.archive.TotalCost(); err == nil {
			archive.TotalCost = cost
		}
		resp.Archive = archive
	}

	s.writeJSON(w, http.StatusOK, resp)
}
