package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeintel/kubeintel/internal/agent"
	"github.com/kubeintel/kubeintel/internal/bedrock"
	"github.com/kubeintel/kubeintel/internal/config"
	"github.com/kubeintel/kubeintel/internal/costmodel"
	"github.com/kubeintel/kubeintel/internal/monitor"
	"github.com/kubeintel/kubeintel/internal/telemetry"
)

type fakeInvoker struct {
	response string
}

func (f *fakeInvoker) Invoke(ctx context.Context, system, prompt string) (bedrock.Completion, error) {
	return bedrock.Completion{Text: f.response, InputTokens: 1000, OutputTokens: 100}, nil
}

func (f *fakeInvoker) ModelID() string { return "test-model" }

type serverOpts struct {
	withAgent   bool
	withMonitor bool
}

func newTestServer(t *testing.T, opts serverOpts) (*Server, *telemetry.Collector) {
	t.Helper()
	cfg := config.Default()
	cfg.Agent.Timeout = 5 * time.Second

	collector := telemetry.NewCollector(cfg.Telemetry, telemetry.NoopTracer{})
	t.Cleanup(collector.Close)
	costs := costmodel.New(cfg.Agent.Model, costmodel.HeuristicEstimator{})

	var an *agent.Agent
	if opts.withAgent {
		an = agent.New(&fakeInvoker{response: "cluster is healthy"}, collector, costs.Estimator(), cfg.Agent.Timeout)
	}
	var mon *monitor.Monitor
	if opts.withMonitor {
		mon = monitor.New(&fakeInvoker{response: "ok"}, collector, costs, nil, cfg.Monitor)
	}

	return New(cfg, collector, costs, an, mon, nil), collector
}

func doJSON(t *testing.T, s *Server, method, target string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	var payload map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestRootEndpoint(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{})

	rec, payload := doJSON(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kubeintel", payload["service"])
	assert.Equal(t, Version, payload["version"])
	assert.NotEmpty(t, payload["endpoints"])
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{})

	rec, payload := doJSON(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["healthy"])
	assert.Equal(t, "ok", payload["status"])
}

func TestAnalyzeWithoutAgent(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{})

	rec, payload := doJSON(t, s, http.MethodGet, "/analyze", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	errBlock := payload["error"].(map[string]any)
	assert.Equal(t, "kubernetes agent not initialized", errBlock["message"])
	assert.Equal(t, "kubeintel_error", errBlock["type"])
}

func TestAnalyzeGet(t *testing.T) {
	s, collector := newTestServer(t, serverOpts{withAgent: true})

	rec, payload := doJSON(t, s, http.MethodGet, "/analyze", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "cluster is healthy", payload["analysis"])
	assert.True(t, strings.HasPrefix(payload["analysis_id"].(string), "analysis-"))

	flows := collector.AgentFlows(0)
	require.Len(t, flows, 1)
	assert.Equal(t, telemetry.StatusCompleted, flows[0].Status)
	assert.Equal(t, 1000, flows[0].Tokens.Input)
}

func TestAnalyzePostBadBody(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{withAgent: true})

	rec, _ := doJSON(t, s, http.MethodPost, "/analyze", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzePostNamespaceScope(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{withAgent: true})

	rec, payload := doJSON(t, s, http.MethodPost, "/analyze",
		`{"analysis_request":"check workloads","scope":"namespace","target":"kube-system"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	metadata := payload["metadata"].(map[string]any)
	assert.Equal(t, "namespace", metadata["scope"])
	assert.Equal(t, "kube-system", metadata["namespace"])
	assert.Equal(t, "kubernetes_agent", metadata["method"])
}

func TestPredictionsWithoutMonitor(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{})

	rec, payload := doJSON(t, s, http.MethodGet, "/predictions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unavailable", payload["status"])
}

func TestPredictionsInactiveMonitor(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{withMonitor: true})

	rec, payload := doJSON(t, s, http.MethodGet, "/predictions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inactive", payload["status"])
}

func TestAgentFlowsEnvelope(t *testing.T) {
	s, collector := newTestServer(t, serverOpts{})

	id := collector.StartAgentFlow("req", "m", nil)
	collector.EndFlow(id, telemetry.StatusCompleted, "", "", telemetry.TokenUsage{})

	rec, payload := doJSON(t, s, http.MethodGet, "/api/telemetry/agent-flows", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, float64(1), payload["count"])
	flows := payload["flows"].([]any)
	require.Len(t, flows, 1)

	flow := flows[0].(map[string]any)
	assert.Equal(t, id, flow["id"])
	assert.Contains(t, flow, "startTime")
	assert.Contains(t, flow, "trace_id")
}

func TestFlowMetricsEnvelope(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{})

	rec, payload := doJSON(t, s, http.MethodGet, "/api/telemetry/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	metrics := payload["metrics"].(map[string]any)
	assert.Contains(t, metrics, "total_flows")
	assert.Contains(t, metrics, "success_rate")
	assert.Contains(t, metrics, "traces_enabled")
}

func TestTelemetryStatus(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{})

	rec, payload := doJSON(t, s, http.MethodGet, "/api/telemetry/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", payload["status"])
	assert.Equal(t, true, payload["telemetry_enabled"])
	assert.Equal(t, float64(0), payload["live_subscribers"])
}

func TestTracesFilter(t *testing.T) {
	s, collector := newTestServer(t, serverOpts{})

	agentID := collector.StartAgentFlow("req", "m", nil)
	collector.EndFlow(agentID, telemetry.StatusCompleted, "", "", telemetry.TokenUsage{})
	monitorID := collector.StartMonitorFlow(1, "m")
	collector.EndFlow(monitorID, telemetry.StatusCompleted, "", "", telemetry.TokenUsage{})

	_, payload := doJSON(t, s, http.MethodGet, "/api/telemetry/traces", "")
	assert.Equal(t, float64(2), payload["count"])

	_, payload = doJSON(t, s, http.MethodGet, "/api/telemetry/traces?flow_type=agent_analysis", "")
	assert.Equal(t, float64(1), payload["count"])
}

func TestTraceByID(t *testing.T) {
	s, collector := newTestServer(t, serverOpts{})

	id := collector.StartAgentFlow("req", "m", nil)
	flow, _ := collector.EndFlow(id, telemetry.StatusCompleted, "", "", telemetry.TokenUsage{})

	rec, payload := doJSON(t, s, http.MethodGet, "/api/telemetry/traces/"+flow.TraceID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	trace := payload["trace"].(map[string]any)
	assert.Equal(t, flow.TraceID, trace["trace_id"])
	assert.NotEmpty(t, trace["spans"])

	rec, _ = doJSON(t, s, http.MethodGet, "/api/telemetry/traces/trace-missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearFlows(t *testing.T) {
	s, collector := newTestServer(t, serverOpts{})

	id := collector.StartAgentFlow("req", "m", nil)
	collector.EndFlow(id, telemetry.StatusCompleted, "", "", telemetry.TokenUsage{})
	time.Sleep(2 * time.Millisecond)

	rec, payload := doJSON(t, s, http.MethodPost, "/api/telemetry/clear?hours=0", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, float64(24), payload["hours"], "non-positive hours falls back to the default")
}

func TestCostAnalysisEndpoint(t *testing.T) {
	s, collector := newTestServer(t, serverOpts{})

	id := collector.StartAgentFlow("req", "m", nil)
	collector.EndFlow(id, telemetry.StatusCompleted, "", "", telemetry.TokenUsage{Input: 1_000_000, Output: 1_000_000})

	rec, payload := doJSON(t, s, http.MethodGet, "/api/cost/analysis", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	modelInfo := payload["model_info"].(map[string]any)
	assert.Equal(t, "us.anthropic.claude-3-5-haiku-20241022-v1:0", modelInfo["model"])

	breakdown := payload["cost_breakdown"].(map[string]any)
	agentGroup := breakdown["agent_analysis"].(map[string]any)
	assert.Equal(t, float64(1), agentGroup["flow_count"])
	assert.InDelta(t, 1.50, agentGroup["total_cost"].(float64), 1e-9)

	assert.Contains(t, payload, "projections")
	assert.Contains(t, payload, "optimization_recommendations")
}

func TestSessionDetailsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{})

	rec, payload := doJSON(t, s, http.MethodGet, "/api/cost/session-details", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	info := payload["session_info"].(map[string]any)
	assert.Equal(t, float64(1), info["active_sessions"])
	assert.Equal(t, "active", info["rotation_status"])
	assert.NotEmpty(t, payload["note"])
}

func TestCostProjectionsScenarios(t *testing.T) {
	s, collector := newTestServer(t, serverOpts{})

	id := collector.StartMonitorFlow(1, "m")
	collector.EndFlow(id, telemetry.StatusCompleted, "", "", telemetry.TokenUsage{Input: 30_000, Output: 1500})

	rec, payload := doJSON(t, s, http.MethodGet, "/api/cost/projections", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	projections := payload["projections"].(map[string]any)
	daily := projections["daily"].(map[string]any)
	scenarios := projections["scenarios"].(map[string]any)
	high := scenarios["high_usage"].(map[string]any)
	low := scenarios["low_usage"].(map[string]any)

	dailyTotal := daily["total_estimated"].(float64)
	assert.InDelta(t, dailyTotal*2, high["daily_cost"].(float64), 1e-9)
	assert.InDelta(t, dailyTotal*0.5, low["daily_cost"].(float64), 1e-9)
	assert.Equal(t, "20 agent analyses per day", high["description"])
	assert.Equal(t, "5 agent analyses per day", low["description"])
}

func TestStatsRequiresLoopback(t *testing.T) {
	s, _ := newTestServer(t, serverOpts{})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.RemoteAddr = "203.0.113.9:4411"
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.RemoteAddr = "127.0.0.1:4411"
	rec = httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "kubeintel", stats.Service)
	assert.Zero(t, stats.LiveFeed.Subscribers)
}

func TestDashboardsServeHTML(t *testing.T) {
	s, collector := newTestServer(t, serverOpts{})

	id := collector.StartAgentFlow("req", "m", nil)
	collector.EndFlow(id, telemetry.StatusCompleted, "", "", telemetry.TokenUsage{Input: 1000, Output: 100})

	for _, target := range []string{"/cost-visualizer", "/flow-visualizer"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		s.http.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", target)
		assert.Contains(t, rec.Body.String(), "KubeIntel", target)
	}
}

func TestBrokerPublishAndSubscribe(t *testing.T) {
	b := NewBroker()

	ch := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(telemetry.FlowEvent{Event: "flow_started", Flow: telemetry.Flow{ID: "agent-analysis-1-1"}})

	select {
	case msg := <-ch:
		var ev telemetry.FlowEvent
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, "flow_started", ev.Event)
		assert.Equal(t, "agent-analysis-1-1", ev.Flow.ID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	b.Unsubscribe(ch)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill well past the channel buffer without reading; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(telemetry.FlowEvent{Event: "flow_started"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
