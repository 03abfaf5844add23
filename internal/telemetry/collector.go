package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kubeintel/kubeintel/internal/config"
)

// Collector is the flow ledger. All state is guarded by mu; methods are safe
// for concurrent use by the HTTP handlers, the agent, and the monitor loop.
type Collector struct {
	cfg    config.TelemetryConfig
	tracer Tracer

	mu           sync.Mutex
	seq          uint64
	active       map[string]*Flow
	agentFlows   []Flow // oldest first, evicted at cfg.AgentFlowsLimit
	monitorFlows []Flow
	traces       []Trace

	notify func(FlowEvent) // optional live feed hook, called outside mu

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewCollector creates a flow ledger. The tracer must not be nil; use
// NoopTracer when no exporter is configured.
func NewCollector(cfg config.TelemetryConfig, tracer Tracer) *Collector {
	c := &Collector{
		cfg:       cfg,
		tracer:    tracer,
		active:    make(map[string]*Flow),
		stopSweep: make(chan struct{}),
	}
	if cfg.StaleSweepEnabled {
		go c.sweepLoop()
	}
	return c
}

// OnEvent registers a hook invoked with a copy of the flow whenever a flow
// starts or ends. Used by the websocket live feed.
func (c *Collector) OnEvent(fn func(FlowEvent)) {
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
}

// Close stops the stale sweeper, if running.
func (c *Collector) Close() {
	c.sweepOnce.Do(func() { close(c.stopSweep) })
}

// StartAgentFlow begins tracking an on-demand analysis and returns its flow ID.
func (c *Collector) StartAgentFlow(request, model string, metadata map[string]any) string {
	now := time.Now().UTC()

	c.mu.Lock()
	c.seq++
	f := &Flow{
		ID:        fmt.Sprintf("agent-analysis-%d-%d", c.seq, now.Unix()),
		Type:      FlowAgentAnalysis,
		Status:    StatusRunning,
		StartTime: now,
		Request:   truncate(request, config.MaxPromptLen),
		Model:     model,
		Tools:     []ToolCall{},
		Metadata:  metadata,
		TraceID:   "trace-" + uuid.NewString(),
	}
	c.active[f.ID] = f
	snapshot := *f
	notify := c.notify
	c.mu.Unlock()

	c.tracer.BeginFlow(&snapshot)
	if notify != nil {
		notify(FlowEvent{Event: "flow_started", Flow: snapshot})
	}
	log.Info().Str("flow_id", snapshot.ID).Msg("started tracking agent flow")
	return snapshot.ID
}

// StartMonitorFlow begins tracking a background monitoring cycle.
func (c *Collector) StartMonitorFlow(cycle int, model string) string {
	now := time.Now().UTC()

	c.mu.Lock()
	c.seq++
	f := &Flow{
		ID:        fmt.Sprintf("monitor-cycle-%d-%d", cycle, now.Unix()),
		Type:      FlowBackgroundMonitor,
		Status:    StatusRunning,
		StartTime: now,
		Cycle:     cycle,
		Model:     model,
		Tools:     []ToolCall{},
		Insights:  &InsightCounts{},
		TraceID:   "trace-" + uuid.NewString(),
	}
	c.active[f.ID] = f
	snapshot := *f
	notify := c.notify
	c.mu.Unlock()

	c.tracer.BeginFlow(&snapshot)
	if notify != nil {
		notify(FlowEvent{Event: "flow_started", Flow: snapshot})
	}
	log.Info().Str("flow_id", snapshot.ID).Int("cycle", cycle).Msg("started tracking monitor flow")
	return snapshot.ID
}

// EndFlow finishes an active flow. status must be terminal. Token counts
// replace any accumulated values when non-zero; pass a zero TokenUsage to
// keep what UpdateTokens recorded. Ending an unknown flow is a logged no-op.
func (c *Collector) EndFlow(id string, status FlowStatus, response, errMsg string, tokens TokenUsage) (Flow, bool) {
	if !status.Terminal() {
		status = StatusError
	}
	now := time.Now().UTC()

	c.mu.Lock()
	f, ok := c.active[id]
	if !ok {
		c.mu.Unlock()
		log.Warn().Str("flow_id", id).Msg("attempted to end unknown flow")
		return Flow{}, false
	}

	f.Status = status
	f.EndTime = now
	f.Duration = now.Sub(f.StartTime).Milliseconds()
	f.Response = truncate(response, config.MaxResponseLen)
	f.Error = errMsg
	if tokens.Input > 0 || tokens.Output > 0 {
		f.Tokens = tokens
	}

	done := *f
	delete(c.active, id)

	switch f.Type {
	case FlowAgentAnalysis:
		c.agentFlows = appendBounded(c.agentFlows, done, c.cfg.AgentFlowsLimit)
	default:
		c.monitorFlows = appendBounded(c.monitorFlows, done, c.cfg.MonitorFlowsLimit)
	}

	trace := synthesizeTrace(&done)
	c.traces = appendBounded(c.traces, trace, c.cfg.TracesLimit)

	notify := c.notify
	c.mu.Unlock()

	c.tracer.EndFlow(&done)
	if notify != nil {
		notify(FlowEvent{Event: "flow_ended", Flow: done})
	}
	log.Info().
		Str("flow_id", id).
		Str("status", string(status)).
		Int64("duration_ms", done.Duration).
		Msg("completed tracking flow")
	return done, true
}

// AddToolCall records a tool invocation on an active flow.
// Unknown flows are ignored.
func (c *Collector) AddToolCall(id string, call ToolCall) {
	if call.Timestamp.IsZero() {
		call.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.active[id]; ok {
		f.Tools = append(f.Tools, call)
	}
}

// UpdateTokens adds token counts to an active flow.
func (c *Collector) UpdateTokens(id string, input, output int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.active[id]; ok {
		f.Tokens.Input += input
		f.Tokens.Output += output
	}
}

// SetInsights records insight counts on an active monitor flow.
func (c *Collector) SetInsights(id string, ic InsightCounts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.active[id]; ok {
		f.Insights = &ic
	}
}

// AgentFlows returns completed and active agent flows, newest first.
func (c *Collector) AgentFlows(limit int) []Flow {
	return c.flows(FlowAgentAnalysis, limit)
}

// MonitorFlows returns completed and active monitor flows, newest first.
func (c *Collector) MonitorFlows(limit int) []Flow {
	return c.flows(FlowBackgroundMonitor, limit)
}

func (c *Collector) flows(ft FlowType, limit int) []Flow {
	if limit <= 0 {
		limit = config.DefaultQueryLimit
	}

	c.mu.Lock()
	var out []Flow
	if ft == FlowAgentAnalysis {
		out = append(out, c.agentFlows...)
	} else {
		out = append(out, c.monitorFlows...)
	}
	for _, f := range c.active {
		if f.Type == ft {
			out = append(out, *f)
		}
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Traces returns recent traces, newest first, optionally filtered by type.
func (c *Collector) Traces(limit int, ft FlowType) []Trace {
	if limit <= 0 {
		limit = config.DefaultTraceQueryLimit
	}

	c.mu.Lock()
	out := make([]Trace, 0, len(c.traces))
	for _, t := range c.traces {
		if ft == "" || t.Type == ft {
			out = append(out, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TraceByID looks up a trace.
func (c *Collector) TraceByID(id string) (Trace, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.traces {
		if t.TraceID == id {
			return t, true
		}
	}
	return Trace{}, false
}

// Metrics aggregates ledger state. All counters are zero on an empty ledger.
func (c *Collector) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		ActiveFlows:   len(c.active),
		AgentFlows:    len(c.agentFlows),
		MonitorFlows:  len(c.monitorFlows),
		TotalTraces:   len(c.traces),
		TracesEnabled: c.tracer.Enabled(),
	}
	m.TotalFlows = m.AgentFlows + m.MonitorFlows + m.ActiveFlows

	var totalDuration int64
	var completed, successful int
	count := func(flows []Flow) {
		for _, f := range flows {
			if f.Status.Terminal() {
				completed++
				totalDuration += f.Duration
				if f.Status == StatusCompleted {
					successful++
				}
			}
		}
	}
	count(c.agentFlows)
	count(c.monitorFlows)

	m.CompletedFlows = completed
	if completed > 0 {
		m.SuccessRate = float64(successful) / float64(completed) * 100
		m.AverageDuration = float64(totalDuration) / float64(completed)
	}
	return m
}

// ClearOldFlows drops completed flows that started before the cutoff and
// returns how many were removed. Active flows are never cleared.
func (c *Collector) ClearOldFlows(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)

	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.agentFlows) + len(c.monitorFlows)
	c.agentFlows = keepAfter(c.agentFlows, cutoff)
	c.monitorFlows = keepAfter(c.monitorFlows, cutoff)
	cleared := before - len(c.agentFlows) - len(c.monitorFlows)

	if cleared > 0 {
		log.Info().Int("cleared", cleared).Msg("cleared old flows")
	}
	return cleared
}

// sweepLoop moves abandoned active flows to their ring with an error status.
// A flow is abandoned when its owner crashed before calling EndFlow.
func (c *Collector) sweepLoop() {
	ticker := time.NewTicker(c.cfg.StaleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-c.cfg.StaleMaxAge)
			c.mu.Lock()
			var stale []string
			for id, f := range c.active {
				if f.StartTime.Before(cutoff) {
					stale = append(stale, id)
				}
			}
			c.mu.Unlock()
			for _, id := range stale {
				log.Warn().Str("flow_id", id).Msg("sweeping stale active flow")
				c.EndFlow(id, StatusError, "", "flow abandoned: no completion recorded", TokenUsage{})
			}
		}
	}
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if limit > 0 && len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

func keepAfter(flows []Flow, cutoff time.Time) []Flow {
	out := flows[:0]
	for _, f := range flows {
		if f.StartTime.After(cutoff) {
			out = append(out, f)
		}
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
