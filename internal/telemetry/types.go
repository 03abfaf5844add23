// Package telemetry implements the in-memory flow ledger.
//
// DESIGN: The ledger records every analysis run as a Flow. Flows begin in the
// active table, then move to a bounded per-type ring when they end. Ending a
// flow also synthesizes a Trace with contiguous Spans so the flow visualizer
// always has execution detail, whether or not a real exporter is configured.
// Rings evict oldest-first at capacity.
package telemetry

import "time"

// FlowType distinguishes on-demand analyses from monitor cycles.
type FlowType string

const (
	FlowAgentAnalysis     FlowType = "agent_analysis"
	FlowBackgroundMonitor FlowType = "background_monitor"
)

// FlowStatus is the lifecycle state of a flow.
type FlowStatus string

const (
	StatusRunning   FlowStatus = "running"
	StatusCompleted FlowStatus = "completed"
	StatusError     FlowStatus = "error"
	StatusTimeout   FlowStatus = "timeout"
)

// Terminal reports whether the status ends a flow.
func (s FlowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusTimeout
}

// TokenUsage holds input and output token counts for one flow.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// ToolCall records one tool invocation inside a flow.
// Exactly one of Command, Commands, or File is set, depending on the tool.
type ToolCall struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Duration  int64     `json:"duration"` // milliseconds
	Command   string    `json:"command,omitempty"`
	Commands  int       `json:"commands,omitempty"`
	File      string    `json:"file,omitempty"`
}

// InsightCounts summarizes what a monitor cycle found.
type InsightCounts struct {
	Anomalies       int `json:"anomalies"`
	Warnings        int `json:"warnings"`
	Recommendations int `json:"recommendations"`
}

// Flow is a single tracked analysis run.
type Flow struct {
	ID        string     `json:"id"`
	Type      FlowType   `json:"type"`
	Status    FlowStatus `json:"status"`
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime,omitzero"`
	Duration  int64      `json:"duration"` // milliseconds, 0 while running

	Request  string         `json:"request,omitempty"`
	Response string         `json:"response,omitempty"`
	Cycle    int            `json:"cycle,omitempty"`
	Model    string         `json:"model"`
	Tokens   TokenUsage     `json:"tokens"`
	Insights *InsightCounts `json:"insights,omitempty"`
	Tools    []ToolCall     `json:"tools"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
	TraceID  string         `json:"trace_id"`
}

// Span is one step of a flow's execution timeline.
type Span struct {
	SpanID    string         `json:"span_id"`
	Name      string         `json:"name"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Duration  int64          `json:"duration"` // milliseconds
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Trace is the execution record synthesized when a flow ends.
type Trace struct {
	TraceID   string         `json:"trace_id"`
	FlowID    string         `json:"flow_id"`
	Type      FlowType       `json:"type"`
	Name      string         `json:"name"`
	Status    string         `json:"status"` // "success" or the flow's terminal status
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  int64          `json:"duration"` // milliseconds
	Spans     []Span         `json:"spans"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Metrics aggregates ledger state for the dashboard and status endpoints.
type Metrics struct {
	TotalFlows      int     `json:"total_flows"`
	CompletedFlows  int     `json:"completed_flows"`
	ActiveFlows     int     `json:"active_flows"`
	SuccessRate     float64 `json:"success_rate"` // percent
	AverageDuration float64 `json:"average_duration"`
	AgentFlows      int     `json:"agent_flows"`
	MonitorFlows    int     `json:"monitor_flows"`
	TotalTraces     int     `json:"total_traces"`
	TracesEnabled   bool    `json:"traces_enabled"`
}

// FlowEvent is published to live feed subscribers when a flow changes state.
type FlowEvent struct {
	Event string `json:"event"` // "flow_started" or "flow_ended"
	Flow  Flow   `json:"flow"`
}
