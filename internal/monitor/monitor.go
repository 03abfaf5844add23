// Package monitor runs the periodic background cluster analysis.
//
// DESIGN: A single goroutine runs one analysis cycle per interval. Each
// cycle is a monitor flow in the ledger; its insights are extracted by
// keyword, recorded on the flow, and archived to the store. The session
// rotates every RotationCycles cycles, or earlier when cycles slow down,
// to stop context buildup from inflating costs.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kubeintel/kubeintel/internal/agent"
	"github.com/kubeintel/kubeintel/internal/config"
	"github.com/kubeintel/kubeintel/internal/costmodel"
	"github.com/kubeintel/kubeintel/internal/store"
	"github.com/kubeintel/kubeintel/internal/telemetry"
	"github.com/kubeintel/kubeintel/internal/tools"
)

const monitorSystemPrompt = `You are a Kubernetes monitoring system with
persistent memory. Build upon previous observations to identify evolving
patterns, correlate events across monitoring cycles, and detect gradual
degradation or improvement trends. Report only exact numbers copied from
command outputs.`

const recentCycleWindow = 10

// Monitor runs the background analysis loop.
type Monitor struct {
	invoker   agent.Invoker
	collector *telemetry.Collector
	costs     *costmodel.Model
	archive   *store.Store // nil disables archiving
	cfg       config.MonitorConfig

	mu              sync.Mutex
	running         bool
	cycles          int
	sinceRotation   int
	sessionID       string
	lastAnalysis    time.Time
	insights        *Insights
	interactions    int
	recentCycleSecs []float64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a monitor. archive may be nil.
func New(invoker agent.Invoker, collector *telemetry.Collector, costs *costmodel.Model, archive *store.Store, cfg config.MonitorConfig) *Monitor {
	return &Monitor{
		invoker:   invoker,
		collector: collector,
		costs:     costs,
		archive:   archive,
		cfg:       cfg,
		sessionID: newSessionID(),
		stopCh:    make(chan struct{}),
	}
}

// Run executes analysis cycles until Stop is called or ctx is done.
// The first cycle starts after one interval.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	log.Info().Dur("interval", m.cfg.Interval).Str("session", m.sessionID).Msg("background monitoring started")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.setStopped()
			return
		case <-m.stopCh:
			m.setStopped()
			return
		case <-ticker.C:
			m.runCycle(ctx)
			m.rotateIfNeeded()
		}
	}
}

// Stop ends the monitoring loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) setStopped() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	log.Info().Msg("background monitoring stopped")
}

func (m *Monitor) runCycle(ctx context.Context) {
	m.mu.Lock()
	m.cycles++
	m.sinceRotation++
	cycle := m.cycles
	contextCycle := m.sinceRotation
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.CycleTimeout)
	defer cancel()

	flowID := m.collector.StartMonitorFlow(cycle, m.invoker.ModelID())
	start := time.Now()

	state := m.gatherClusterState(ctx, flowID)
	prompt := monitoringPrompt(cycle, state)

	completion, err := m.invoker.Invoke(ctx, monitorSystemPrompt, prompt)
	if err != nil {
		status := telemetry.StatusError
		errMsg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			status = telemetry.StatusTimeout
			errMsg = fmt.Sprintf("analysis cycle timed out after %s", m.cfg.CycleTimeout)
		}
		log.Warn().Int("cycle", cycle).Str("error", errMsg).Msg("analysis cycle failed")
		flow, _ := m.collector.EndFlow(flowID, status, "", errMsg, telemetry.TokenUsage{})
		m.recordCycleTime(start)
		m.archiveCycle(flow)
		return
	}

	insights := extractInsights(completion.Text, cycle)
	m.collector.SetInsights(flowID, insights.Counts())

	tokens := telemetry.TokenUsage{Input: completion.InputTokens, Output: completion.OutputTokens}
	if tokens.Input == 0 && tokens.Output == 0 {
		tokens.Input, tokens.Output = m.costs.Estimator().MonitorTokens(prompt, completion.Text, contextCycle)
	}

	flow, _ := m.collector.EndFlow(flowID, telemetry.StatusCompleted, completion.Text, "", tokens)

	m.mu.Lock()
	m.insights = &insights
	m.lastAnalysis = time.Now().UTC()
	m.interactions++
	m.mu.Unlock()

	m.recordCycleTime(start)
	m.archiveCycle(flow)
	log.Info().Int("cycle", cycle).Float64("duration_s", time.Since(start).Seconds()).Msg("analysis cycle completed")
}

func (m *Monitor) gatherClusterState(ctx context.Context, flowID string) string {
	commands := []string{
		"kubectl get nodes",
		"kubectl get pods -A --no-headers | awk '{print $4}' | sort | uniq -c",
		"kubectl get events -A --sort-by=.lastTimestamp | tail -15",
	}

	start := time.Now()
	results := tools.ExecBashBatch(ctx, commands, m.cfg.CycleTimeout/4)
	m.collector.AddToolCall(flowID, telemetry.ToolCall{
		Name:     "execute_bash_batch",
		Commands: len(commands),
		Duration: time.Since(start).Milliseconds(),
	})

	var b strings.Builder
	for i, command := range commands {
		r := results[fmt.Sprintf("command_%d", i+1)]
		fmt.Fprintf(&b, "$ %s\n%s\n", command, r.Output)
	}
	return b.String()
}

func monitoringPrompt(cycle int, state string) string {
	return fmt.Sprintf(`Analyze the current Kubernetes cluster state and provide structured predictions.

This is monitoring cycle #%d.

Cluster state:

%s

REQUIRED OUTPUT FORMAT:
CLUSTER PREDICTIONS:
- [Prediction 1]: [Specific insight about cluster trends]
- [Prediction 2]: [Resource utilization forecast]
- [Prediction 3]: [Potential issues to watch]

CURRENT STATUS:
- Nodes: [count and health]
- Pods: [count and status]
- Resources: [utilization summary]

RECOMMENDATIONS:
- [Action 1]: [Specific recommendation]
- [Action 2]: [Optimization suggestion]

Provide specific, actionable insights based on cluster data.`, cycle, state)
}

func (m *Monitor) recordCycleTime(start time.Time) {
	elapsed := time.Since(start).Seconds()
	m.mu.Lock()
	m.recentCycleSecs = append(m.recentCycleSecs, elapsed)
	if len(m.recentCycleSecs) > recentCycleWindow {
		m.recentCycleSecs = m.recentCycleSecs[1:]
	}
	m.mu.Unlock()
}

func (m *Monitor) archiveCycle(flow telemetry.Flow) {
	if m.archive == nil || flow.ID == "" {
		return
	}

	rec := store.CycleRecord{
		Cycle:        flow.Cycle,
		FlowID:       flow.ID,
		StartedAt:    flow.StartTime,
		DurationMS:   flow.Duration,
		Status:       string(flow.Status),
		InputTokens:  flow.Tokens.Input,
		OutputTokens: flow.Tokens.Output,
		Cost:         m.costs.Cost(flow.Tokens.Input, flow.Tokens.Output),
	}
	if flow.Insights != nil {
		rec.Anomalies = flow.Insights.Anomalies
		rec.Warnings = flow.Insights.Warnings
		rec.Recommendations = flow.Insights.Recommendations
	}

	if err := m.archive.RecordCycle(rec); err != nil {
		log.Error().Err(err).Int("cycle", flow.Cycle).Msg("failed to archive cycle")
	}
}

// rotateIfNeeded starts a fresh session when the rotation period elapses or
// recent cycles are consistently slow, which indicates context buildup.
func (m *Monitor) rotateIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	rotate := false
	if m.sinceRotation > 0 && m.sinceRotation%m.cfg.RotationCycles == 0 {
		rotate = true
		log.Info().Int("cycles", m.sinceRotation).Msg("session rotation triggered: rotation period reached")
	}
	if !rotate && len(m.recentCycleSecs) >= 3 {
		last3 := m.recentCycleSecs[len(m.recentCycleSecs)-3:]
		avg := (last3[0] + last3[1] + last3[2]) / 3
		if avg > config.SlowCycleThreshold.Seconds() {
			rotate = true
			log.Info().Float64("avg_cycle_s", avg).Msg("session rotation triggered: slow cycles")
		}
	}
	if !rotate {
		return
	}

	m.sessionID = newSessionID()
	m.sinceRotation = 0
	m.interactions = 0
	m.recentCycleSecs = nil
	log.Info().Str("session", m.sessionID).Msg("session rotated")
}

func newSessionID() string {
	now := time.Now()
	return fmt.Sprintf("kubeintel-%s-%d", now.Format("20060102"), now.Hour()*100+now.Minute())
}

// SessionInfo describes the monitor's session state.
type SessionInfo struct {
	SessionAvailable    bool `json:"session_available"`
	MonitoringCycles    int  `json:"monitoring_cycles"`
	SessionInteractions int  `json:"session_interactions"`
}

// Display is the formatted prediction block for the frontend.
type Display struct {
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	GeneratedAt  string `json:"generated_at"`
	Analysis     string `json:"analysis"`
	NextAnalysis string `json:"next_analysis"`
	AnalysisType string `json:"analysis_type"`
	Footer       string `json:"footer"`
}

// Predictions is the response for the predictions endpoint.
type Predictions struct {
	Status       string       `json:"status"`
	Message      string       `json:"message,omitempty"`
	Error        string       `json:"error,omitempty"`
	Insights     *Insights    `json:"insights,omitempty"`
	SessionInfo  *SessionInfo `json:"session_info,omitempty"`
	LastAnalysis time.Time    `json:"last_analysis,omitzero"`
	Timestamp    time.Time    `json:"timestamp"`
	Display      *Display     `json:"display,omitempty"`
}

// Predictions returns the latest insights, or a waiting/inactive status.
func (m *Monitor) Predictions() Predictions {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if !m.running {
		return Predictions{
			Status:    "inactive",
			Error:     "Background monitoring is not running",
			Timestamp: now,
		}
	}
	if m.insights == nil {
		return Predictions{
			Status:    "waiting",
			Message:   "Background analysis in progress",
			Timestamp: now,
		}
	}

	return Predictions{
		Status:   "active",
		Insights: m.insights,
		SessionInfo: &SessionInfo{
			SessionAvailable:    true,
			MonitoringCycles:    m.cycles,
			SessionInteractions: m.interactions,
		},
		LastAnalysis: m.lastAnalysis,
		Timestamp:    now,
		Display: &Display{
			Title:        "KubeIntel Background Intelligence",
			Subtitle:     "Dynamic Cluster Predictions",
			GeneratedAt:  "Real-time",
			Analysis:     m.insights.Analysis,
			NextAnalysis: "Continuous monitoring",
			AnalysisType: m.insights.Type,
			Footer:       "Predictions are generated dynamically based on current cluster state",
		},
	}
}

// Status is the monitor health snapshot.
type Status struct {
	IsRunning      bool        `json:"is_running"`
	HasInsights    bool        `json:"has_insights"`
	LastAnalysis   time.Time   `json:"last_analysis,omitzero"`
	MonitoringType string      `json:"monitoring_type"`
	SessionInfo    SessionInfo `json:"session_info"`
	Model          string      `json:"model"`
	SessionID      string      `json:"session_id"`
}

// Status reports the monitor's current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		IsRunning:      m.running,
		HasInsights:    m.insights != nil,
		LastAnalysis:   m.lastAnalysis,
		MonitoringType: "session_managed",
		SessionInfo: SessionInfo{
			SessionAvailable:    m.running,
			MonitoringCycles:    m.cycles,
			SessionInteractions: m.interactions,
		},
		Model:     m.invoker.ModelID(),
		SessionID: m.sessionID,
	}
}
