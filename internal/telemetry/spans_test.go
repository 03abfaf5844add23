package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedFlow(duration time.Duration, tools ...ToolCall) *Flow {
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &Flow{
		ID:        "agent-analysis-1-1756555200",
		Type:      FlowAgentAnalysis,
		Status:    StatusCompleted,
		StartTime: start,
		EndTime:   start.Add(duration),
		Duration:  duration.Milliseconds(),
		Model:     "test-model",
		Tokens:    TokenUsage{Input: 1000, Output: 200},
		Tools:     tools,
		Response:  "analysis text",
		TraceID:   "trace-abc",
	}
}

func TestSynthesizedSpansAreContiguous(t *testing.T) {
	f := finishedFlow(30*time.Second, ToolCall{Name: "execute_bash_batch", Duration: 1500})
	tr := synthesizeTrace(f)

	require.Len(t, tr.Spans, 5)
	assert.Equal(t, f.StartTime, tr.Spans[0].StartTime)
	for i := 1; i < len(tr.Spans); i++ {
		assert.Equal(t, tr.Spans[i-1].EndTime, tr.Spans[i].StartTime,
			"span %d should start where span %d ends", i, i-1)
	}
	assert.Equal(t, f.EndTime, tr.Spans[len(tr.Spans)-1].EndTime)
}

func TestSpanDurations(t *testing.T) {
	f := finishedFlow(30*time.Second,
		ToolCall{Name: "execute_bash_batch", Duration: 1500},
		ToolCall{Name: "read_file"},
	)
	tr := synthesizeTrace(f)
	require.Len(t, tr.Spans, 6)

	assert.Equal(t, "initialization", tr.Spans[0].Name)
	assert.Equal(t, int64(500), tr.Spans[0].Duration)

	assert.Equal(t, "llm_execution", tr.Spans[1].Name)
	assert.Equal(t, f.Duration-2000, tr.Spans[1].Duration)

	assert.Equal(t, int64(1500), tr.Spans[2].Duration)
	assert.Equal(t, int64(1000), tr.Spans[3].Duration, "tool call without duration gets the default")

	assert.Equal(t, "response_processing", tr.Spans[4].Name)
	assert.Equal(t, int64(300), tr.Spans[4].Duration)

	assert.Equal(t, "completion", tr.Spans[5].Name)
	assert.Equal(t, int64(100), tr.Spans[5].Duration)
}

func TestLLMSpanFloor(t *testing.T) {
	f := finishedFlow(3 * time.Second)
	tr := synthesizeTrace(f)

	require.Len(t, tr.Spans, 4)
	assert.Equal(t, int64(5000), tr.Spans[1].Duration, "short flows still get the minimum llm span")
}

func TestSpanIDs(t *testing.T) {
	f := finishedFlow(10*time.Second, ToolCall{Name: "execute_bash_batch"})
	tr := synthesizeTrace(f)

	assert.Equal(t, fmt.Sprintf("span-init-%s", f.ID), tr.Spans[0].SpanID)
	assert.Equal(t, fmt.Sprintf("span-llm-%s", f.ID), tr.Spans[1].SpanID)
	assert.Equal(t, fmt.Sprintf("span-tool-0-%s", f.ID), tr.Spans[2].SpanID)
	assert.Equal(t, fmt.Sprintf("span-processing-%s", f.ID), tr.Spans[3].SpanID)
	assert.Equal(t, fmt.Sprintf("span-complete-%s", f.ID), tr.Spans[4].SpanID)
}

func TestTraceStatus(t *testing.T) {
	f := finishedFlow(10 * time.Second)
	assert.Equal(t, "success", synthesizeTrace(f).Status)

	f.Status = StatusTimeout
	assert.Equal(t, "timeout", synthesizeTrace(f).Status)

	f.Status = StatusError
	assert.Equal(t, "error", synthesizeTrace(f).Status)
}

func TestTraceNames(t *testing.T) {
	f := finishedFlow(10 * time.Second)
	assert.Equal(t, "agent_analysis_"+f.ID, synthesizeTrace(f).Name)

	f.Type = FlowBackgroundMonitor
	f.Cycle = 42
	assert.Equal(t, "background_monitor_cycle_42", synthesizeTrace(f).Name)
}
