package telemetry

import (
	"fmt"
	"time"
)

// Fixed span durations for the synthesized execution timeline.
const (
	initSpanMS       = 500
	minLLMSpanMS     = 5000
	llmTrimMS        = 2000
	defaultToolMS    = 1000
	processingSpanMS = 300
	completionSpanMS = 100
)

// synthesizeTrace builds the execution trace for a finished flow. Spans are
// contiguous from the flow's start; the completion span is pinned to the
// flow's end time so the timeline always covers the full duration.
func synthesizeTrace(f *Flow) Trace {
	status := "success"
	if f.Status != StatusCompleted {
		status = string(f.Status)
	}

	name := fmt.Sprintf("agent_analysis_%s", f.ID)
	if f.Type == FlowBackgroundMonitor {
		name = fmt.Sprintf("background_monitor_cycle_%d", f.Cycle)
	}

	return Trace{
		TraceID:   f.TraceID,
		FlowID:    f.ID,
		Type:      f.Type,
		Name:      name,
		Status:    status,
		StartTime: f.StartTime,
		EndTime:   f.EndTime,
		Duration:  f.Duration,
		Spans:     synthesizeSpans(f),
		Metadata:  f.Metadata,
	}
}

func synthesizeSpans(f *Flow) []Span {
	spans := make([]Span, 0, len(f.Tools)+4)
	cursor := f.StartTime

	cursor = addSpan(&spans, Span{
		SpanID:   fmt.Sprintf("span-init-%s", f.ID),
		Name:     "initialization",
		Duration: initSpanMS,
		Status:   "success",
		Metadata: map[string]any{"type": "initialization", "component": "agent_setup"},
	}, cursor)

	llmMS := f.Duration - llmTrimMS
	if llmMS < minLLMSpanMS {
		llmMS = minLLMSpanMS
	}
	cursor = addSpan(&spans, Span{
		SpanID:   fmt.Sprintf("span-llm-%s", f.ID),
		Name:     "llm_execution",
		Duration: llmMS,
		Status:   "success",
		Metadata: map[string]any{
			"type":          "llm_processing",
			"model":         f.Model,
			"tokens_input":  f.Tokens.Input,
			"tokens_output": f.Tokens.Output,
		},
	}, cursor)

	for i, tool := range f.Tools {
		toolMS := tool.Duration
		if toolMS == 0 {
			toolMS = defaultToolMS
		}
		cursor = addSpan(&spans, Span{
			SpanID:   fmt.Sprintf("span-tool-%d-%s", i, f.ID),
			Name:     fmt.Sprintf("tool_execution_%s", tool.Name),
			Duration: toolMS,
			Status:   "success",
			Metadata: map[string]any{
				"type":           "tool_execution",
				"tool_name":      tool.Name,
				"command":        tool.Command,
				"commands_count": tool.Commands,
			},
		}, cursor)
	}

	cursor = addSpan(&spans, Span{
		SpanID:   fmt.Sprintf("span-processing-%s", f.ID),
		Name:     "response_processing",
		Duration: processingSpanMS,
		Status:   "success",
		Metadata: map[string]any{
			"type":            "response_processing",
			"output_length":   len(f.Response),
			"processing_type": "text_extraction",
		},
	}, cursor)

	// The completion span absorbs any gap between the synthetic timeline and
	// the real end of the flow.
	spans = append(spans, Span{
		SpanID:    fmt.Sprintf("span-complete-%s", f.ID),
		Name:      "completion",
		StartTime: cursor,
		EndTime:   f.EndTime,
		Duration:  completionSpanMS,
		Status:    string(f.Status),
		Metadata: map[string]any{
			"type":           "completion",
			"final_status":   string(f.Status),
			"total_duration": f.Duration,
		},
	})

	return spans
}

func addSpan(spans *[]Span, s Span, start time.Time) time.Time {
	s.StartTime = start
	s.EndTime = start.Add(time.Duration(s.Duration) * time.Millisecond)
	*spans = append(*spans, s)
	return s.EndTime
}
