// Package agent orchestrates on-demand cluster analysis.
//
// An analysis gathers cluster state with kubectl, sends it to the model with
// the user's request, and records the whole run in the flow ledger.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kubeintel/kubeintel/internal/bedrock"
	"github.com/kubeintel/kubeintel/internal/costmodel"
	"github.com/kubeintel/kubeintel/internal/telemetry"
	"github.com/kubeintel/kubeintel/internal/tools"
)

const systemPrompt = `You are a Kubernetes cluster analyst. You receive the
output of kubectl commands already executed against the cluster together
with an analysis request. Report only exact numbers copied from the command
outputs. Provide specific, actionable insights with pod counts and metrics.`

// Invoker sends one prompt to the analysis model.
type Invoker interface {
	Invoke(ctx context.Context, system, prompt string) (bedrock.Completion, error)
	ModelID() string
}

// Agent runs cluster analyses.
type Agent struct {
	invoker   Invoker
	collector *telemetry.Collector
	estimator costmodel.TokenEstimator
	timeout   time.Duration
}

// New creates an agent. timeout bounds a single analysis end to end.
func New(invoker Invoker, collector *telemetry.Collector, estimator costmodel.TokenEstimator, timeout time.Duration) *Agent {
	return &Agent{
		invoker:   invoker,
		collector: collector,
		estimator: estimator,
		timeout:   timeout,
	}
}

// Request describes one analysis.
type Request struct {
	AnalysisRequest string `json:"analysis_request"`
	Scope           string `json:"scope"`  // "cluster" or "namespace"
	Target          string `json:"target"` // namespace name when scope is "namespace"
}

// Metadata describes how an analysis ran.
type Metadata struct {
	Method          string    `json:"method"`
	Scope           string    `json:"scope"`
	Namespace       string    `json:"namespace,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
	FlowID          string    `json:"flow_id"`
	TraceID         string    `json:"trace_id"`
}

// Result is the outcome of one analysis.
type Result struct {
	Success  bool     `json:"success"`
	Analysis string   `json:"analysis,omitempty"`
	Status   string   `json:"status"`
	Error    string   `json:"error,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// AnalyzeCluster runs one analysis. A deadline overrun ends the flow with
// timeout status; other failures end it with error status. The flow ledger
// records tool calls and token usage either way.
func (a *Agent) AnalyzeCluster(ctx context.Context, req Request) Result {
	if req.Scope == "" {
		req.Scope = "cluster"
	}
	namespace := ""
	if req.Scope == "namespace" {
		namespace = req.Target
	}

	flowID := a.collector.StartAgentFlow(req.AnalysisRequest, a.invoker.ModelID(), map[string]any{
		"scope":     req.Scope,
		"namespace": namespace,
	})
	log.Info().Str("flow_id", flowID).Str("scope", req.Scope).Msg("starting cluster analysis")

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	start := time.Now()

	state := a.gatherClusterState(ctx, flowID, namespace)
	prompt := buildPrompt(req.AnalysisRequest, req.Scope, namespace, state)

	completion, err := a.invoker.Invoke(ctx, systemPrompt, prompt)
	if err != nil {
		status := telemetry.StatusError
		errMsg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			status = telemetry.StatusTimeout
			errMsg = fmt.Sprintf("analysis timed out after %s", a.timeout)
		}
		flow, _ := a.collector.EndFlow(flowID, status, "", errMsg, telemetry.TokenUsage{})
		return Result{
			Success: false,
			Status:  string(status),
			Error:   errMsg,
			Metadata: Metadata{
				Method:          "kubernetes_agent",
				Scope:           req.Scope,
				Namespace:       namespace,
				DurationSeconds: time.Since(start).Seconds(),
				Timestamp:       time.Now().UTC(),
				FlowID:          flowID,
				TraceID:         flow.TraceID,
			},
		}
	}

	tokens := telemetry.TokenUsage{Input: completion.InputTokens, Output: completion.OutputTokens}
	if tokens.Input == 0 && tokens.Output == 0 {
		tokens.Input, tokens.Output = a.estimator.AgentTokens(prompt, completion.Text)
	}

	flow, _ := a.collector.EndFlow(flowID, telemetry.StatusCompleted, completion.Text, "", tokens)
	log.Info().Str("flow_id", flowID).Float64("duration_s", time.Since(start).Seconds()).Msg("cluster analysis completed")

	return Result{
		Success:  true,
		Analysis: completion.Text,
		Status:   "completed",
		Metadata: Metadata{
			Method:          "kubernetes_agent",
			Scope:           req.Scope,
			Namespace:       namespace,
			DurationSeconds: time.Since(start).Seconds(),
			Timestamp:       time.Now().UTC(),
			FlowID:          flowID,
			TraceID:         flow.TraceID,
		},
	}
}

// gatherClusterState batches the kubectl commands for the requested scope
// and records the batch as a tool call on the flow.
func (a *Agent) gatherClusterState(ctx context.Context, flowID, namespace string) string {
	commands := clusterCommands(namespace)

	start := time.Now()
	results := tools.ExecBashBatch(ctx, commands, a.timeout/2)
	a.collector.AddToolCall(flowID, telemetry.ToolCall{
		Name:     "execute_bash_batch",
		Commands: len(commands),
		Duration: time.Since(start).Milliseconds(),
	})

	var b strings.Builder
	for i, command := range commands {
		r := results[fmt.Sprintf("command_%d", i+1)]
		fmt.Fprintf(&b, "$ %s\n", command)
		if r.Status == "success" {
			b.WriteString(r.Output)
		} else {
			fmt.Fprintf(&b, "(%s: %s)\n", r.Status, r.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func clusterCommands(namespace string) []string {
	if namespace != "" {
		return []string{
			fmt.Sprintf("kubectl get pods -n %s -o wide", namespace),
			fmt.Sprintf("kubectl get events -n %s --sort-by=.lastTimestamp | tail -20", namespace),
			fmt.Sprintf("kubectl top pods -n %s", namespace),
			fmt.Sprintf("kubectl get deployments,services -n %s", namespace),
		}
	}
	return []string{
		"kubectl get nodes -o wide",
		"kubectl get pods -A -o wide | head -50",
		"kubectl get events -A --sort-by=.lastTimestamp | tail -20",
		"kubectl top nodes",
	}
}

func buildPrompt(request, scope, namespace, state string) string {
	target := "All Namespaces"
	if namespace != "" {
		target = "Namespace: " + namespace
	}
	return fmt.Sprintf(`Kubernetes Analysis Request: %s

Scope: %s
%s

Cluster state from kubectl:

%s

Provide comprehensive analysis based on the data above with actionable insights.`,
		request, scope, target, state)
}
