// Package tools runs the commands the analysis model asks for.
//
// DESIGN: Every execution gets its own deadline and reports a status of
// success, error, or timeout rather than returning a Go error: the result
// is fed back to the model verbatim, so failures must stay in-band.
package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kubeintel/kubeintel/internal/config"
)

// Result is the outcome of a single tool execution.
type Result struct {
	Status   string `json:"status"` // success, error, or timeout
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration int64  `json:"duration_ms"`
}

// ExecBash runs a shell command with a deadline. A zero timeout uses the
// default. The process is killed when the deadline expires.
func ExecBash(ctx context.Context, command string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = config.DefaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start).Milliseconds()

	if ctx.Err() == context.DeadlineExceeded {
		log.Warn().Str("command", command).Dur("timeout", timeout).Msg("command timed out")
		return Result{Status: "timeout", Error: fmt.Sprintf("command timed out after %s", timeout), Duration: elapsed}
	}
	if err != nil {
		return Result{Status: "error", Output: string(out), Error: err.Error(), Duration: elapsed}
	}
	return Result{Status: "success", Output: string(out), Duration: elapsed}
}

// ExecBashBatch runs up to MaxBatchCommands commands sequentially, splitting
// the total timeout across them. Results are keyed command_1 .. command_N.
func ExecBashBatch(ctx context.Context, commands []string, timeout time.Duration) map[string]Result {
	if timeout <= 0 {
		timeout = config.DefaultToolTimeout
	}
	if len(commands) > config.MaxBatchCommands {
		commands = commands[:config.MaxBatchCommands]
	}

	results := make(map[string]Result, len(commands))
	if len(commands) == 0 {
		return results
	}

	perCommand := timeout / time.Duration(len(commands))
	for i, command := range commands {
		results[fmt.Sprintf("command_%d", i+1)] = ExecBash(ctx, command, perCommand)
	}
	return results
}

// ReadFile returns file contents as a Result.
func ReadFile(path string) Result {
	start := time.Now()
	data, err := os.ReadFile(path)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return Result{Status: "error", Error: err.Error(), Duration: elapsed}
	}
	return Result{Status: "success", Output: string(data), Duration: elapsed}
}

// WriteFile writes content to path, creating parent-less files with 0600.
func WriteFile(path, content string) Result {
	start := time.Now()
	err := os.WriteFile(path, []byte(content), 0600)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return Result{Status: "error", Error: err.Error(), Duration: elapsed}
	}
	return Result{Status: "success", Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path), Duration: elapsed}
}

// Issue is a problem reported by the analysis model.
type Issue struct {
	Severity  string    `json:"severity"`
	Category  string    `json:"category"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// ReportIssue normalizes and logs an issue found during analysis.
func ReportIssue(severity, summary string) Issue {
	severity = strings.ToLower(strings.TrimSpace(severity))
	switch severity {
	case "low", "medium", "high", "critical":
	default:
		severity = "medium"
	}

	issue := Issue{
		Severity:  severity,
		Category:  "cluster_analysis",
		Summary:   summary,
		Timestamp: time.Now().UTC(),
	}
	log.Warn().Str("severity", severity).Str("summary", summary).Msg("issue reported")
	return issue
}

// Retry runs fn up to attempts times with exponential backoff, stopping
// early when the context is done.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return fmt.Errorf("tools: %d attempts failed: %w", attempts, err)
}
