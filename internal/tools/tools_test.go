package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecBashSuccess(t *testing.T) {
	r := ExecBash(context.Background(), "echo hello", time.Second)

	assert.Equal(t, "success", r.Status)
	assert.Equal(t, "hello\n", r.Output)
	assert.Empty(t, r.Error)
}

func TestExecBashCommandError(t *testing.T) {
	r := ExecBash(context.Background(), "exit 3", time.Second)

	assert.Equal(t, "error", r.Status)
	assert.NotEmpty(t, r.Error)
}

func TestExecBashTimeout(t *testing.T) {
	r := ExecBash(context.Background(), "sleep 5", 50*time.Millisecond)

	assert.Equal(t, "timeout", r.Status)
	assert.Contains(t, r.Error, "timed out")
}

func TestExecBashBatchKeys(t *testing.T) {
	commands := []string{"echo one", "echo two", "echo three"}
	results := ExecBashBatch(context.Background(), commands, 5*time.Second)

	require.Len(t, results, 3)
	assert.Equal(t, "one\n", results["command_1"].Output)
	assert.Equal(t, "two\n", results["command_2"].Output)
	assert.Equal(t, "three\n", results["command_3"].Output)
}

func TestExecBashBatchLimit(t *testing.T) {
	var commands []string
	for i := 0; i < 15; i++ {
		commands = append(commands, fmt.Sprintf("echo %d", i))
	}

	results := ExecBashBatch(context.Background(), commands, 10*time.Second)
	assert.Len(t, results, 10)
	_, present := results["command_11"]
	assert.False(t, present)
}

func TestExecBashBatchEmpty(t *testing.T) {
	results := ExecBashBatch(context.Background(), nil, time.Second)
	assert.Empty(t, results)
}

func TestReadWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")

	w := WriteFile(path, "cluster looks fine")
	require.Equal(t, "success", w.Status)
	assert.Contains(t, w.Output, "18 bytes")

	r := ReadFile(path)
	require.Equal(t, "success", r.Status)
	assert.Equal(t, "cluster looks fine", r.Output)
}

func TestReadFileMissing(t *testing.T) {
	r := ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Equal(t, "error", r.Status)
	assert.NotEmpty(t, r.Error)
}

func TestReportIssueSeverity(t *testing.T) {
	assert.Equal(t, "critical", ReportIssue("CRITICAL", "node down").Severity)
	assert.Equal(t, "low", ReportIssue(" low ", "minor drift").Severity)

	issue := ReportIssue("catastrophic", "unknown scale")
	assert.Equal(t, "medium", issue.Severity, "unknown severities normalize to medium")
	assert.Equal(t, "cluster_analysis", issue.Category)
	assert.False(t, issue.Timestamp.IsZero())
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		return errors.New("permanent")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 attempts failed")
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 5, time.Minute, func() error { return errors.New("nope") })
	assert.ErrorIs(t, err, context.Canceled)
}
