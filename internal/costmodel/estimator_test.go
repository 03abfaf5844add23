package costmodel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicAgentTokens(t *testing.T) {
	e := HeuristicEstimator{}

	prompt := strings.Repeat("a", 400)
	response := strings.Repeat("b", 350)
	input, output := e.AgentTokens(prompt, response)

	assert.Equal(t, 2000+100+30_000+500, input)
	assert.Equal(t, 100, output)
}

func TestHeuristicMonitorTokensGrowWithCycle(t *testing.T) {
	e := HeuristicEstimator{}

	prompt := strings.Repeat("a", 400)
	input1, _ := e.MonitorTokens(prompt, "", 1)
	input10, _ := e.MonitorTokens(prompt, "", 10)

	assert.Equal(t, 3000+100+5000+1*1500+500, input1)
	assert.Equal(t, 3000+100+5000+10*1500+500, input10)
	assert.Greater(t, input10, input1)
}

func TestHeuristicMonitorContextCeiling(t *testing.T) {
	e := HeuristicEstimator{}

	// Far past the rotation point the context estimate stops growing.
	input, _ := e.MonitorTokens("", "", 100_000)
	assert.Equal(t, 3000+180_000+500, input)
}

func TestHeuristicMonitorOutput(t *testing.T) {
	e := HeuristicEstimator{}

	_, output := e.MonitorTokens("", strings.Repeat("b", 320), 1)
	assert.Equal(t, 100, output)
}

func TestTiktokenEstimator(t *testing.T) {
	e, err := NewTiktokenEstimator()
	require.NoError(t, err)

	input, output := e.AgentTokens("hello world", "ok")
	assert.Greater(t, input, 2000+30_000+500)
	assert.Greater(t, output, 0)

	inputEmpty, outputEmpty := e.AgentTokens("", "")
	assert.Equal(t, 2000+30_000+500, inputEmpty)
	assert.Zero(t, outputEmpty)
}
