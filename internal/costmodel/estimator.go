package costmodel

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Fixed overheads added to every estimate. The session context grows with
// each monitor cycle until it hits the rotation ceiling.
const (
	agentSystemPromptTokens   = 2000
	agentSessionContextTokens = 30_000
	monitorSystemPromptTokens = 3000
	monitorBaseContextTokens  = 5000
	contextGrowthPerCycle     = 1500
	maxMonitorContextTokens   = 180_000
	toolDefinitionTokens      = 500
)

// TokenEstimator approximates token usage for flows where the model response
// carried no usage block.
type TokenEstimator interface {
	// AgentTokens estimates usage for an on-demand analysis.
	AgentTokens(prompt, response string) (input, output int)
	// MonitorTokens estimates usage for a monitoring cycle. The cycle number
	// scales the estimated session context.
	MonitorTokens(prompt, response string, cycle int) (input, output int)
}

// HeuristicEstimator estimates tokens from character counts.
// Roughly 4 characters per input token; output is denser.
type HeuristicEstimator struct{}

func (HeuristicEstimator) AgentTokens(prompt, response string) (int, int) {
	input := agentSystemPromptTokens + len(prompt)/4 + agentSessionContextTokens + toolDefinitionTokens
	output := int(float64(len(response)) / 3.5)
	return input, output
}

func (HeuristicEstimator) MonitorTokens(prompt, response string, cycle int) (int, int) {
	context := monitorBaseContextTokens + cycle*contextGrowthPerCycle
	if context > maxMonitorContextTokens {
		context = maxMonitorContextTokens
	}
	input := monitorSystemPromptTokens + len(prompt)/4 + context + toolDefinitionTokens
	output := int(float64(len(response)) / 3.2)
	return input, output
}

// TiktokenEstimator counts prompt and response tokens with a real BPE
// encoding instead of the character heuristic. Context overheads are the
// same as HeuristicEstimator since session content is not visible here.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the cl100k_base encoding.
func NewTiktokenEstimator() (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("costmodel: load encoding: %w", err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

func (t *TiktokenEstimator) count(s string) int {
	if s == "" {
		return 0
	}
	return len(t.enc.Encode(s, nil, nil))
}

func (t *TiktokenEstimator) AgentTokens(prompt, response string) (int, int) {
	input := agentSystemPromptTokens + t.count(prompt) + agentSessionContextTokens + toolDefinitionTokens
	return input, t.count(response)
}

func (t *TiktokenEstimator) MonitorTokens(prompt, response string, cycle int) (int, int) {
	context := monitorBaseContextTokens + cycle*contextGrowthPerCycle
	if context > maxMonitorContextTokens {
		context = maxMonitorContextTokens
	}
	input := monitorSystemPromptTokens + t.count(prompt) + context + toolDefinitionTokens
	return input, t.count(response)
}
