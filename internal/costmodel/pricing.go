// Package costmodel prices token usage and projects spend.
//
// DESIGN: Pricing is a static table keyed by Bedrock model ID, with a
// longest-prefix family fallback for dated model variants. Cost reports are
// computed from the flow ledger on demand; nothing here persists state.
package costmodel

import "strings"

// ModelPricing holds per-million-token pricing for a model.
type ModelPricing struct {
	InputPerMTok  float64 `json:"input_cost_per_1m_tokens"`
	OutputPerMTok float64 `json:"output_cost_per_1m_tokens"`
	ContextWindow int     `json:"context_window"`
}

// modelPricingTable maps Bedrock model IDs to their pricing.
var modelPricingTable = map[string]ModelPricing{
	"us.anthropic.claude-3-5-haiku-20241022-v1:0":  {InputPerMTok: 0.25, OutputPerMTok: 1.25, ContextWindow: 200_000},
	"anthropic.claude-3-5-haiku-20241022-v1:0":     {InputPerMTok: 0.25, OutputPerMTok: 1.25, ContextWindow: 200_000},
	"us.anthropic.claude-3-5-sonnet-20241022-v2:0": {InputPerMTok: 3, OutputPerMTok: 15, ContextWindow: 200_000},
	"anthropic.claude-3-5-sonnet-20241022-v2:0":    {InputPerMTok: 3, OutputPerMTok: 15, ContextWindow: 200_000},
	"anthropic.claude-3-haiku-20240307-v1:0":       {InputPerMTok: 0.25, OutputPerMTok: 1.25, ContextWindow: 200_000},
}

// modelFamilyPricing maps model ID prefixes to pricing.
// Longest prefix wins so dated variants match their family.
var modelFamilyPricing = map[string]ModelPricing{
	"us.anthropic.claude-3-5-haiku":  {InputPerMTok: 0.25, OutputPerMTok: 1.25, ContextWindow: 200_000},
	"anthropic.claude-3-5-haiku":     {InputPerMTok: 0.25, OutputPerMTok: 1.25, ContextWindow: 200_000},
	"us.anthropic.claude-3-5-sonnet": {InputPerMTok: 3, OutputPerMTok: 15, ContextWindow: 200_000},
	"anthropic.claude-3-5-sonnet":    {InputPerMTok: 3, OutputPerMTok: 15, ContextWindow: 200_000},
	"anthropic.claude-3-haiku":       {InputPerMTok: 0.25, OutputPerMTok: 1.25, ContextWindow: 200_000},
	"anthropic.claude":               {InputPerMTok: 3, OutputPerMTok: 15, ContextWindow: 200_000},
}

// defaultPricing is used for unknown models (conservative to prevent silent overspend).
var defaultPricing = ModelPricing{InputPerMTok: 3, OutputPerMTok: 15, ContextWindow: 200_000}

// PricingFor returns pricing for a model.
// Tries exact match, then prefix/family match (longest prefix wins), then default.
func PricingFor(model string) ModelPricing {
	if p, ok := modelPricingTable[model]; ok {
		return p
	}

	bestPrefix := ""
	var bestPricing ModelPricing
	for prefix, p := range modelFamilyPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			bestPricing = p
		}
	}
	if bestPrefix != "" {
		return bestPricing
	}

	return defaultPricing
}

// Cost computes the cost in USD from token counts.
func Cost(inputTokens, outputTokens int, pricing ModelPricing) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * pricing.InputPerMTok
	outputCost := float64(outputTokens) / 1_000_000 * pricing.OutputPerMTok
	return inputCost + outputCost
}
