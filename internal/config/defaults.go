// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// HTTP SERVER
// =============================================================================

// DefaultServerAddr is the default listen address.
const DefaultServerAddr = ":8000"

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout for the HTTP server (analysis responses can be slow).
const DefaultServerWriteTimeout = 10 * time.Minute

// =============================================================================
// BEDROCK MODEL
// =============================================================================

// DefaultBedrockRegion is the AWS region for model invocation.
const DefaultBedrockRegion = "us-east-1"

// DefaultBedrockModel is the model used for cluster analysis.
const DefaultBedrockModel = "us.anthropic.claude-3-5-haiku-20241022-v1:0"

// DefaultMaxOutputTokens caps model responses.
const DefaultMaxOutputTokens = 4096

// DefaultAnalysisTimeout is the deadline for a single on-demand analysis.
const DefaultAnalysisTimeout = 5 * time.Minute

// =============================================================================
// BACKGROUND MONITOR
// =============================================================================

// DefaultMonitorInterval is the time between monitoring cycles.
const DefaultMonitorInterval = 5 * time.Minute

// DefaultCycleTimeout is the deadline for a single monitoring cycle.
const DefaultCycleTimeout = 20 * time.Minute

// DefaultRotationCycles is how many cycles run before the session rotates
// to stop context buildup.
const DefaultRotationCycles = 200

// SlowCycleThreshold triggers early rotation when the average of the last
// few cycle durations exceeds it.
const SlowCycleThreshold = 600 * time.Second

// =============================================================================
// FLOW LEDGER
// =============================================================================

// DefaultAgentFlowsLimit is the agent flow ring capacity.
const DefaultAgentFlowsLimit = 50

// DefaultMonitorFlowsLimit is the monitor flow ring capacity.
const DefaultMonitorFlowsLimit = 100

// DefaultTracesLimit is the trace ring capacity.
const DefaultTracesLimit = 200

// DefaultQueryLimit is the flow count returned when a query gives no limit.
const DefaultQueryLimit = 20

// DefaultTraceQueryLimit is the trace count returned when a query gives no limit.
const DefaultTraceQueryLimit = 50

// DefaultStaleSweepInterval is the frequency of the stale flow sweeper.
const DefaultStaleSweepInterval = 10 * time.Minute

// DefaultStaleMaxAge is when an active flow is considered abandoned.
const DefaultStaleMaxAge = 1 * time.Hour

// MaxPromptLen is how much of a request prompt a flow retains.
const MaxPromptLen = 200

// MaxResponseLen is how much of a model response a flow retains.
const MaxResponseLen = 500

// =============================================================================
// TOOLS
// =============================================================================

// DefaultToolTimeout is the deadline for a single command execution.
const DefaultToolTimeout = 30 * time.Second

// MaxBatchCommands caps a single batch execution.
const MaxBatchCommands = 10

// =============================================================================
// STORE
// =============================================================================

// DefaultStorePath is the SQLite insight archive location.
const DefaultStorePath = "kubeintel.db"
