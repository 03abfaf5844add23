// Package config loads and validates KubeIntel configuration.
//
// Configuration comes from an optional YAML file, overridden by
// KUBEINTEL_* environment variables. Defaults live in defaults.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the KubeIntel service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Agent     AgentConfig     `yaml:"agent"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Cost      CostConfig      `yaml:"cost"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AgentConfig holds on-demand analysis settings.
type AgentConfig struct {
	Enabled bool          `yaml:"enabled"`
	Region  string        `yaml:"region"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"` // Per-analysis deadline
}

// MonitorConfig holds background monitoring settings.
type MonitorConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`        // Time between analysis cycles
	CycleTimeout   time.Duration `yaml:"cycle_timeout"`   // Deadline for a single cycle
	RotationCycles int           `yaml:"rotation_cycles"` // Session rotation period
}

// TelemetryConfig holds flow ledger settings.
type TelemetryConfig struct {
	AgentFlowsLimit   int `yaml:"agent_flows_limit"`
	MonitorFlowsLimit int `yaml:"monitor_flows_limit"`
	TracesLimit       int `yaml:"traces_limit"`

	// Stale flow sweeping. Disabled by default: flows that never end
	// stay in the active table until swept or the process restarts.
	StaleSweepEnabled  bool          `yaml:"stale_sweep_enabled"`
	StaleSweepInterval time.Duration `yaml:"stale_sweep_interval"`
	StaleMaxAge        time.Duration `yaml:"stale_max_age"`

	// OTLP trace export. Empty endpoint disables real tracing and the
	// collector synthesizes trace records instead.
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure"`
}

// CostConfig holds cost model settings.
type CostConfig struct {
	Estimator string `yaml:"estimator"` // "heuristic" or "tiktoken"
}

// StoreConfig holds insight archive settings.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database path. Empty disables the archive.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from path (optional), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         DefaultServerAddr,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Agent: AgentConfig{
			Enabled: true,
			Region:  DefaultBedrockRegion,
			Model:   DefaultBedrockModel,
			Timeout: DefaultAnalysisTimeout,
		},
		Monitor: MonitorConfig{
			Enabled:        true,
			Interval:       DefaultMonitorInterval,
			CycleTimeout:   DefaultCycleTimeout,
			RotationCycles: DefaultRotationCycles,
		},
		Telemetry: TelemetryConfig{
			AgentFlowsLimit:    DefaultAgentFlowsLimit,
			MonitorFlowsLimit:  DefaultMonitorFlowsLimit,
			TracesLimit:        DefaultTracesLimit,
			StaleSweepInterval: DefaultStaleSweepInterval,
			StaleMaxAge:        DefaultStaleMaxAge,
		},
		Cost: CostConfig{
			Estimator: "heuristic",
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// applyEnv overrides configuration from KUBEINTEL_* environment variables.
func (c *Config) applyEnv() {
	envStr("KUBEINTEL_ADDR", &c.Server.Addr)
	envBool("KUBEINTEL_AGENT_ENABLED", &c.Agent.Enabled)
	envStr("KUBEINTEL_AWS_REGION", &c.Agent.Region)
	envStr("KUBEINTEL_MODEL", &c.Agent.Model)
	envDuration("KUBEINTEL_ANALYSIS_TIMEOUT", &c.Agent.Timeout)
	envBool("KUBEINTEL_MONITOR_ENABLED", &c.Monitor.Enabled)
	envDuration("KUBEINTEL_MONITOR_INTERVAL", &c.Monitor.Interval)
	envDuration("KUBEINTEL_CYCLE_TIMEOUT", &c.Monitor.CycleTimeout)
	envInt("KUBEINTEL_ROTATION_CYCLES", &c.Monitor.RotationCycles)
	envInt("KUBEINTEL_AGENT_FLOWS_LIMIT", &c.Telemetry.AgentFlowsLimit)
	envInt("KUBEINTEL_MONITOR_FLOWS_LIMIT", &c.Telemetry.MonitorFlowsLimit)
	envInt("KUBEINTEL_TRACES_LIMIT", &c.Telemetry.TracesLimit)
	envBool("KUBEINTEL_STALE_SWEEP_ENABLED", &c.Telemetry.StaleSweepEnabled)
	envDuration("KUBEINTEL_STALE_SWEEP_INTERVAL", &c.Telemetry.StaleSweepInterval)
	envDuration("KUBEINTEL_STALE_MAX_AGE", &c.Telemetry.StaleMaxAge)
	envStr("KUBEINTEL_OTEL_ENDPOINT", &c.Telemetry.OTELEndpoint)
	envBool("KUBEINTEL_OTEL_INSECURE", &c.Telemetry.OTELInsecure)
	envStr("KUBEINTEL_COST_ESTIMATOR", &c.Cost.Estimator)
	envStr("KUBEINTEL_STORE_PATH", &c.Store.Path)
	envStr("KUBEINTEL_LOG_LEVEL", &c.Log.Level)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr must not be empty")
	}
	if c.Telemetry.AgentFlowsLimit <= 0 {
		return fmt.Errorf("config: telemetry.agent_flows_limit must be > 0, got %d", c.Telemetry.AgentFlowsLimit)
	}
	if c.Telemetry.MonitorFlowsLimit <= 0 {
		return fmt.Errorf("config: telemetry.monitor_flows_limit must be > 0, got %d", c.Telemetry.MonitorFlowsLimit)
	}
	if c.Telemetry.TracesLimit <= 0 {
		return fmt.Errorf("config: telemetry.traces_limit must be > 0, got %d", c.Telemetry.TracesLimit)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("config: monitor.interval must be > 0, got %s", c.Monitor.Interval)
	}
	if c.Monitor.RotationCycles <= 0 {
		return fmt.Errorf("config: monitor.rotation_cycles must be > 0, got %d", c.Monitor.RotationCycles)
	}
	switch c.Cost.Estimator {
	case "heuristic", "tiktoken":
	default:
		return fmt.Errorf("config: cost.estimator must be heuristic or tiktoken, got %q", c.Cost.Estimator)
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
