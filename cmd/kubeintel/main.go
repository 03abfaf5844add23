// Command kubeintel runs the KubeIntel service: the HTTP API, the
// background cluster monitor, and the flow ledger behind both.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/kubeintel/kubeintel/internal/agent"
	"github.com/kubeintel/kubeintel/internal/bedrock"
	"github.com/kubeintel/kubeintel/internal/config"
	"github.com/kubeintel/kubeintel/internal/costmodel"
	"github.com/kubeintel/kubeintel/internal/monitor"
	"github.com/kubeintel/kubeintel/internal/server"
	"github.com/kubeintel/kubeintel/internal/store"
	"github.com/kubeintel/kubeintel/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	loadEnvFiles()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log.Level)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("kubeintel exited with error")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, otelTracer, err := buildTracer(ctx, cfg)
	if err != nil {
		return err
	}

	collector := telemetry.NewCollector(cfg.Telemetry, tracer)
	defer collector.Close()

	estimator, err := buildEstimator(cfg)
	if err != nil {
		return err
	}
	costs := costmodel.New(cfg.Agent.Model, estimator)

	var archive *store.Store
	if cfg.Store.Path != "" {
		archive, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer archive.Close()
		log.Info().Str("path", cfg.Store.Path).Msg("insight archive opened")
	}

	var invoker agent.Invoker
	if cfg.Agent.Enabled || cfg.Monitor.Enabled {
		client, err := bedrock.New(ctx, cfg.Agent.Region, cfg.Agent.Model)
		if err != nil {
			return err
		}
		invoker = client
		log.Info().
			Str("region", cfg.Agent.Region).
			Str("model", cfg.Agent.Model).
			Msg("bedrock client ready")
	}

	var an *agent.Agent
	if cfg.Agent.Enabled {
		an = agent.New(invoker, collector, estimator, cfg.Agent.Timeout)
	}

	var mon *monitor.Monitor
	if cfg.Monitor.Enabled {
		mon = monitor.New(invoker, collector, costs, archive, cfg.Monitor)
		go mon.Run(ctx)
	}

	srv := server.New(cfg, collector, costs, an, mon, archive)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	if mon != nil {
		mon.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown did not complete cleanly")
	}
	if otelTracer != nil {
		if err := otelTracer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("trace exporter shutdown failed")
		}
	}
	return nil
}

// buildTracer returns the collector's tracer. With no OTLP endpoint
// configured the ledger synthesizes trace records itself.
func buildTracer(ctx context.Context, cfg *config.Config) (telemetry.Tracer, *telemetry.OTelTracer, error) {
	if cfg.Telemetry.OTELEndpoint == "" {
		return telemetry.NoopTracer{}, nil, nil
	}
	t, err := telemetry.NewOTelTracer(ctx, cfg.Telemetry.OTELEndpoint, "kubeintel", server.Version, cfg.Telemetry.OTELInsecure)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("endpoint", cfg.Telemetry.OTELEndpoint).Msg("otlp trace export enabled")
	return t, t, nil
}

func buildEstimator(cfg *config.Config) (costmodel.TokenEstimator, error) {
	if cfg.Cost.Estimator == "tiktoken" {
		return costmodel.NewTiktokenEstimator()
	}
	return costmodel.HeuristicEstimator{}, nil
}

// setupLogging configures the global zerolog logger. Interactive
// terminals get the console writer, everything else gets JSON lines.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		log.Logger = log.Output(os.Stderr)
	}
}

// loadEnvFiles loads .env from the working directory when present.
// Real environment variables always win.
func loadEnvFiles() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}
