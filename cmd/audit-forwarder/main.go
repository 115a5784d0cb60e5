// Command audit-forwarder fetches Crusoe Cloud audit logs and forwards them
// to a Splunk HTTP Event Collector.
//
// Usage:
//
//	audit-forwarder health
//	audit-forwarder config-check
//	audit-forwarder forward-recent --hours 24 [--dry-run]
//	audit-forwarder forward-range --start-time 2025-06-15T00:00:00Z --end-time 2025-06-16T00:00:00Z [--dry-run]
//	audit-forwarder daemon --interval 5m --hours 1 [--metrics-addr :9090]
//
// Configuration comes from environment variables; see pkg/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crusoe-tools/audit-forwarder/pkg/checkpoint"
	"github.com/crusoe-tools/audit-forwarder/pkg/client"
	"github.com/crusoe-tools/audit-forwarder/pkg/config"
	"github.com/crusoe-tools/audit-forwarder/pkg/forwarder"
	"github.com/crusoe-tools/audit-forwarder/pkg/hec"
	"github.com/crusoe-tools/audit-forwarder/pkg/logging"
	"github.com/crusoe-tools/audit-forwarder/pkg/signer"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
		Output: os.Stderr,
	})

	if len(args) < 1 {
		usage()
		return 2
	}

	command := args[0]
	args = args[1:]

	switch command {
	case "health", "config-check", "forward-recent", "forward-range", "daemon":
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		usage()
		return 2
	}

	cfg := config.FromEnv()
	if command != "config-check" {
		if err := cfg.Validate(); err != nil {
			logger.Error().Err(err).Msg("Invalid configuration")
			return 1
		}
	}

	switch command {
	case "health":
		return runHealth(logger, cfg)
	case "config-check":
		return runConfigCheck(logger, cfg)
	case "forward-recent":
		return runForwardRecent(logger, cfg, args)
	case "forward-range":
		return runForwardRange(logger, cfg, args)
	default:
		return runDaemon(logger, cfg, args)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: audit-forwarder <health|config-check|forward-recent|forward-range|daemon> [flags]")
}

// buildForwarder assembles the pipeline from the validated configuration.
// The checkpoint store is attached only when withCheckpoint is set and a
// Redis address is configured.
func buildForwarder(logger zerolog.Logger, cfg config.AppConfig, withCheckpoint bool) (*forwarder.Forwarder, error) {
	crusoeCfg := client.DefaultConfig(signer.Credentials{
		AccessKeyID: cfg.Crusoe.AccessKeyID,
		SecretKey:   cfg.Crusoe.SecretKey,
	}, cfg.Crusoe.OrganizationID)
	crusoeCfg.BaseURL = cfg.Crusoe.BaseURL
	crusoeCfg.Timeout = cfg.Timeout
	crusoeCfg.PageSize = cfg.BatchSize
	crusoeCfg.Retry.MaxAttempts = cfg.MaxRetries

	crusoeClient, err := client.New(crusoeCfg)
	if err != nil {
		return nil, fmt.Errorf("create crusoe client: %w", err)
	}

	hecCfg := hec.DefaultConfig(cfg.Splunk.HECURL, cfg.Splunk.HECToken)
	hecCfg.Index = cfg.Splunk.Index
	hecCfg.SourceType = cfg.Splunk.SourceType
	hecCfg.Source = cfg.Splunk.Source
	hecCfg.InsecureSkipVerify = !cfg.Splunk.VerifySSL
	hecCfg.Timeout = cfg.Timeout

	hecClient, err := hec.New(hecCfg)
	if err != nil {
		return nil, fmt.Errorf("create collector client: %w", err)
	}

	var store *checkpoint.Store
	if withCheckpoint {
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return nil, fmt.Errorf("connect to redis at %s: %w", redisURL, err)
			}
			store = checkpoint.NewStore(redisClient, logging.NewLogger("checkpoint"))
			logger.Info().Str("redis", redisURL).Msg("Checkpoint store enabled")
		} else {
			logger.Warn().Msg("REDIS_URL not set, daemon will not resume across restarts")
		}
	}

	return forwarder.New(forwarder.Config{
		Crusoe:     crusoeClient,
		HEC:        hecClient,
		Checkpoint: store,
		BatchSize:  cfg.BatchSize,
	})
}

func runHealth(logger zerolog.Logger, cfg config.AppConfig) int {
	fwd, err := buildForwarder(logger, cfg, false)
	if err != nil {
		logger.Error().Err(err).Msg("Setup failed")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if !fwd.HealthCheck(ctx) {
		logger.Error().Msg("Health check failed")
		return 1
	}
	logger.Info().Msg("Health check passed")
	return 0
}

func runConfigCheck(logger zerolog.Logger, cfg config.AppConfig) int {
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Configuration invalid")
		return 1
	}
	logger.Info().
		Str("base_url", cfg.Crusoe.BaseURL).
		Str("organization", cfg.Crusoe.OrganizationID).
		Str("collector", cfg.Splunk.HECURL).
		Int("batch_size", cfg.BatchSize).
		Msg("Configuration valid")
	return 0
}

func runForwardRecent(logger zerolog.Logger, cfg config.AppConfig, args []string) int {
	fs := flag.NewFlagSet("forward-recent", flag.ExitOnError)
	hours := fs.Float64("hours", 24, "lookback window in hours")
	dryRun := fs.Bool("dry-run", false, "fetch and count without delivering")
	fs.Parse(args)

	fwd, err := buildForwarder(logger, cfg, false)
	if err != nil {
		logger.Error().Err(err).Msg("Setup failed")
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	sent, err := fwd.ForwardRecent(ctx, time.Duration(*hours*float64(time.Hour)), *dryRun)
	if err != nil {
		logger.Error().Err(err).Msg("Forwarding failed")
		return 1
	}
	logger.Info().Int("events", sent).Msg("Done")
	return 0
}

func runForwardRange(logger zerolog.Logger, cfg config.AppConfig, args []string) int {
	fs := flag.NewFlagSet("forward-range", flag.ExitOnError)
	startStr := fs.String("start-time", "", "window start (RFC 3339)")
	endStr := fs.String("end-time", "", "window end (RFC 3339, default now)")
	dryRun := fs.Bool("dry-run", false, "fetch and count without delivering")
	fs.Parse(args)

	if *startStr == "" {
		logger.Error().Msg("--start-time is required")
		return 2
	}
	start, err := time.Parse(time.RFC3339, *startStr)
	if err != nil {
		logger.Error().Err(err).Str("start_time", *startStr).Msg("Invalid start time")
		return 2
	}

	end := time.Now().UTC()
	if *endStr != "" {
		end, err = time.Parse(time.RFC3339, *endStr)
		if err != nil {
			logger.Error().Err(err).Str("end_time", *endStr).Msg("Invalid end time")
			return 2
		}
	}
	if !end.After(start) {
		logger.Error().Msg("End time must be after start time")
		return 2
	}

	fwd, err := buildForwarder(logger, cfg, false)
	if err != nil {
		logger.Error().Err(err).Msg("Setup failed")
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	sent, err := fwd.ForwardRange(ctx, start, end, *dryRun)
	if err != nil {
		logger.Error().Err(err).Msg("Forwarding failed")
		return 1
	}
	logger.Info().Int("events", sent).Msg("Done")
	return 0
}

func runDaemon(logger zerolog.Logger, cfg config.AppConfig, args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	interval := fs.Duration("interval", 5*time.Minute, "delay between forwarding cycles")
	hours := fs.Float64("hours", 1, "lookback for the first cycle when no checkpoint exists")
	metricsAddr := fs.String("metrics-addr", "", "address for the Prometheus /metrics endpoint (empty = disabled)")
	fs.Parse(args)

	fwd, err := buildForwarder(logger, cfg, true)
	if err != nil {
		logger.Error().Err(err).Msg("Setup failed")
		return 1
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info().Str("addr", *metricsAddr).Msg("Metrics server listening")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	ctx, cancel := signalContext()
	defer cancel()

	err = fwd.RunDaemon(ctx, *interval, time.Duration(*hours*float64(time.Hour)))
	if err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("Daemon failed")
		return 1
	}
	return 0
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
