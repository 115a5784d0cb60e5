// Package forwarder drives the fetch-then-deliver pipeline: audit logs are
// pulled from the Crusoe API for a time window and pushed to the Splunk
// collector in batches. One-shot runs cover an explicit window; daemon mode
// repeats on an interval and resumes from a Redis checkpoint across
// restarts.
package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crusoe-tools/audit-forwarder/pkg/checkpoint"
	"github.com/crusoe-tools/audit-forwarder/pkg/client"
	"github.com/crusoe-tools/audit-forwarder/pkg/hec"
)

// Prometheus metrics for forwarding cycles.
var (
	eventsForwardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forwarder_events_forwarded_total",
		Help: "Total audit-log events delivered to the collector",
	})

	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forwarder_cycles_total",
		Help: "Total forwarding cycles by outcome",
	}, []string{"status"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forwarder_cycle_duration_seconds",
		Help:    "Forwarding cycle duration in seconds",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120},
	})
)

// drySampleLimit caps how many entries a dry run prints.
const drySampleLimit = 5

// Config holds the forwarder's collaborators and tuning.
type Config struct {
	// Crusoe fetches audit-log pages.
	Crusoe *client.Client

	// HEC delivers event batches.
	HEC *hec.Client

	// Checkpoint persists the daemon cursor (nil = no resume; every cycle
	// uses the configured lookback).
	Checkpoint *checkpoint.Store

	// BatchSize is the collector batch size.
	BatchSize int
}

// Forwarder moves audit logs from the Crusoe API to the collector.
type Forwarder struct {
	crusoe     *client.Client
	hec        *hec.Client
	checkpoint *checkpoint.Store
	batchSize  int
	logger     zerolog.Logger
}

// New creates a forwarder.
func New(cfg Config) (*Forwarder, error) {
	if cfg.Crusoe == nil {
		return nil, errors.New("crusoe client is required")
	}
	if cfg.HEC == nil {
		return nil, errors.New("collector client is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &Forwarder{
		crusoe:     cfg.Crusoe,
		hec:        cfg.HEC,
		checkpoint: cfg.Checkpoint,
		batchSize:  cfg.BatchSize,
		logger:     log.With().Str("component", "forwarder").Logger(),
	}, nil
}

// ForwardRange fetches all audit logs in [start, end) and delivers them to
// the collector. With dryRun set, delivery is suppressed: the count and a few
// sample entries are logged instead. Returns the number of events fetched
// (dry run) or delivered.
func (f *Forwarder) ForwardRange(ctx context.Context, start, end time.Time, dryRun bool) (int, error) {
	f.logger.Info().
		Time("start", start).
		Time("end", end).
		Bool("dry_run", dryRun).
		Msg("Forwarding audit logs")

	entries, err := f.crusoe.GetAuditLogsPaginated(ctx, client.Window{Start: start, End: end})
	if err != nil {
		return 0, fmt.Errorf("fetch audit logs: %w", err)
	}

	if len(entries) == 0 {
		f.logger.Info().Msg("No audit logs in window")
		return 0, nil
	}

	if dryRun {
		f.logSamples(entries)
		return len(entries), nil
	}

	events := make([]any, len(entries))
	for i, entry := range entries {
		events[i] = entry
	}

	sent, err := f.hec.SendEvents(ctx, events, f.batchSize)
	eventsForwardedTotal.Add(float64(sent))
	if err != nil {
		return sent, fmt.Errorf("deliver audit logs: %w", err)
	}

	f.logger.Info().
		Int("events", sent).
		Msg("Window forwarded")
	return sent, nil
}

// ForwardRecent forwards the trailing lookback window ending now.
func (f *Forwarder) ForwardRecent(ctx context.Context, lookback time.Duration, dryRun bool) (int, error) {
	end := time.Now().UTC()
	return f.ForwardRange(ctx, end.Add(-lookback), end, dryRun)
}

// logSamples prints up to drySampleLimit entries for a dry run.
func (f *Forwarder) logSamples(entries []client.AuditLogEntry) {
	f.logger.Info().
		Int("events", len(entries)).
		Msg("Dry run, skipping delivery")

	limit := len(entries)
	if limit > drySampleLimit {
		limit = drySampleLimit
	}
	for i := 0; i < limit; i++ {
		sample, err := json.Marshal(entries[i])
		if err != nil {
			continue
		}
		f.logger.Info().
			Int("sample", i+1).
			RawJSON("entry", sample).
			Msg("Dry run sample")
	}
}

// RunDaemon forwards on an interval until the context is cancelled. Each
// cycle covers [cursor, now) where the cursor comes from the checkpoint
// store, falling back to now-lookback when no checkpoint exists. Failed
// cycles are logged and retried on the next tick without advancing the
// cursor.
func (f *Forwarder) RunDaemon(ctx context.Context, interval, lookback time.Duration) error {
	f.logger.Info().
		Dur("interval", interval).
		Dur("lookback", lookback).
		Msg("Daemon started")

	for {
		f.runCycle(ctx, lookback)

		select {
		case <-ctx.Done():
			f.logger.Info().Msg("Daemon stopping")
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// runCycle executes one forwarding cycle.
func (f *Forwarder) runCycle(ctx context.Context, lookback time.Duration) {
	cycleID := uuid.NewString()
	logger := f.logger.With().Str("cycle_id", cycleID).Logger()

	end := time.Now().UTC()
	start := end.Add(-lookback)

	if f.checkpoint != nil {
		cursor, err := f.checkpoint.LastWindowEnd(ctx)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Checkpoint read failed, using lookback window")
		case cursor.IsZero():
			logger.Info().Msg("No checkpoint, using lookback window")
		default:
			start = cursor
		}
	}

	startTime := time.Now()
	sent, err := f.ForwardRange(ctx, start, end, false)
	cycleDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		logger.Error().
			Err(err).
			Time("start", start).
			Time("end", end).
			Msg("Forwarding cycle failed")
		return
	}

	cyclesTotal.WithLabelValues("success").Inc()
	logger.Info().
		Int("events", sent).
		Msg("Forwarding cycle complete")

	if f.checkpoint != nil {
		if err := f.checkpoint.Advance(ctx, end, cycleID); err != nil {
			logger.Warn().Err(err).Msg("Checkpoint write failed")
		}
	}
}

// HealthCheck verifies both sides of the pipeline.
func (f *Forwarder) HealthCheck(ctx context.Context) bool {
	crusoeOK := f.crusoe.HealthCheck(ctx)
	hecOK := f.hec.HealthCheck(ctx)

	f.logger.Info().
		Bool("crusoe", crusoeOK).
		Bool("collector", hecOK).
		Msg("Health check")

	return crusoeOK && hecOK
}
