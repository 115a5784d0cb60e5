// Package hec delivers audit-log batches to a Splunk HTTP Event Collector.
// Delivery is binary per batch: the collector either accepts the whole batch
// or the batch is considered failed; no partial-batch semantics are assumed.
package hec

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for collector deliveries.
var (
	eventsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hec_events_sent_total",
		Help: "Total events delivered to the collector",
	})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hec_batches_total",
		Help: "Total batch deliveries by status",
	}, []string{"status"})

	sendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hec_send_duration_seconds",
		Help:    "Batch delivery duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})
)

const (
	eventPath  = "/services/collector/event"
	healthPath = "/services/collector/health"
)

// Config holds the collector configuration.
type Config struct {
	// URL is the collector base URL (scheme://host:port).
	URL string

	// Token is the HEC collector token.
	Token string

	// Index is the target index ("" = collector default).
	Index string

	// SourceType tags forwarded events.
	SourceType string

	// Source tags forwarded events.
	Source string

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Timeout bounds each delivery request.
	Timeout time.Duration
}

// DefaultConfig returns a collector configuration with the conventional
// source tags for Crusoe audit logs.
func DefaultConfig(url, token string) Config {
	return Config{
		URL:        url,
		Token:      token,
		SourceType: "crusoe:audit",
		Source:     "crusoe_api",
		Timeout:    30 * time.Second,
	}
}

// Client is a Splunk HEC delivery client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a collector client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("collector url is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("collector token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config: cfg,
		logger: log.With().Str("component", "hec-client").Logger(),
	}, nil
}

// envelope is the HEC event wrapper.
type envelope struct {
	Time       int64  `json:"time,omitempty"`
	Event      any    `json:"event"`
	Source     string `json:"source,omitempty"`
	SourceType string `json:"sourcetype,omitempty"`
	Index      string `json:"index,omitempty"`
}

// SendBatch delivers one batch of events as newline-delimited envelopes.
func (c *Client) SendBatch(ctx context.Context, events []any) error {
	if len(events) == 0 {
		return nil
	}

	now := time.Now().Unix()
	var body bytes.Buffer
	encoder := json.NewEncoder(&body)
	for _, event := range events {
		// Encode writes a trailing newline, which is exactly the HEC
		// batch delimiter.
		if err := encoder.Encode(envelope{
			Time:       now,
			Event:      event,
			Source:     c.config.Source,
			SourceType: c.config.SourceType,
			Index:      c.config.Index,
		}); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+eventPath, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Splunk "+c.config.Token)
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	sendDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		batchesTotal.WithLabelValues("network_error").Inc()
		return fmt.Errorf("collector request: %w", err)
	}
	defer resp.Body.Close()

	batchesTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Int("events", len(events)).
			Msg("Collector rejected batch")
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}

	eventsSentTotal.Add(float64(len(events)))
	c.logger.Debug().
		Int("events", len(events)).
		Msg("Batch delivered")
	return nil
}

// SendEvents delivers events in batches of batchSize and returns the number
// delivered. A failed batch aborts the remainder; already-delivered batches
// are not rolled back.
func (c *Client) SendEvents(ctx context.Context, events []any, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	sent := 0
	for start := 0; start < len(events); start += batchSize {
		end := start + batchSize
		if end > len(events) {
			end = len(events)
		}

		if err := c.SendBatch(ctx, events[start:end]); err != nil {
			return sent, fmt.Errorf("send batch starting at %d: %w", start, err)
		}
		sent += end - start
	}

	c.logger.Info().
		Int("events", sent).
		Msg("All batches delivered")
	return sent, nil
}

// HealthCheck reports whether the collector health endpoint responds.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL+healthPath, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Splunk "+c.config.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("Collector health check failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
