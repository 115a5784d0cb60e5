// Package client provides the Crusoe Cloud API client used to fetch
// organization audit logs: per-request HMAC signing, sequential offset
// pagination, and bounded retry with backoff.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crusoe-tools/audit-forwarder/pkg/signer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Crusoe API operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crusoe_requests_total",
		Help: "Total Crusoe API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crusoe_request_duration_seconds",
		Help:    "Crusoe API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crusoe_errors_total",
		Help: "Total Crusoe API errors by class",
	}, []string{"class"})

	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crusoe_pages_fetched_total",
		Help: "Total audit-log pages fetched",
	})
)

// DefaultBaseURL is the production Crusoe API endpoint including the API
// version prefix.
const DefaultBaseURL = "https://api.crusoecloud.com/v1alpha5"

const userAgent = "crusoe-audit-forwarder/1.0"

// bodyPreviewLimit bounds how much of an unexpected response body is kept
// for error messages and logs.
const bodyPreviewLimit = 2048

// AuditLogEntry is an opaque audit-log record. The client does not interpret
// its fields; it is a unit of batching and forwarding.
type AuditLogEntry map[string]any

// Window is the half-open time range [Start, End) of a paginated fetch.
type Window struct {
	Start time.Time
	End   time.Time
}

// ListParams are the query parameters of a single audit-log page request.
type ListParams struct {
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// Config holds the client configuration.
type Config struct {
	// Credentials is the Crusoe access key pair.
	Credentials signer.Credentials

	// BaseURL is the API endpoint including the version prefix.
	BaseURL string

	// OrganizationID scopes the audit-log resource path.
	OrganizationID string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// PageSize is the limit sent per page request.
	PageSize int

	// InterPageDelay throttles successive page requests.
	InterPageDelay time.Duration

	// MaxPages bounds a paginated fetch (0 = unbounded).
	MaxPages int

	// Retry is the backoff policy for transient failures.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(creds signer.Credentials, organizationID string) Config {
	return Config{
		Credentials:    creds,
		BaseURL:        DefaultBaseURL,
		OrganizationID: organizationID,
		Timeout:        30 * time.Second,
		PageSize:       100,
		InterPageDelay: 100 * time.Millisecond,
		Retry:          DefaultRetryConfig(),
	}
}

// Client is the Crusoe audit-log API client.
type Client struct {
	httpClient *http.Client
	signer     *signer.Signer
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new client, validating the configuration eagerly so that a
// bad secret or missing organization surfaces here instead of as an opaque
// authentication failure mid-fetch.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.OrganizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	sig, err := signer.New(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "crusoe-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		signer:  sig,
		baseURL: base,
		config:  cfg,
		logger:  logger,
	}, nil
}

// auditLogsPath returns the resource path for the organization's audit logs,
// including the API-version prefix carried by the base URL. The signed path
// must byte-match what the server reconstructs.
func (c *Client) auditLogsPath() string {
	return strings.TrimRight(c.baseURL.Path, "/") + "/organizations/" + c.config.OrganizationID + "/audit-logs"
}

// queryFor builds the wire query parameters for a page request. Window
// timestamps use the RFC 3339 Z form, which the endpoint accepts and which
// survives percent-encoding cleanly.
func queryFor(params ListParams) url.Values {
	query := url.Values{}
	if !params.StartTime.IsZero() {
		query.Set("start_time", params.StartTime.UTC().Format(time.RFC3339))
	}
	if !params.EndTime.IsZero() {
		query.Set("end_time", params.EndTime.UTC().Format(time.RFC3339))
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	query.Set("offset", strconv.Itoa(params.Offset))
	return query
}

// GetAuditLogs fetches a single page of audit logs. Transient failures are
// retried per the configured policy; auth and not-found failures propagate
// immediately.
func (c *Client) GetAuditLogs(ctx context.Context, params ListParams) ([]AuditLogEntry, error) {
	query := queryFor(params)

	var items []AuditLogEntry
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		page, err := c.fetchPage(ctx, query)
		if err != nil {
			return err
		}
		items = page
		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// fetchPage performs one signed GET against the audit-log endpoint.
func (c *Client) fetchPage(ctx context.Context, query url.Values) ([]AuditLogEntry, error) {
	path := c.auditLogsPath()

	reqURL := *c.baseURL
	reqURL.Path = path
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Signatures are request-specific: the signed payload embeds the exact
	// query parameters (unencoded canonical form) and a fresh timestamp.
	c.signer.SignRequest(req, path, query)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())

	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", path).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		return nil, fmt.Errorf("audit logs request: %w", err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		body := readBodyPreview(resp.Body)
		c.logger.Warn().
			Str("endpoint", path).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Str("body", body).
			Msg("Crusoe API request error")

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
			Body:       body,
		}
	}

	var payload struct {
		Items []AuditLogEntry `json:"items"`
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassUnexpected)).Inc()
		preview := string(body)
		if len(preview) > bodyPreviewLimit {
			preview = preview[:bodyPreviewLimit]
		}
		c.logger.Error().
			Str("endpoint", path).
			Str("body", preview).
			Msg("Unparseable audit-log response")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassUnexpected,
			Message:    "unparseable response body",
			Body:       preview,
		}
	}

	pagesFetchedTotal.Inc()
	return payload.Items, nil
}

// GetAuditLogsPaginated retrieves all entries in the window, one page at a
// time. Pages are fetched strictly in offset order because each request
// depends on the prior page's returned count; offset pagination has no
// stable ordering across concurrent windows, so no parallel fetch. The end
// of the collection is inferred from an empty or short page. Cancellation is
// checked between pages, not mid-request.
func (c *Client) GetAuditLogsPaginated(ctx context.Context, window Window) ([]AuditLogEntry, error) {
	var accumulated []AuditLogEntry
	offset := 0
	pageCount := 0

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		default:
		}

		if c.config.MaxPages > 0 && pageCount >= c.config.MaxPages {
			c.logger.Info().
				Int("max_pages", c.config.MaxPages).
				Msg("Stopping pagination at configured page bound")
			break
		}

		items, err := c.GetAuditLogs(ctx, ListParams{
			StartTime: window.Start,
			EndTime:   window.End,
			Limit:     c.config.PageSize,
			Offset:    offset,
		})
		if err != nil {
			return nil, err
		}

		if len(items) == 0 {
			break
		}

		accumulated = append(accumulated, items...)
		offset += len(items)
		pageCount++

		c.logger.Debug().
			Int("page", pageCount).
			Int("offset", offset).
			Int("total", len(accumulated)).
			Msg("Fetched audit-log page")

		// A short page is the end-of-collection signal; the server has no
		// explicit has-more flag.
		if len(items) < c.config.PageSize {
			break
		}

		if c.config.InterPageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-time.After(c.config.InterPageDelay):
			}
		}
	}

	c.logger.Info().
		Int("entries", len(accumulated)).
		Int("pages", pageCount).
		Msg("Paginated audit-log fetch complete")

	return accumulated, nil
}

// HealthCheck reports whether the audit-log endpoint is reachable with the
// configured credentials.
func (c *Client) HealthCheck(ctx context.Context) bool {
	_, err := c.GetAuditLogs(ctx, ListParams{Limit: 1})
	if err != nil {
		c.logger.Error().Err(err).Msg("Crusoe API health check failed")
		return false
	}
	return true
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetClock overrides the signer's clock (for testing).
func (c *Client) SetClock(clock func() time.Time) {
	c.signer.Clock = clock
}

// readBodyPreview reads up to bodyPreviewLimit bytes of a response body.
func readBodyPreview(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, bodyPreviewLimit))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
