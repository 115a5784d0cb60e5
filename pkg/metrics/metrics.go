// Package metrics provides the centralized Prometheus metrics registry for
// the audit forwarder. All metrics are defined in their respective packages
// (client, hec, forwarder, checkpoint) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the forwarder.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Crusoe API Metrics (pkg/client):
//   - crusoe_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - crusoe_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - crusoe_errors_total{class} (Counter): Errors by class (auth, client, server, rate_limit, network)
//   - crusoe_pages_fetched_total (Counter): Audit-log pages fetched
//
// Retry Metrics (pkg/client):
//   - crusoe_retries_total{error_class} (Counter): Retry attempts by error class
//   - crusoe_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - crusoe_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Collector Metrics (pkg/hec):
//   - hec_events_sent_total (Counter): Events delivered to the collector
//   - hec_batches_total{status} (Counter): Batch deliveries by HTTP status
//   - hec_send_duration_seconds (Histogram): Batch delivery duration
//
// Forwarder Metrics (pkg/forwarder):
//   - forwarder_events_forwarded_total (Counter): Events forwarded end to end
//   - forwarder_cycles_total{status} (Counter): Forwarding cycles by outcome
//   - forwarder_cycle_duration_seconds (Histogram): Forwarding cycle duration
//
// Checkpoint Metrics (pkg/checkpoint):
//   - forwarder_checkpoint_timestamp_seconds (Gauge): Unix timestamp of the last persisted window end
//   - forwarder_checkpoint_writes_total (Counter): Checkpoint advances persisted to Redis
//
// Example Prometheus Queries:
//
//   # Forwarding Throughput
//   rate(forwarder_events_forwarded_total[5m])
//
//   # Cycle Failure Rate
//   rate(forwarder_cycles_total{status="error"}[15m])
//
//   # Checkpoint Lag
//   time() - forwarder_checkpoint_timestamp_seconds
//
//   # P95 Crusoe Request Latency
//   histogram_quantile(0.95, rate(crusoe_request_duration_seconds_bucket[5m]))
//
//   # Collector Rejection Rate
//   sum(rate(hec_batches_total{status!="200"}[5m])) / sum(rate(hec_batches_total[5m]))
