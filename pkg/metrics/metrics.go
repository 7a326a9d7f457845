// Package metrics provides the centralized Prometheus registry reference
// for the migration engine. All metrics are defined in their respective
// packages via promauto to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry. All metrics are
// automatically registered via promauto in their respective packages and
// served by the daemon's /metrics endpoint.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Client Metrics (pkg/clio):
//   - clio_requests_total{endpoint, status} (Counter): API requests by endpoint and HTTP status
//   - clio_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - clio_errors_total{kind} (Counter): Errors by kind (rate_limited, unauthorized, server, ...)
//   - clio_retries_total{error_kind} (Counter): Retry attempts by error kind
//   - clio_retry_wait_seconds{error_kind} (Histogram): Wait before retries by error kind
//   - clio_retry_exhausted_total{error_kind} (Counter): Requests that exhausted max retries
//
// Rate Budget Metrics (pkg/ratelimit):
//   - clio_rate_budget_remaining (Gauge): Requests remaining in the shared rate window
//   - clio_rate_budget_blocks_total (Counter): Requests blocked at the critical threshold
//   - clio_rate_budget_throttles_total (Counter): Requests throttled at the warning threshold
//
// Fetch Metrics (pkg/paginate, pkg/batch):
//   - clio_pages_fetched_total{endpoint} (Counter): Collection pages fetched
//   - clio_result_cap_truncations_total{endpoint} (Counter): Queries truncated at the result cap
//   - clio_partitions_total{kind, outcome} (Counter): Partitions executed by outcome
//   - clio_partition_records_total{kind} (Counter): Deduplicated records fetched per kind
//
// Import Metrics (pkg/importer, pkg/progress):
//   - migration_records_total{kind, outcome} (Counter): Records by outcome (created, existing, skipped)
//   - migration_sessions_active (Gauge): Sessions currently registered
//   - migration_sessions_swept_total (Counter): Sessions discarded by the idle sweeper
//   - migration_progress_updates_total{status} (Counter): Step transitions recorded
//
// Credential Store Metrics (pkg/connstore):
//   - connstore_entries (Gauge): Connections held in the memory store
//   - connstore_errors_total{operation} (Counter): Credential store operation errors
//
// Example Prometheus Queries:
//
//   # Rate budget pressure
//   clio_rate_budget_remaining < 15
//
//   # Result-cap truncation rate per endpoint
//   rate(clio_result_cap_truncations_total[15m])
//
//   # Share of records skipped per kind
//   sum by (kind) (rate(migration_records_total{outcome="skipped"}[1h])) /
//   sum by (kind) (rate(migration_records_total[1h]))
//
//   # P95 API latency
//   histogram_quantile(0.95, rate(clio_request_duration_seconds_bucket[5m]))
