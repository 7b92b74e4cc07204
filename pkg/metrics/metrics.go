// Package metrics holds the export-level Prometheus metrics and the /metrics
// handler. Lower-level metrics are defined next to the code they measure in
// pkg/client, pkg/pagination, pkg/tsv, pkg/enrich, pkg/cache and
// pkg/ratelimit, and registered through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Export outcome labels.
const (
	StatusComplete = "complete"
	StatusAborted  = "aborted"
	StatusRejected = "rejected"
)

var (
	// ExportsTotal counts finished exports by mode and outcome.
	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_exports_total",
		Help: "Total exports by mode and status (complete, aborted, rejected)",
	}, []string{"mode", "status"})

	// ExportDuration observes the wall time of streamed exports.
	ExportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrich_export_duration_seconds",
		Help:    "Duration of an export from first byte to end of stream, by mode",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
	}, []string{"mode"})
)

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Upstream Metrics (pkg/client):
//   - enrich_upstream_requests_total{operation, status} (Counter)
//   - enrich_upstream_request_duration_seconds{operation} (Histogram)
//   - enrich_upstream_errors_total{class} (Counter): client, server, graphql, network, decode
//
// Pagination Metrics (pkg/pagination):
//   - enrich_export_pages_total{mode} (Counter)
//   - enrich_export_page_nodes{mode} (Histogram)
//   - enrich_export_page_fetch_duration_seconds{mode} (Histogram)
//
// Serializer Metrics (pkg/tsv):
//   - enrich_export_rows_total{mode} (Counter)
//   - enrich_export_rows_skipped_total{mode} (Counter)
//
// Projection Metrics (pkg/enrich):
//   - enrich_term_parse_failures_total (Counter)
//
// Cache Metrics (pkg/cache):
//   - enrich_cache_hits_total (Counter)
//   - enrich_cache_misses_total (Counter)
//   - enrich_cache_errors_total{operation} (Counter)
//
// Slot Metrics (pkg/ratelimit):
//   - enrich_exports_active (Gauge)
//   - enrich_export_blocks_total (Counter)
//   - enrich_export_throttles_total (Counter)
//
// Export Metrics (this package):
//   - enrich_exports_total{mode, status} (Counter)
//   - enrich_export_duration_seconds{mode} (Histogram)
//
// Example Prometheus Queries:
//
//   # Aborted export rate
//   sum(rate(enrich_exports_total{status="aborted"}[5m])) / sum(rate(enrich_exports_total[5m]))
//
//   # Skipped rows share
//   sum(rate(enrich_export_rows_skipped_total[5m])) / sum(rate(enrich_export_rows_total[5m]))
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(enrich_export_page_fetch_duration_seconds_bucket[5m]))
