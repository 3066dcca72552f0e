// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Chain metrics
	RPCCallLatency    *prometheus.HistogramVec
	RPCCallErrors     *prometheus.CounterVec
	WSNotifications   prometheus.Counter
	MintsTotal        *prometheus.CounterVec
	HighestBlockMined prometheus.Gauge

	// Discovery metrics
	ProbesTotal   *prometheus.CounterVec
	ScansTotal    *prometheus.CounterVec
	ScanDuration  prometheus.Histogram
	TokensMatched prometheus.Counter

	// Codec metrics
	TokensDecoded  prometheus.Counter
	DecodeFailures *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulScan prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "conway_token_lab"
	}

	return &Metrics{
		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed JSON-RPC calls by method",
		}, []string{"method"}),
		WSNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "ws_transfer_notifications_total",
			Help:      "Total number of Transfer logs received over WebSocket",
		}),
		MintsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "mints_total",
			Help:      "Total number of mint transactions by outcome",
		}, []string{"status"}),
		HighestBlockMined: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "last_mint_block",
			Help:      "Block number of the last finalized mint",
		}),

		// Discovery metrics
		ProbesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "probes_total",
			Help:      "Total number of ownerOf probes by result",
		}, []string{"result"}),
		ScansTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "scans_total",
			Help:      "Total number of ownership scans by status",
		}, []string{"status"}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "scan_duration_seconds",
			Help:      "Ownership scan duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		TokensMatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "tokens_matched_total",
			Help:      "Total number of owned tokens found by scans",
		}),

		// Codec metrics
		TokensDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "tokens_decoded_total",
			Help:      "Total number of token-URIs decoded with both assets",
		}),
		DecodeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "decode_failures_total",
			Help:      "Total number of token-URI decode failures by kind",
		}, []string{"kind"}),

		// Cache metrics
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of token-URI cache lookups by result",
		}, []string{"result"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulScan: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_scan_timestamp",
			Help:      "Unix timestamp of last successful ownership scan",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError counts a failed RPC call.
func RecordRPCError(method string) {
	DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
}

// RecordWSNotification counts a Transfer log delivered to a subscriber.
func RecordWSNotification() {
	DefaultMetrics.WSNotifications.Inc()
}

// RecordMint counts a mint by outcome: success, reverted or send_failed.
func RecordMint(status string) {
	DefaultMetrics.MintsTotal.WithLabelValues(status).Inc()
}

// UpdateLastMintBlock sets the block of the last finalized mint.
func UpdateLastMintBlock(block uint64) {
	DefaultMetrics.HighestBlockMined.Set(float64(block))
}

// RecordProbe counts one ownerOf probe. result is match, miss or missing.
func RecordProbe(result string) {
	DefaultMetrics.ProbesTotal.WithLabelValues(result).Inc()
}

// RecordScan records a finished ownership scan.
func RecordScan(status string, durationSeconds float64, matched int, finishedAt int64) {
	DefaultMetrics.ScansTotal.WithLabelValues(status).Inc()
	DefaultMetrics.ScanDuration.Observe(durationSeconds)
	DefaultMetrics.TokensMatched.Add(float64(matched))
	if status == "complete" {
		DefaultMetrics.LastSuccessfulScan.Set(float64(finishedAt))
	}
}

// RecordTokenDecoded counts a fully decoded token.
func RecordTokenDecoded() {
	DefaultMetrics.TokensDecoded.Inc()
}

// RecordDecodeFailure counts a decode failure of the given kind.
func RecordDecodeFailure(kind string) {
	DefaultMetrics.DecodeFailures.WithLabelValues(kind).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(result).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
