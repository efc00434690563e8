// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// RPC metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCCallErrors   *prometheus.CounterVec
	WSReconnects    prometheus.Counter
	WSNotifications prometheus.Counter

	// Submission metrics
	TransactionsSubmitted *prometheus.CounterVec
	TransactionsConfirmed *prometheus.CounterVec
	TransactionsFailed    *prometheus.CounterVec
	TransactionsResent    prometheus.Counter
	ConfirmationLatency   *prometheus.HistogramVec

	// Lifecycle metrics
	HolderAccountsEnsured *prometheus.CounterVec
	InvariantChecks       *prometheus.CounterVec
	LifecycleRunsTotal    *prometheus.CounterVec
	LifecycleDuration     prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulLifecycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_basics"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// RPC metrics
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "ws_reconnects_total",
			Help:      "Total number of websocket reconnects",
		}),
		WSNotifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "ws_notifications_total",
			Help:      "Total number of signature notifications received",
		}),

		// Submission metrics
		TransactionsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "transactions_submitted_total",
			Help:      "Total number of transactions accepted by the RPC node",
		}, []string{"step"}),
		TransactionsConfirmed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "transactions_confirmed_total",
			Help:      "Total number of transactions that reached the target commitment",
		}, []string{"step"}),
		TransactionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "transactions_failed_total",
			Help:      "Total number of transactions that did not confirm",
		}, []string{"step", "reason"}),
		TransactionsResent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "transactions_resent_total",
			Help:      "Total number of re-broadcasts of pending transactions",
		}),
		ConfirmationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "confirmation_duration_seconds",
			Help:      "Time from broadcast to confirmation in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"step"}),

		// Lifecycle metrics
		HolderAccountsEnsured: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "holder_accounts_ensured_total",
			Help:      "Holder account ensure outcomes",
		}, []string{"outcome"}),
		InvariantChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "invariant_checks_total",
			Help:      "Supply and balance invariant checks by result",
		}, []string{"result"}),
		LifecycleRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "runs_total",
			Help:      "Total number of lifecycle runs by status",
		}, []string{"status"}),
		LifecycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "run_duration_seconds",
			Help:      "Lifecycle run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulLifecycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_lifecycle_timestamp",
			Help:      "Unix timestamp of last successful lifecycle run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordRPCCall records RPC call latency and failures.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordWSReconnect increments the websocket reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordWSNotification increments the signature notification counter.
func RecordWSNotification() {
	DefaultMetrics.WSNotifications.Inc()
}

// RecordSubmitted increments the submitted counter for a lifecycle step.
func RecordSubmitted(step string) {
	DefaultMetrics.TransactionsSubmitted.WithLabelValues(step).Inc()
}

// RecordConfirmed records a confirmation and its latency.
func RecordConfirmed(step string, latency time.Duration) {
	DefaultMetrics.TransactionsConfirmed.WithLabelValues(step).Inc()
	DefaultMetrics.ConfirmationLatency.WithLabelValues(step).Observe(latency.Seconds())
}

// RecordFailed increments the failure counter. Reason is one of
// rejected, timeout, expired, failed.
func RecordFailed(step, reason string) {
	DefaultMetrics.TransactionsFailed.WithLabelValues(step, reason).Inc()
}

// RecordResent increments the resend counter.
func RecordResent() {
	DefaultMetrics.TransactionsResent.Inc()
}

// RecordEnsure records a holder account ensure outcome (created, exists).
func RecordEnsure(outcome string) {
	DefaultMetrics.HolderAccountsEnsured.WithLabelValues(outcome).Inc()
}

// RecordInvariantCheck records an invariant check result.
func RecordInvariantCheck(ok bool) {
	result := "ok"
	if !ok {
		result = "violation"
	}
	DefaultMetrics.InvariantChecks.WithLabelValues(result).Inc()
}

// RecordLifecycleRun records a finished lifecycle run.
func RecordLifecycleRun(status string, duration time.Duration) {
	DefaultMetrics.LifecycleRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.LifecycleDuration.Observe(duration.Seconds())
	if status == "success" {
		DefaultMetrics.LastSuccessfulLifecycle.SetToCurrentTime()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
