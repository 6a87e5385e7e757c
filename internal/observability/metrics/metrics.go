package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "jpusap_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	paymentTransitions *prometheus.CounterVec
	paymentAmount      *prometheus.CounterVec

	reconcileTotal   *prometheus.CounterVec
	reconcileLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	importRows *prometheus.CounterVec

	reminderTotal *prometheus.CounterVec

	cacheRefreshTotal   *prometheus.CounterVec
	cacheRefreshLatency *prometheus.HistogramVec
	cacheRefreshUpdated prometheus.Counter

	httpRequests *prometheus.CounterVec
)

// Init registers collection metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		paymentTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_transitions_total",
				Help: "Payment lifecycle operations by action and result",
			},
			[]string{"action", "result"},
		)
		paymentAmount = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_amount_soles_total",
				Help: "Sum of payment amounts by action",
			},
			[]string{"action"},
		)

		reconcileTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_total",
				Help: "Reconciliation runs by scope and result",
			},
			[]string{"scope", "result"},
		)
		reconcileLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reconcile_latency_seconds",
				Help:    "Reconciliation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scope"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)

		importRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_import_rows_total",
				Help: "Imported payment rows by result",
			},
			[]string{"result"},
		)

		reminderTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reminders_total",
				Help: "Debtor reminders by result",
			},
			[]string{"result"},
		)

		cacheRefreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_refresh_total",
				Help: "Cached saldo refresh runs by result",
			},
			[]string{"result"},
		)
		cacheRefreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cache_refresh_latency_seconds",
				Help:    "Cached saldo refresh latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		cacheRefreshUpdated = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_refresh_updated_charges_total",
				Help: "Charges whose cached saldo or esMoroso changed",
			},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		)

		prometheus.MustRegister(
			paymentTransitions,
			paymentAmount,
			reconcileTotal,
			reconcileLatency,
			exportTotal,
			exportLatency,
			importRows,
			reminderTotal,
			cacheRefreshTotal,
			cacheRefreshLatency,
			cacheRefreshUpdated,
			httpRequests,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObservePaymentTransition records a payment lifecycle operation.
func ObservePaymentTransition(action, result string, amount float64) {
	if action == "" {
		action = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if paymentTransitions != nil {
		paymentTransitions.WithLabelValues(action, result).Inc()
	}
	if paymentAmount != nil && result == resultSuccess && amount > 0 {
		paymentAmount.WithLabelValues(action).Add(amount)
	}
}

// ObserveReconcile records a reconciliation run. Scope is "member" or "tenant".
func ObserveReconcile(scope, result string, duration time.Duration) {
	if scope == "" {
		scope = "member"
	}
	if result == "" {
		result = resultSuccess
	}
	if reconcileTotal != nil {
		reconcileTotal.WithLabelValues(scope, result).Inc()
	}
	if reconcileLatency != nil {
		reconcileLatency.WithLabelValues(scope).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// AddImportRows counts imported rows.
func AddImportRows(result string, count int) {
	if count <= 0 {
		return
	}
	if result == "" {
		result = resultSuccess
	}
	if importRows != nil {
		importRows.WithLabelValues(result).Add(float64(count))
	}
}

// AddReminders counts reminder outcomes.
func AddReminders(result string, count int) {
	if count <= 0 {
		return
	}
	if reminderTotal != nil {
		reminderTotal.WithLabelValues(result).Add(float64(count))
	}
}

// ObserveCacheRefresh records a refresh run and how many charges changed.
func ObserveCacheRefresh(result string, updated int, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if cacheRefreshTotal != nil {
		cacheRefreshTotal.WithLabelValues(result).Inc()
	}
	if cacheRefreshLatency != nil {
		cacheRefreshLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if cacheRefreshUpdated != nil && updated > 0 {
		cacheRefreshUpdated.Add(float64(updated))
	}
}

// IncHTTPRequest counts a served request.
func IncHTTPRequest(method, code string) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, code).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	ReminderSent    = "sent"
	ReminderSkipped = "skipped"
	ReminderFailed  = "failed"
)
