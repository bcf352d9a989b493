package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ledger synchronization metrics
	SeatSyncAttemptsTotal *prometheus.CounterVec
	SeatSyncDuration      prometheus.Histogram
	SeatQuantityGauge     *prometheus.GaugeVec

	// Membership metrics
	MembershipActionsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seatsync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seatsync_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SeatSyncAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seatsync_ledger_sync_attempts_total",
				Help: "Ledger synchronization attempts by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		SeatSyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seatsync_ledger_sync_duration_seconds",
				Help:    "Ledger synchronization call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SeatQuantityGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "seatsync_billable_seats",
				Help: "Last synchronized billable seat quantity per account",
			},
			[]string{"account_id"},
		),
		MembershipActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seatsync_membership_actions_total",
				Help: "Membership state machine actions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "seatsync_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "seatsync_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SeatSyncAttemptsTotal,
		m.SeatSyncDuration,
		m.SeatQuantityGauge,
		m.MembershipActionsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records metrics for a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveMembershipAction records a membership state machine action
func (m *Metrics) ObserveMembershipAction(action string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.MembershipActionsTotal.WithLabelValues(action, outcome).Inc()
}

// SetBillableSeats records the last synchronized seat quantity
func (m *Metrics) SetBillableSeats(accountID int64, quantity int64) {
	m.SeatQuantityGauge.WithLabelValues(strconv.FormatInt(accountID, 10)).Set(float64(quantity))
}

// ObserveSeatSync records a ledger synchronization attempt
func (m *Metrics) ObserveSeatSync(trigger string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.SeatSyncAttemptsTotal.WithLabelValues(trigger, outcome).Inc()
	m.SeatSyncDuration.Observe(duration.Seconds())
}
