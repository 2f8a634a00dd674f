package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	HTTPInFlight         prometheus.Gauge
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	Mutations            *prometheus.CounterVec
	MutationDuration     *prometheus.HistogramVec
	AuditWriteFailures   *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	LoginAttempts        *prometheus.CounterVec
	AuditStreamDropped   prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics on reg.
// Tests pass prometheus.NewRegistry() so repeated construction never collides.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "gestionale_http_in_flight_requests",
			Help: "In-flight HTTP requests",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionale_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gestionale_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionale_mutations_total",
			Help: "Mutation pipeline runs by entity, action and outcome",
		}, []string{"entity", "action", "outcome"}),
		MutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gestionale_mutation_duration_seconds",
			Help:    "Duration of mutation pipeline runs",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"entity", "action"}),
		AuditWriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionale_audit_write_failures_total",
			Help: "Audit records that could not be written after a successful mutation",
		}, []string{"entity", "action"}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionale_notification_failures_total",
			Help: "Outbound notifications that failed after a successful mutation",
		}, []string{"entity"}),
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gestionale_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		AuditStreamDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "gestionale_audit_stream_dropped_total",
			Help: "Audit records dropped by the stream buffer before publishing",
		}),
		gatherer: reg,
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveMutation records the outcome and duration of a pipeline run.
// Call with time.Now() at the start of the run.
func (m *Metrics) ObserveMutation(entity, action, outcome string, start time.Time) {
	m.Mutations.WithLabelValues(entity, action, outcome).Inc()
	m.MutationDuration.WithLabelValues(entity, action).Observe(time.Since(start).Seconds())
}

// IncrementAuditWriteFailure records an audit record lost after a committed mutation.
func (m *Metrics) IncrementAuditWriteFailure(entity, action string) {
	m.AuditWriteFailures.WithLabelValues(entity, action).Inc()
}

// IncrementNotificationFailure records a swallowed notification error.
func (m *Metrics) IncrementNotificationFailure(entity string) {
	m.NotificationFailures.WithLabelValues(entity).Inc()
}

// IncrementLogin records a login attempt outcome (success, invalid, throttled).
func (m *Metrics) IncrementLogin(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// IncrementAuditStreamDropped records a record evicted from the stream buffer.
func (m *Metrics) IncrementAuditStreamDropped() {
	m.AuditStreamDropped.Inc()
}

// Instrument measures request count, latency and in-flight requests.
// The chi route pattern is used as label to keep cardinality bounded.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPInFlight.Inc()
		defer m.HTTPInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(sw.code)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
