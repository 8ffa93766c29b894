package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Switch update sources.
const (
	SourceUser     = "user"
	SourceOptimize = "optimize"
	SourceUpdate   = "update"
)

// Metrics holds the prometheus collectors exported on /metrics. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	decisions     *prometheus.CounterVec
	telemetry     *prometheus.CounterVec
	switchUpdates *prometheus.CounterVec
	batteryLevel  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates the collectors on their own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solaris_decisions_total",
			Help: "Switch recommendations made, by battery tier.",
		}, []string{"tier", "fallback"}),
		telemetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solaris_telemetry_samples_total",
			Help: "Telemetry samples stored, by how they arrived.",
		}, []string{"source"}),
		switchUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solaris_switch_updates_total",
			Help: "Switch state writes, by what caused them.",
		}, []string{"source"}),
		batteryLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solaris_battery_level_percent",
			Help: "Battery level from the most recent telemetry sample.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solaris_http_requests_total",
			Help: "HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solaris_http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		m.decisions,
		m.telemetry,
		m.switchUpdates,
		m.batteryLevel,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Decision counts one recommendation.
func (m *Metrics) Decision(tier string, fallback bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(tier, strconv.FormatBool(fallback)).Inc()
}

// Telemetry counts a stored sample and records its battery level.
func (m *Metrics) Telemetry(source string, batteryLevel int) {
	if m == nil {
		return
	}
	m.telemetry.WithLabelValues(source).Inc()
	m.batteryLevel.Set(float64(batteryLevel))
}

// SwitchUpdate counts n switch state writes.
func (m *Metrics) SwitchUpdate(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.switchUpdates.WithLabelValues(source).Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request counts and durations for a route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
