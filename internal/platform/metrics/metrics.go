package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the DRM orchestrator.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	licenseRequestsTotal prometheus.Counter
	licenseRetriesTotal  prometheus.Counter
	licenseFailuresTotal prometheus.Counter
	sessionsCreatedTotal prometheus.Counter
	keySystemErrorsTotal *prometheus.CounterVec
	activePlaybacks      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the orchestrator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drm_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drm_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	licenseRequestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drm_license_requests_total",
		Help: "Total number of license-server round trips attempted",
	})
	licenseRetriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drm_license_retries_total",
		Help: "Total number of failed license exchanges (each triggers a retry until the bound)",
	})
	licenseFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drm_license_failures_total",
		Help: "Total number of license requests abandoned after exceeding the retry bound",
	})
	sessionsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drm_key_sessions_created_total",
		Help: "Total number of key sessions created",
	})
	keySystemErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drm_key_system_errors_total",
		Help: "Total number of reported key-system errors by kind",
	}, []string{"kind"})
	activePlaybacks := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drm_active_playbacks",
		Help: "Number of attached playback contexts",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		licenseRequestsTotal,
		licenseRetriesTotal,
		licenseFailuresTotal,
		sessionsCreatedTotal,
		keySystemErrorsTotal,
		activePlaybacks,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		licenseRequestsTotal: licenseRequestsTotal,
		licenseRetriesTotal:  licenseRetriesTotal,
		licenseFailuresTotal: licenseFailuresTotal,
		sessionsCreatedTotal: sessionsCreatedTotal,
		keySystemErrorsTotal: keySystemErrorsTotal,
		activePlaybacks:      activePlaybacks,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncLicenseRequests increments the license round-trip counter.
func (m *Metrics) IncLicenseRequests() {
	m.licenseRequestsTotal.Inc()
}

// IncLicenseRetries increments the failed-exchange counter.
func (m *Metrics) IncLicenseRetries() {
	m.licenseRetriesTotal.Inc()
}

// IncLicenseFailures increments the abandoned-request counter.
func (m *Metrics) IncLicenseFailures() {
	m.licenseFailuresTotal.Inc()
}

// IncSessionsCreated increments the key-session counter.
func (m *Metrics) IncSessionsCreated() {
	m.sessionsCreatedTotal.Inc()
}

// IncKeySystemError increments the error counter for the given kind.
func (m *Metrics) IncKeySystemError(kind string) {
	m.keySystemErrorsTotal.WithLabelValues(kind).Inc()
}

// SetActivePlaybacks sets the attached-playbacks gauge.
func (m *Metrics) SetActivePlaybacks(n int) {
	m.activePlaybacks.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
