package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the transcoding
// orchestrator.
type Metrics struct {
	registry                 *prometheus.Registry
	requestsTotal            prometheus.Counter
	jobsDispatchedTotal      prometheus.Counter
	dispatchFailuresTotal    prometheus.Counter
	webhooksReceivedTotal    prometheus.Counter
	webhooksRejectedTotal    prometheus.Counter
	transcodesCompletedTotal prometheus.Counter
	transcodesFailedTotal    prometheus.Counter
	retriesTotal             prometheus.Counter
	activeTranscodingJobs    prometheus.Gauge
	errorsTotal              prometheus.Counter
}

// New creates and registers Prometheus metrics for the orchestrator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcode_requests_total",
		Help: "Total number of HTTP requests received",
	})
	jobsDispatchedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcode_jobs_dispatched_total",
		Help: "Total number of transcoding jobs submitted to the provider",
	})
	dispatchFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcode_dispatch_failures_total",
		Help: "Total number of job submissions rejected or unreachable",
	})
	webhooksReceivedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcode_webhooks_received_total",
		Help: "Total number of webhook callbacks received",
	})
	webhooksRejectedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcode_webhooks_rejected_total",
		Help: "Total number of webhook callbacks rejected before processing",
	})
	transcodesCompletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcode_completed_total",
		Help: "Total number of records transitioned to ready",
	})
	transcodesFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcode_failed_total",
		Help: "Total number of records transitioned to failed",
	})
	retriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcode_retries_total",
		Help: "Total number of manual retries dispatched",
	})
	activeTranscodingJobs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transcode_active_jobs",
		Help: "Number of records currently in transcoding status",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcode_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		jobsDispatchedTotal,
		dispatchFailuresTotal,
		webhooksReceivedTotal,
		webhooksRejectedTotal,
		transcodesCompletedTotal,
		transcodesFailedTotal,
		retriesTotal,
		activeTranscodingJobs,
		errorsTotal,
	)

	return &Metrics{
		registry:                 registry,
		requestsTotal:            requestsTotal,
		jobsDispatchedTotal:      jobsDispatchedTotal,
		dispatchFailuresTotal:    dispatchFailuresTotal,
		webhooksReceivedTotal:    webhooksReceivedTotal,
		webhooksRejectedTotal:    webhooksRejectedTotal,
		transcodesCompletedTotal: transcodesCompletedTotal,
		transcodesFailedTotal:    transcodesFailedTotal,
		retriesTotal:             retriesTotal,
		activeTranscodingJobs:    activeTranscodingJobs,
		errorsTotal:              errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncJobsDispatched increments the dispatched jobs counter.
func (m *Metrics) IncJobsDispatched() {
	m.jobsDispatchedTotal.Inc()
}

// IncDispatchFailures increments the dispatch failures counter.
func (m *Metrics) IncDispatchFailures() {
	m.dispatchFailuresTotal.Inc()
}

// IncWebhooksReceived increments the received webhooks counter.
func (m *Metrics) IncWebhooksReceived() {
	m.webhooksReceivedTotal.Inc()
}

// IncWebhooksRejected increments the rejected webhooks counter.
func (m *Metrics) IncWebhooksRejected() {
	m.webhooksRejectedTotal.Inc()
}

// IncTranscodesCompleted increments the ready transitions counter.
func (m *Metrics) IncTranscodesCompleted() {
	m.transcodesCompletedTotal.Inc()
}

// IncTranscodesFailed increments the failed transitions counter.
func (m *Metrics) IncTranscodesFailed() {
	m.transcodesFailedTotal.Inc()
}

// IncRetries increments the manual retries counter.
func (m *Metrics) IncRetries() {
	m.retriesTotal.Inc()
}

// SetActiveTranscodingJobs sets the active transcoding gauge.
func (m *Metrics) SetActiveTranscodingJobs(n int) {
	m.activeTranscodingJobs.Set(float64(n))
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// active transcoding jobs).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
