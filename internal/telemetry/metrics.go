package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	pollTicks     *prometheus.CounterVec
	jobsStarted   *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	pollDuration  *prometheus.HistogramVec
	activePolls   prometheus.Gauge
	submitErrors  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	liveSessions  prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genflow_poll_ticks_total",
			Help: "Provider status fetches by provider and normalized result.",
		}, []string{"provider", "result"}),
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genflow_jobs_started_total",
			Help: "Jobs accepted by a provider, by kind and provider.",
		}, []string{"kind", "provider"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genflow_jobs_finished_total",
			Help: "Poll loops that reached a terminal outcome.",
		}, []string{"kind", "outcome"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genflow_poll_duration_seconds",
			Help:    "Time from entering polling to a terminal outcome.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900, 1200},
		}, []string{"kind", "outcome"}),
		activePolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genflow_active_polls",
			Help: "Poll loops currently running.",
		}),
		submitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genflow_submit_errors_total",
			Help: "Provider submissions that failed, by provider and error kind.",
		}, []string{"provider", "error_kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genflow_notifications_total",
			Help: "Notifications emitted to live sessions.",
		}, []string{"kind", "transition"}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genflow_live_sessions",
			Help: "Open live status sessions.",
		}),
	}

	registry.MustRegister(
		m.pollTicks,
		m.jobsStarted,
		m.jobsFinished,
		m.pollDuration,
		m.activePolls,
		m.submitErrors,
		m.notifications,
		m.liveSessions,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PollTick(provider, result string) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) PollStarted() {
	if m == nil {
		return
	}
	m.activePolls.Inc()
}

func (m *Metrics) PollStopped() {
	if m == nil {
		return
	}
	m.activePolls.Dec()
}

func (m *Metrics) JobStarted(kind, provider string) {
	if m == nil {
		return
	}
	m.jobsStarted.WithLabelValues(kind, provider).Inc()
}

func (m *Metrics) JobFinished(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(kind, outcome).Inc()
	m.pollDuration.WithLabelValues(kind, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) SubmitFailed(provider, errorKind string) {
	if m == nil {
		return
	}
	if errorKind == "" {
		errorKind = "unknown"
	}
	m.submitErrors.WithLabelValues(provider, errorKind).Inc()
}

func (m *Metrics) NotificationEmitted(kind, transition string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, transition).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.liveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.liveSessions.Dec()
}
