package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for Sendero
type Metrics struct {
	// Tick outcomes
	TicksTotal *prometheus.CounterVec

	// Email counters
	EmailsSentTotal   prometheus.Counter
	EmailsFailedTotal prometheus.Counter
	TestSendsTotal    prometheus.Counter

	// Quota gauges
	QuotaUsedToday prometheus.Gauge
	QuotaLimit     prometheus.Gauge

	// Scheduler gauges
	JobsPending prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendero_ticks_total",
				Help: "Total number of processed ticks by outcome",
			},
			[]string{"action"},
		),
		EmailsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sendero_emails_sent_total",
				Help: "Total number of campaign emails delivered",
			},
		),
		EmailsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sendero_emails_failed_total",
				Help: "Total number of campaign emails that failed permanently",
			},
		),
		TestSendsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sendero_test_sends_total",
				Help: "Total number of test emails sent",
			},
		),
		QuotaUsedToday: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sendero_quota_used_today",
				Help: "Emails counted against today's quota",
			},
		),
		QuotaLimit: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sendero_quota_limit",
				Help: "Configured daily quota",
			},
		),
		JobsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sendero_jobs_pending",
				Help: "Scheduled tick callbacks awaiting delivery",
			},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendero_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sendero_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.TicksTotal,
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.TestSendsTotal,
		m.QuotaUsedToday,
		m.QuotaLimit,
		m.JobsPending,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTick counts one tick outcome and the email counters it implies
func (m *Metrics) RecordTick(action string) {
	m.TicksTotal.WithLabelValues(action).Inc()
	switch action {
	case "sent":
		m.EmailsSentTotal.Inc()
	case "failed":
		m.EmailsFailedTotal.Inc()
	}
}
