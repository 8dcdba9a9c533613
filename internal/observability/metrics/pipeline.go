package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	emailsTotal    *prometheus.CounterVec
	emailDuration  *prometheus.HistogramVec
	emailsInFlight prometheus.Gauge
	dedupTotal     *prometheus.CounterVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	emailsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finledger",
			Subsystem: "pipeline",
			Name:      "emails_total",
			Help:      "Total emails by processing outcome.",
		},
		[]string{"service", "outcome"},
	)
	emailDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finledger",
			Subsystem: "pipeline",
			Name:      "email_duration_seconds",
			Help:      "Email processing duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "outcome"},
	)
	emailsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "finledger",
			Subsystem: "pipeline",
			Name:      "emails_in_flight",
			Help:      "Number of emails currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	dedupTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finledger",
			Subsystem: "pipeline",
			Name:      "emails_deduplicated_total",
			Help:      "Total emails skipped by the claim gate, by reason.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(emailsTotal, emailDuration, emailsInFlight, dedupTotal)

	return &PipelineMetrics{
		registry:       registry,
		emailsTotal:    emailsTotal,
		emailDuration:  emailDuration,
		emailsInFlight: emailsInFlight,
		dedupTotal:     dedupTotal,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartEmail() {
	m.emailsInFlight.Inc()
}

func (m *PipelineMetrics) FinishEmail(service, outcome string, duration time.Duration) {
	m.emailsInFlight.Dec()
	m.emailsTotal.WithLabelValues(service, outcome).Inc()
	m.emailDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) RecordDedup(service, reason string) {
	m.dedupTotal.WithLabelValues(service, reason).Inc()
}
