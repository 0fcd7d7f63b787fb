package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// IntakeMetrics records the batch pipeline. It implements usecase.Observer.
type IntakeMetrics struct {
	service  string
	registry *prometheus.Registry

	documentTotal    *prometheus.CounterVec
	documentDuration *prometheus.HistogramVec
	batchInFlight    prometheus.Gauge
	pollAttempts     *prometheus.HistogramVec
	gateTotal        *prometheus.CounterVec
	notifyTotal      *prometheus.CounterVec
	queueLag         *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
}

func NewIntakeMetrics(service string) *IntakeMetrics {
	registry := prometheus.NewRegistry()

	documentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Total processed documents by terminal outcome.",
		},
		[]string{"service", "outcome"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Per-document pipeline duration in seconds by outcome.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
		},
		[]string{"service", "outcome"},
	)
	batchInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "intake",
			Subsystem: "pipeline",
			Name:      "batches_in_flight",
			Help:      "Number of batches currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pollAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "extraction",
			Name:      "poll_attempts",
			Help:      "Status polls per document until classification or give-up.",
			Buckets:   []float64{1, 2, 3, 5, 8, 12, 16, 20},
		},
		[]string{"service", "result"},
	)
	gateTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "gate",
			Name:      "evaluations_total",
			Help:      "Completion gate evaluations by result.",
		},
		[]string{"service", "result"},
	)
	notifyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "notification",
			Name:      "emails_total",
			Help:      "Verification report emails by status.",
		},
		[]string{"service", "status"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between batch creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "intake",
			Subsystem: "services",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per outbound operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	m := &IntakeMetrics{
		service:          service,
		registry:         registry,
		documentTotal:    documentTotal,
		documentDuration: documentDuration,
		batchInFlight:    batchInFlight,
		pollAttempts:     pollAttempts,
		gateTotal:        gateTotal,
		notifyTotal:      notifyTotal,
		queueLag:         queueLag,
		breakerState:     breakerState,
	}
	registry.MustRegister(m.Collectors()...)
	return m
}

// Collectors lets the API server expose these series on its own registry.
func (m *IntakeMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.documentTotal,
		m.documentDuration,
		m.batchInFlight,
		m.pollAttempts,
		m.gateTotal,
		m.notifyTotal,
		m.queueLag,
		m.breakerState,
	}
}

func (m *IntakeMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *IntakeMetrics) StartBatch() {
	m.batchInFlight.Inc()
}

func (m *IntakeMetrics) FinishBatch() {
	m.batchInFlight.Dec()
}

func (m *IntakeMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *IntakeMetrics) ObserveDocument(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.documentTotal.WithLabelValues(m.service, outcome).Inc()
	m.documentDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *IntakeMetrics) ObservePoll(attempts int, classified bool) {
	result := "classified"
	if !classified {
		result = "gave_up"
	}
	m.pollAttempts.WithLabelValues(m.service, result).Observe(float64(attempts))
}

func (m *IntakeMetrics) ObserveGate(fired bool) {
	result := "fired"
	if !fired {
		result = "skipped"
	}
	m.gateTotal.WithLabelValues(m.service, result).Inc()
}

func (m *IntakeMetrics) ObserveNotification(err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.notifyTotal.WithLabelValues(m.service, status).Inc()
}

// ObserveBreakerState matches resilience.StateListener.
func (m *IntakeMetrics) ObserveBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
