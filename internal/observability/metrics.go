package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	conflicts       prometheus.Counter
	sweepActions    *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	riskScores      *prometheus.HistogramVec
	notifyDropped   prometheus.Counter
	notifyQueueSize prometheus.Gauge
}

// NewMetrics registers collectors on a fresh registry together with the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "change_service",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "change_service",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "change_service",
			Name:      "http_errors_total",
			Help:      "HTTP errors by route and error code.",
		}, []string{"route", "method", "code"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "change_service",
			Name:      "approval_decisions_total",
			Help:      "Ledger records appended by decision and source.",
		}, []string{"decision", "source"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "change_service",
			Name:      "status_transitions_total",
			Help:      "Change request lifecycle transitions.",
		}, []string{"from", "to"}),
		conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "change_service",
			Name:      "concurrency_conflicts_total",
			Help:      "Optimistic concurrency conflicts on change requests.",
		}),
		sweepActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "change_service",
			Name:      "escalation_actions_total",
			Help:      "Timeout actions taken by the escalation sweep.",
		}, []string{"action"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "change_service",
			Name:      "escalation_sweep_duration_seconds",
			Help:      "Duration of escalation sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		riskScores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "change_service",
			Name:      "risk_score",
			Help:      "Risk scores computed at creation.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}, []string{"level"}),
		notifyDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "change_service",
			Name:      "notifications_dropped_total",
			Help:      "Events dropped because the notification queue was full.",
		}),
		notifyQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "change_service",
			Name:      "notification_queue_depth",
			Help:      "Events waiting in the notification queue.",
		}),
	}
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response by code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordDecision counts an appended ledger record.
func (m *Metrics) RecordDecision(decision, source string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision, source).Inc()
}

// RecordTransition counts a lifecycle transition.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordConflict counts an optimistic concurrency conflict.
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// RecordSweepAction counts a timeout action.
func (m *Metrics) RecordSweepAction(action string) {
	if m == nil {
		return
	}
	m.sweepActions.WithLabelValues(action).Inc()
}

// ObserveSweep records a sweep duration.
func (m *Metrics) ObserveSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

// ObserveRiskScore records a creation-time risk score.
func (m *Metrics) ObserveRiskScore(level string, score float64) {
	if m == nil {
		return
	}
	m.riskScores.WithLabelValues(level).Observe(score)
}

// RecordNotificationDropped counts an event the queue could not accept.
func (m *Metrics) RecordNotificationDropped() {
	if m == nil {
		return
	}
	m.notifyDropped.Inc()
}

// SetNotificationQueueDepth reports the queue backlog.
func (m *Metrics) SetNotificationQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.notifyQueueSize.Set(float64(depth))
}
