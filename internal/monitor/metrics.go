package monitor

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the monitoring subsystem.
type Metrics struct {
	SamplesTotal     *prometheus.CounterVec
	FindingsTotal    *prometheus.CounterVec
	AlertsTotal      *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	AssessmentLevel  prometheus.Histogram
	IngestDuration   prometheus.Histogram
	SessionsActive   prometheus.Gauge
	EventsDropped    prometheus.Counter
}

// NewMetrics registers and returns monitoring metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SamplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalwatch_samples_total",
			Help: "Total ingested samples by result.",
		}, []string{"result"}),
		FindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalwatch_findings_total",
			Help: "Total findings by signal and severity.",
		}, []string{"signal", "severity"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalwatch_alerts_total",
			Help: "Total alerts created by type and severity.",
		}, []string{"type", "severity"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalwatch_transitions_total",
			Help: "Total escalation transitions by source and target tier.",
		}, []string{"from", "to"}),
		AssessmentLevel: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vitalwatch_assessment_level",
			Help:    "Triage levels assigned to assessments.",
			Buckets: prometheus.LinearBuckets(1, 1, 5), // levels 1 .. 5
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vitalwatch_ingest_duration_seconds",
			Help:    "Duration of the ingest pipeline in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 100us .. ~1.6s
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vitalwatch_sessions_active",
			Help: "Number of patients under active monitoring.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitalwatch_events_dropped_total",
			Help: "Events dropped because a subscriber fell behind.",
		}),
	}

	reg.MustRegister(
		m.SamplesTotal,
		m.FindingsTotal,
		m.AlertsTotal,
		m.TransitionsTotal,
		m.AssessmentLevel,
		m.IngestDuration,
		m.SessionsActive,
		m.EventsDropped,
	)

	return m
}
