package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for the entry workflow. A nil *Metrics is a no-op.
type Metrics struct {
	detections      *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	downstreamCalls *prometheus.CounterVec
	platesFound     prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alpr_entry_requests_total",
			Help: "Entry detection requests by terminal state and error kind.",
		}, []string{"state", "kind"}),

		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alpr_stage_duration_seconds",
			Help:    "Duration of each external call in the entry workflow.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 7.5, 10, 15},
		}, []string{"stage"}),

		downstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alpr_downstream_requests_total",
			Help: "Requests sent to the parking server by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),

		platesFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alpr_plate_candidates",
			Help:    "Number of valid plate candidates per detection.",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),
	}

	reg.MustRegister(m.detections, m.stageDuration, m.downstreamCalls, m.platesFound)
	return m
}

func (m *Metrics) ObserveEntry(state, kind string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(state, kind).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveDownstream(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.downstreamCalls.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) ObservePlates(n int) {
	if m == nil {
		return
	}
	m.platesFound.Observe(float64(n))
}
