package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulingMetrics exposes counters/histograms for booking and lifecycle flows.
// A nil *SchedulingMetrics records nothing.
type SchedulingMetrics struct {
	bookingAttempts *prometheus.CounterVec
	bookingLatency  prometheus.Histogram
	transitions     *prometheus.CounterVec
	rollbacks       prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Name:      "booking_attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wellness",
			Name:      "booking_duration_seconds",
			Help:      "Time spent committing a booking",
			Buckets:   prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Name:      "lifecycle_transitions_total",
			Help:      "Appointment lifecycle transitions by action and outcome",
		}, []string{"action", "outcome"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wellness",
			Name:      "optimistic_rollbacks_total",
			Help:      "Optimistic view updates rolled back after a failed commit",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingAttempts, m.bookingLatency, m.transitions, m.rollbacks)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(outcome).Inc()
	m.bookingLatency.Observe(took.Seconds())
}

func (m *SchedulingMetrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveRollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}
