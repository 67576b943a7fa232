package allocation

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	decisionsTotal  *prometheus.CounterVec
	decisionLatency prometheus.Histogram
	candidatesSeen  prometheus.Histogram
	shadowChanges   *prometheus.CounterVec
	conflictsTotal  prometheus.Counter
	overridesTotal  prometheus.Counter
	outcomesTotal   *prometheus.CounterVec
)

func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, prometheus.Histogram, *prometheus.CounterVec, prometheus.Counter, prometheus.Counter, *prometheus.CounterVec) {
	dec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_decisions_total",
			Help: "Allocation decisions by outcome",
		},
		[]string{"outcome"},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "allocation_decision_seconds",
			Help:    "Time to score and select candidates for a booking",
			Buckets: prometheus.DefBuckets,
		},
	)
	cand := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "allocation_candidates",
			Help:    "Candidates scored per allocation",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)
	shadow := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_shadow_comparisons_total",
			Help: "Shadow comparisons against the legacy allocator",
		},
		[]string{"result"},
	)
	conf := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocation_conflicts_total",
			Help: "Assignments rejected because the booking changed since read",
		},
	)
	ovr := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocation_overrides_total",
			Help: "Manual allocation overrides",
		},
	)
	out := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_outcomes_total",
			Help: "Bookings moved to a terminal status",
		},
		[]string{"status"},
	)
	return dec, lat, cand, shadow, conf, ovr, out
}

func init() {
	decisionsTotal, decisionLatency, candidatesSeen, shadowChanges, conflictsTotal, overridesTotal, outcomesTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers allocation metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(decisionsTotal, decisionLatency, candidatesSeen, shadowChanges, conflictsTotal, overridesTotal, outcomesTotal)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	decisionsTotal, decisionLatency, candidatesSeen, shadowChanges, conflictsTotal, overridesTotal, outcomesTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
