package pricing

import "github.com/prometheus/client_golang/prometheus"

var (
	quotesTotal      prometheus.Counter
	adjustmentsTotal *prometheus.CounterVec
)

func newCollectors() (prometheus.Counter, *prometheus.CounterVec) {
	q := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pricing_quotes_total",
		Help: "Number of price quotes calculated",
	})
	a := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_adjustments_total",
			Help: "Number of pricing adjustments applied",
		},
		[]string{"rule_type", "direction"},
	)
	return q, a
}

func init() {
	quotesTotal, adjustmentsTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers pricing metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(quotesTotal, adjustmentsTotal)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	quotesTotal, adjustmentsTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
