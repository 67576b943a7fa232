package geocode

import "github.com/prometheus/client_golang/prometheus"

var (
	lookups       *prometheus.CounterVec
	lookupLatency prometheus.Histogram
	cacheResults  *prometheus.CounterVec
)

func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, *prometheus.CounterVec) {
	l := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_lookups_total",
			Help: "Upstream postcode lookups by result",
		},
		[]string{"result"},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocode_lookup_seconds",
			Help:    "Upstream postcode lookup latency",
			Buckets: prometheus.DefBuckets,
		},
	)
	c := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_cache_total",
			Help: "Postcode cache lookups by result",
		},
		[]string{"result"},
	)
	return l, lat, c
}

func init() {
	lookups, lookupLatency, cacheResults = newCollectors()
}

// MustRegisterMetrics registers the collectors with reg or the default
// registerer.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(lookups, lookupLatency, cacheResults)
}

// ResetMetrics replaces the collectors and registers them with reg.
func ResetMetrics(reg prometheus.Registerer) {
	lookups, lookupLatency, cacheResults = newCollectors()
	if reg != nil {
		reg.MustRegister(lookups, lookupLatency, cacheResults)
	}
}
