package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/fieldalloc/core/metrics"
)

// PromSink records allocation, pricing and recalculation events in
// Prometheus metrics.
type PromSink struct {
	decisions  *prometheus.CounterVec
	composite  *prometheus.HistogramVec
	latency    prometheus.Histogram
	shadow     *prometheus.CounterVec
	improve    prometheus.Histogram
	overrides  prometheus.Counter
	outcomes   *prometheus.CounterVec
	quotes     *prometheus.HistogramVec
	recalc     *prometheus.CounterVec
	recalcTime *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldalloc_decisions_total",
			Help: "Allocation decisions by outcome",
		}, []string{"outcome"}),
		composite: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fieldalloc_selected_score",
			Help:    "Scores of selected candidates by party",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}, []string{"party"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldalloc_decision_latency_seconds",
			Help:    "Time to reach an allocation decision",
			Buckets: prometheus.DefBuckets,
		}),
		shadow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldalloc_shadow_comparisons_total",
			Help: "Shadow comparisons by whether the decision changed",
		}, []string{"changed"}),
		improve: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldalloc_shadow_improvement_percent",
			Help:    "Composite improvement over the legacy choice",
			Buckets: []float64{-50, -20, -10, 0, 10, 20, 50, 100},
		}),
		overrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldalloc_overrides_total",
			Help: "Manual allocation overrides",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldalloc_booking_outcomes_total",
			Help: "Bookings completed or cancelled",
		}, []string{"status"}),
		quotes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fieldalloc_quote_price",
			Help:    "Final quoted prices by service",
			Buckets: prometheus.ExponentialBuckets(25, 2, 8),
		}, []string{"service_id"}),
		recalc: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldalloc_recalc_entities_total",
			Help: "Entities processed by metric recalculation",
		}, []string{"kind", "result"}),
		recalcTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fieldalloc_recalc_last_duration_seconds",
			Help: "Duration of the last recalculation pass",
		}, []string{"kind"}),
	}
	var err error
	s.decisions, err = register(reg, s.decisions)
	if err == nil {
		s.composite, err = register(reg, s.composite)
	}
	if err == nil {
		s.latency, err = register(reg, s.latency)
	}
	if err == nil {
		s.shadow, err = register(reg, s.shadow)
	}
	if err == nil {
		s.improve, err = register(reg, s.improve)
	}
	if err == nil {
		s.overrides, err = register(reg, s.overrides)
	}
	if err == nil {
		s.outcomes, err = register(reg, s.outcomes)
	}
	if err == nil {
		s.quotes, err = register(reg, s.quotes)
	}
	if err == nil {
		s.recalc, err = register(reg, s.recalc)
	}
	if err == nil {
		s.recalcTime, err = register(reg, s.recalcTime)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordAllocation counts the decision and observes the selected scores.
func (s *PromSink) RecordAllocation(ev coremetrics.AllocationDecision) error {
	s.decisions.WithLabelValues(ev.Outcome).Inc()
	s.latency.Observe(ev.Latency.Seconds())
	if ev.EngineerID != "" {
		s.composite.WithLabelValues("composite").Observe(ev.Composite)
		s.composite.WithLabelValues("customer").Observe(ev.CustomerScore)
		s.composite.WithLabelValues("engineer").Observe(ev.EngineerScore)
		s.composite.WithLabelValues("platform").Observe(ev.PlatformScore)
	}
	return nil
}

func (s *PromSink) RecordShadowComparison(ev coremetrics.ShadowComparison) error {
	if ev.Error != "" {
		s.shadow.WithLabelValues("error").Inc()
		return nil
	}
	s.shadow.WithLabelValues(strconv.FormatBool(ev.DecisionChanged)).Inc()
	s.improve.Observe(ev.ImprovementPercent)
	return nil
}

func (s *PromSink) RecordOverride(coremetrics.OverrideRecord) error {
	s.overrides.Inc()
	return nil
}

func (s *PromSink) RecordOutcome(ev coremetrics.OutcomeRecord) error {
	s.outcomes.WithLabelValues(ev.Status).Inc()
	return nil
}

func (s *PromSink) RecordQuote(ev coremetrics.QuoteRecord) error {
	s.quotes.WithLabelValues(ev.ServiceID).Observe(ev.FinalPrice)
	return nil
}

func (s *PromSink) RecordRecalc(ev coremetrics.RecalcRecord) error {
	s.recalc.WithLabelValues(ev.Kind, "ok").Add(float64(ev.Processed - ev.Failed))
	s.recalc.WithLabelValues(ev.Kind, "failed").Add(float64(ev.Failed))
	s.recalcTime.WithLabelValues(ev.Kind).Set(ev.Duration.Seconds())
	return nil
}
