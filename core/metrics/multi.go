package metrics

import "errors"

// MultiSink fans records out to multiple sinks. Sinks that do not
// implement a recorder are skipped for that record.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAllocation forwards the decision to all sinks and joins their errors.
func (m *MultiSink) RecordAllocation(ev AllocationDecision) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordAllocation(ev))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordShadowComparison(ev ShadowComparison) error {
	return forward(m.Sinks, func(r ShadowRecorder) error { return r.RecordShadowComparison(ev) })
}

func (m *MultiSink) RecordOverride(ev OverrideRecord) error {
	return forward(m.Sinks, func(r OverrideRecorder) error { return r.RecordOverride(ev) })
}

func (m *MultiSink) RecordOutcome(ev OutcomeRecord) error {
	return forward(m.Sinks, func(r OutcomeRecorder) error { return r.RecordOutcome(ev) })
}

func (m *MultiSink) RecordQuote(ev QuoteRecord) error {
	return forward(m.Sinks, func(r QuoteRecorder) error { return r.RecordQuote(ev) })
}

func (m *MultiSink) RecordRecalc(ev RecalcRecord) error {
	return forward(m.Sinks, func(r RecalcRecorder) error { return r.RecordRecalc(ev) })
}

func forward[R any](sinks []MetricsSink, call func(R) error) error {
	var errs []error
	for _, s := range sinks {
		if r, ok := s.(R); ok {
			errs = append(errs, call(r))
		}
	}
	return errors.Join(errs...)
}
