package metrics

import "time"

// AllocationDecision is one allocation decision, applied, shadow or
// preview. EngineerID is empty when no viable candidate was found.
type AllocationDecision struct {
	BookingID      string
	EngineerID     string
	Outcome        string
	Composite      float64
	CustomerScore  float64
	EngineerScore  float64
	PlatformScore  float64
	CandidateCount int
	ViableCount    int
	Latency        time.Duration
	Time           time.Time
}

// MetricsSink records allocation decisions for observability purposes.
type MetricsSink interface {
	RecordAllocation(ev AllocationDecision) error
}

// ShadowComparison records a shadow decision against the legacy choice.
type ShadowComparison struct {
	BookingID          string
	EngineerID         string
	LegacyEngineerID   string
	DecisionChanged    bool
	ImprovementPercent float64
	Error              string
	Time               time.Time
}

// ShadowRecorder records shadow comparisons.
type ShadowRecorder interface {
	RecordShadowComparison(ev ShadowComparison) error
}

// OverrideRecord is a manual reassignment.
type OverrideRecord struct {
	BookingID          string
	PreviousEngineerID string
	EngineerID         string
	Reason             string
	Time               time.Time
}

// OverrideRecorder records manual overrides.
type OverrideRecorder interface {
	RecordOverride(ev OverrideRecord) error
}

// OutcomeRecord is a booking reaching completed or cancelled.
type OutcomeRecord struct {
	BookingID  string
	EngineerID string
	District   string
	Status     string
	Time       time.Time
}

// OutcomeRecorder records booking outcomes.
type OutcomeRecorder interface {
	RecordOutcome(ev OutcomeRecord) error
}

// QuoteRecord is a calculated price.
type QuoteRecord struct {
	ServiceID     string
	BasePrice     float64
	FinalPrice    float64
	TotalDiscount float64
	TotalPremium  float64
	Adjustments   int
	Time          time.Time
}

// QuoteRecorder records price quotes.
type QuoteRecorder interface {
	RecordQuote(ev QuoteRecord) error
}

// RecalcRecord summarises a metric recalculation pass.
type RecalcRecord struct {
	Kind      string
	Processed int
	Failed    int
	Duration  time.Duration
	Time      time.Time
}

// RecalcRecorder records recalculation passes.
type RecalcRecorder interface {
	RecordRecalc(ev RecalcRecord) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordAllocation(AllocationDecision) error     { return nil }
func (NopSink) RecordShadowComparison(ShadowComparison) error { return nil }
func (NopSink) RecordOverride(OverrideRecord) error           { return nil }
func (NopSink) RecordOutcome(OutcomeRecord) error             { return nil }
func (NopSink) RecordQuote(QuoteRecord) error                 { return nil }
func (NopSink) RecordRecalc(RecalcRecord) error               { return nil }
