package events

import (
	"time"

	"github.com/kilianp07/fieldalloc/core/model"
)

// AllocationEvent is published for each allocation decision. EngineerID is
// empty when no viable candidate was found.
type AllocationEvent struct {
	BookingID      string
	EngineerID     string
	Date           time.Time
	HalfDay        model.HalfDay
	Composite      float64
	Scores         model.SlotScore
	CandidateCount int
	ViableCount    int
	Shadow         bool
	Applied        bool
	Duration       time.Duration
	Time           time.Time
}

// ShadowComparisonEvent compares a shadow decision with the legacy choice.
type ShadowComparisonEvent struct {
	BookingID          string
	EngineerID         string
	LegacyEngineerID   string
	DecisionChanged    bool
	ImprovementPercent float64
	Err                error
	Time               time.Time
}

// OverrideEvent is published when an operator reassigns a booking by hand.
type OverrideEvent struct {
	BookingID          string
	PreviousEngineerID string
	EngineerID         string
	Reason             string
	Time               time.Time
}
