package model

import "time"

// Slot is a candidate (engineer, date, half-day) triple with its derived
// price and duration.
type Slot struct {
	EngineerID         string    `json:"engineer_id"`
	Date               time.Time `json:"date"`
	HalfDay            HalfDay   `json:"half_day"`
	Price              float64   `json:"price"`
	DurationMinutes    int       `json:"duration_minutes"`
	ClusterOpportunity bool      `json:"cluster_opportunity"`
	NearbyJobs         int       `json:"nearby_jobs"`
	Score              float64   `json:"score,omitempty"`
}

// Start returns the slot start time.
func (s Slot) Start() time.Time { return s.HalfDay.Start(s.Date) }

// AllocationCandidate pairs an engineer and slot with its score.
type AllocationCandidate struct {
	Engineer Engineer  `json:"engineer"`
	Slot     Slot      `json:"slot"`
	Score    SlotScore `json:"score"`
	Viable   bool      `json:"viable"`
	Reasons  []string  `json:"reasons,omitempty"`
}

// LegacyComparison records how a shadow decision differs from the legacy
// allocator's choice.
type LegacyComparison struct {
	EngineerID         string  `json:"engineer_id,omitempty"`
	Score              float64 `json:"score"`
	DecisionChanged    bool    `json:"decision_changed"`
	ImprovementPercent float64 `json:"improvement_percent"`
	Error              string  `json:"error,omitempty"`
}

// AllocationResult is the outcome of one allocation call.
type AllocationResult struct {
	Success          bool                  `json:"success"`
	BookingID        string                `json:"booking_id"`
	Selected         *AllocationCandidate  `json:"selected,omitempty"`
	Candidates       []AllocationCandidate `json:"candidates"`
	Error            string                `json:"error,omitempty"`
	Applied          bool                  `json:"applied"`
	Shadow           bool                  `json:"shadow"`
	LegacyComparison *LegacyComparison     `json:"v1_comparison,omitempty"`
}
