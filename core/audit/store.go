// Package audit persists allocation decisions for after-the-fact review.
// Records are append-only; stores differ only in where they keep them.
package audit

import (
	"context"
	"slices"
	"time"

	"github.com/kilianp07/fieldalloc/core/model"
)

// Kind tags what produced a decision record.
type Kind string

const (
	KindAllocation  Kind = "allocation"
	KindShadow      Kind = "shadow"
	KindOverride    Kind = "override"
	KindNoCandidate Kind = "no_candidate"
)

// CandidateSummary is the compact form of a scored candidate.
type CandidateSummary struct {
	EngineerID string        `json:"engineer_id"`
	Date       time.Time     `json:"date"`
	HalfDay    model.HalfDay `json:"half_day"`
	Composite  float64       `json:"composite"`
	Customer   float64       `json:"customer"`
	Engineer   float64       `json:"engineer"`
	Platform   float64       `json:"platform"`
	Viable     bool          `json:"viable"`
	Reasons    []string      `json:"reasons,omitempty"`
}

// DecisionRecord captures one allocation decision.
type DecisionRecord struct {
	ID                 string                  `json:"id"`
	Timestamp          time.Time               `json:"timestamp"`
	Kind               Kind                    `json:"kind"`
	BookingID          string                  `json:"booking_id"`
	EngineerID         string                  `json:"engineer_id,omitempty"`
	PreviousEngineerID string                  `json:"previous_engineer_id,omitempty"`
	Composite          float64                 `json:"composite"`
	Weights            model.Weights           `json:"weights"`
	CandidateCount     int                     `json:"candidate_count"`
	ViableCount        int                     `json:"viable_count"`
	Applied            bool                    `json:"applied"`
	Reason             string                  `json:"reason,omitempty"`
	Legacy             *model.LegacyComparison `json:"legacy,omitempty"`
	Candidates         []CandidateSummary      `json:"candidates,omitempty"`
}

// Involves reports whether the engineer was selected, replaced or scored.
func (r DecisionRecord) Involves(engineerID string) bool {
	if r.EngineerID == engineerID || r.PreviousEngineerID == engineerID {
		return true
	}
	return slices.ContainsFunc(r.Candidates, func(c CandidateSummary) bool {
		return c.EngineerID == engineerID
	})
}

// Query defines filters for retrieving records.
type Query struct {
	Start      time.Time
	End        time.Time
	BookingID  string
	EngineerID string
	Kind       Kind
	Limit      int
}

// Match reports whether r satisfies every set filter.
func (q Query) Match(r DecisionRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.BookingID != "" && r.BookingID != q.BookingID {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.EngineerID != "" && !r.Involves(q.EngineerID) {
		return false
	}
	return true
}

// limit truncates to the newest q.Limit records of a chronological slice.
func (q Query) limit(recs []DecisionRecord) []DecisionRecord {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// Store persists DecisionRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec DecisionRecord) error
	Query(ctx context.Context, q Query) ([]DecisionRecord, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, DecisionRecord) error { return nil }
func (NopStore) Query(context.Context, Query) ([]DecisionRecord, error) {
	return nil, nil
}
func (NopStore) Close() error { return nil }
