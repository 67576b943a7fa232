package model

import (
	"fmt"
	"math"
	"time"
)

// Party is one of the three interests balanced by the scorer.
type Party string

const (
	PartyCustomer Party = "customer"
	PartyEngineer Party = "engineer"
	PartyPlatform Party = "platform"
)

// ScoreFactor is one scored dimension of a candidate.
type ScoreFactor struct {
	ID           string  `json:"id"`
	Party        Party   `json:"party"`
	RawValue     float64 `json:"raw_value"`
	Unit         string  `json:"unit"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Explanation  string  `json:"explanation"`
}

// NewFactor clamps score to [0,100] and derives the contribution.
func NewFactor(id string, party Party, weight, raw float64, unit string, score float64, explanation string) ScoreFactor {
	s := Round2(Clamp(score, 0, 100))
	return ScoreFactor{
		ID:           id,
		Party:        party,
		RawValue:     Round2(raw),
		Unit:         unit,
		Score:        s,
		Weight:       weight,
		Contribution: s * weight,
		Explanation:  explanation,
	}
}

// Weights is the party weight vector of a composite score.
type Weights struct {
	Customer float64 `json:"customer"`
	Engineer float64 `json:"engineer"`
	Platform float64 `json:"platform"`
}

const weightTolerance = 1e-6

// DefaultWeights returns the 0.4/0.3/0.3 split.
func DefaultWeights() Weights {
	return Weights{Customer: 0.4, Engineer: 0.3, Platform: 0.3}
}

// Validate checks each weight lies in [0,1] and the vector sums to 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Customer, w.Engineer, w.Platform} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("weight %v out of range [0,1]", v)
		}
	}
	if sum := w.Customer + w.Engineer + w.Platform; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights sum to %v, want 1", sum)
	}
	return nil
}

// Of returns the weight of a party.
func (w Weights) Of(p Party) float64 {
	switch p {
	case PartyCustomer:
		return w.Customer
	case PartyEngineer:
		return w.Engineer
	default:
		return w.Platform
	}
}

// Adjust sets one party's weight and rescales the other two proportionally so
// the vector still sums to 1. When the other two are both zero they share the
// remainder equally.
func (w Weights) Adjust(p Party, value float64) (Weights, error) {
	if value < 0 || value > 1 || math.IsNaN(value) {
		return w, fmt.Errorf("weight %v out of range [0,1]", value)
	}
	var a, b *float64
	out := w
	switch p {
	case PartyCustomer:
		out.Customer, a, b = value, &out.Engineer, &out.Platform
	case PartyEngineer:
		out.Engineer, a, b = value, &out.Customer, &out.Platform
	case PartyPlatform:
		out.Platform, a, b = value, &out.Customer, &out.Engineer
	default:
		return w, fmt.Errorf("unknown party %q", p)
	}
	rest := 1 - value
	if others := *a + *b; others > 0 {
		*a = rest * (*a / others)
		*b = rest - *a
	} else {
		*a = rest / 2
		*b = rest / 2
	}
	return out, nil
}

// SlotScore aggregates the factors of one candidate.
type SlotScore struct {
	Customer     float64       `json:"customer"`
	Engineer     float64       `json:"engineer"`
	Platform     float64       `json:"platform"`
	Composite    float64       `json:"composite"`
	Weights      Weights       `json:"weights"`
	Factors      []ScoreFactor `json:"factors"`
	CalculatedAt time.Time     `json:"calculated_at"`
}

// Aggregate sums factor contributions per party and combines them with w.
func Aggregate(factors []ScoreFactor, w Weights, at time.Time) SlotScore {
	var c, e, p float64
	for _, f := range factors {
		switch f.Party {
		case PartyCustomer:
			c += f.Contribution
		case PartyEngineer:
			e += f.Contribution
		case PartyPlatform:
			p += f.Contribution
		}
	}
	c, e, p = Round2(c), Round2(e), Round2(p)
	return SlotScore{
		Customer:     c,
		Engineer:     e,
		Platform:     p,
		Composite:    Round2(c*w.Customer + e*w.Engineer + p*w.Platform),
		Weights:      w,
		Factors:      factors,
		CalculatedAt: at,
	}
}

// Display returns the composite rounded for presentation.
func (s SlotScore) Display() int { return int(math.Round(s.Composite)) }

// Factor returns the factor with the given id.
func (s SlotScore) Factor(id string) (ScoreFactor, bool) {
	for _, f := range s.Factors {
		if f.ID == id {
			return f, true
		}
	}
	return ScoreFactor{}, false
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
