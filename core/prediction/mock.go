package prediction

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by MockPredictor when Fail is set.
var ErrUnavailable = errors.New("prediction: predictor unavailable")

// MockPredictor returns configured probabilities keyed by customer id.
type MockPredictor struct {
	Probabilities map[string]float64
	Default       float64
	Fail          bool
}

// Predict returns the configured probability for the customer, the default,
// or BaseProbability.
func (m MockPredictor) Predict(_ context.Context, in Input) (Risk, error) {
	if m.Fail {
		return Risk{}, ErrUnavailable
	}
	p := m.Default
	if p == 0 {
		p = BaseProbability
	}
	if in.Customer != nil && m.Probabilities != nil {
		if v, ok := m.Probabilities[in.Customer.CustomerID]; ok {
			p = v
		}
	}
	return Risk{Probability: p, Tier: TierFor(p)}, nil
}
