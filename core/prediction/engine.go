package prediction

import (
	"context"
	"time"

	"github.com/kilianp07/fieldalloc/core/model"
)

// Tier buckets a cancellation probability.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// TierFor maps a probability to its tier.
func TierFor(p float64) Tier {
	switch {
	case p < 0.15:
		return TierLow
	case p < 0.35:
		return TierMedium
	default:
		return TierHigh
	}
}

// Input describes a candidate booking/slot pair.
type Input struct {
	RequestedAt time.Time
	SlotDate    time.Time
	Flexibility model.Flexibility
	// Customer is nil for customers without history.
	Customer *model.CustomerMetrics
}

// Factor is one named contribution to the probability.
type Factor struct {
	Name   string  `json:"name"`
	Impact float64 `json:"impact"`
	Value  float64 `json:"value"`
	Detail string  `json:"detail,omitempty"`
}

// Risk is a cancellation prediction.
type Risk struct {
	Probability float64  `json:"probability"`
	Tier        Tier     `json:"tier"`
	Factors     []Factor `json:"factors"`
}

// Score inverts the probability into a 0-100 score.
func (r Risk) Score() float64 { return model.Round2((1 - r.Probability) * 100) }

// CancellationPredictor forecasts booking cancellations.
type CancellationPredictor interface {
	Predict(ctx context.Context, in Input) (Risk, error)
}
