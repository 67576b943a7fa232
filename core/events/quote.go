package events

import "time"

// QuoteEvent is published for every price calculated by the pricing engine.
type QuoteEvent struct {
	ServiceID     string
	CustomerID    string
	SiteID        string
	BasePrice     float64
	FinalPrice    float64
	TotalDiscount float64
	TotalPremium  float64
	Adjustments   int
	Time          time.Time
}

// RecalcEvent summarises one metric recalculation pass.
type RecalcEvent struct {
	Kind      string
	Processed int
	Failed    int
	Duration  time.Duration
	Time      time.Time
}
