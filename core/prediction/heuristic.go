package prediction

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/fieldalloc/core/model"
)

const (
	BaseProbability = 0.05
	MinProbability  = 0.01
	MaxProbability  = 0.95

	// minHistory is the number of bookings needed before a customer's own
	// cancellation rate is trusted.
	minHistory = 3
)

// HeuristicPredictor combines fixed risk factors additively on top of a
// base rate.
type HeuristicPredictor struct{}

func (HeuristicPredictor) Predict(_ context.Context, in Input) (Risk, error) {
	factors := make([]Factor, 0, 5)
	add := func(name string, impact, value float64, detail string) {
		if impact != 0 {
			factors = append(factors, Factor{Name: name, Impact: impact, Value: value, Detail: detail})
		}
	}

	requested := in.RequestedAt
	if requested.IsZero() {
		requested = time.Now()
	}
	lead := model.DaysBetween(requested, in.SlotDate)
	switch {
	case lead > 21:
		add("lead_time", 0.08, float64(lead), "booked more than three weeks ahead")
	case lead > 7:
		add("lead_time", 0.03, float64(lead), "booked more than a week ahead")
	case lead <= 1:
		add("lead_time", -0.02, float64(lead), "urgent booking")
	}

	c := in.Customer
	switch {
	case c == nil || c.TotalBookings == 0:
		add("new_customer", 0.05, 0, "no booking history")
	case c.TotalBookings >= minHistory:
		rate := c.CancellationRate()
		add("cancellation_history", rate*0.5, rate, fmt.Sprintf("%d of %d bookings cancelled", c.CancelledBookings, c.TotalBookings))
	}

	switch in.Flexibility {
	case model.FlexExact:
		add("flexibility", 0.03, 0, "fixed date")
	case model.FlexFlexibleWeek:
		add("flexibility", -0.02, 0, "flexible within the week")
	}

	switch wd := in.SlotDate.Weekday(); wd {
	case time.Monday:
		add("day_of_week", 0.03, float64(wd), "monday slot")
	case time.Friday:
		add("day_of_week", 0.04, float64(wd), "friday slot")
	case time.Saturday, time.Sunday:
		add("day_of_week", 0.05, float64(wd), "weekend slot")
	}

	p := BaseProbability
	for _, f := range factors {
		p += f.Impact
	}
	p = model.Clamp(p, MinProbability, MaxProbability)
	p = math.Round(p*10000) / 10000
	return Risk{Probability: p, Tier: TierFor(p), Factors: factors}, nil
}
