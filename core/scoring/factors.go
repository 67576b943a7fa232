package scoring

import (
	"fmt"
	"math"

	"github.com/kilianp07/fieldalloc/core/model"
)

// Factor ids.
const (
	FactorTimeMatch        = "time_match"
	FactorWaitTime         = "wait_time"
	FactorEngineerQuality  = "engineer_quality"
	FactorPriceFit         = "price_fit"
	FactorTravelEfficiency = "travel_efficiency"
	FactorEarningsPerHour  = "earnings_per_hour"
	FactorRouteContinuity  = "route_continuity"
	FactorWorkloadBalance  = "workload_balance"
	FactorMargin           = "margin"
	FactorUtilization      = "utilization"
	FactorCustomerLTV      = "customer_ltv"
	FactorNetworkEffect    = "network_effect"
	FactorCancellationRisk = "cancellation_risk"
)

// FactorWeights are the intra-party weights. Each party's weights sum to 1.
var FactorWeights = map[string]float64{
	FactorTimeMatch:        0.25,
	FactorWaitTime:         0.25,
	FactorEngineerQuality:  0.30,
	FactorPriceFit:         0.20,
	FactorTravelEfficiency: 0.35,
	FactorEarningsPerHour:  0.30,
	FactorRouteContinuity:  0.20,
	FactorWorkloadBalance:  0.15,
	FactorMargin:           0.25,
	FactorUtilization:      0.25,
	FactorCustomerLTV:      0.20,
	FactorNetworkEffect:    0.15,
	FactorCancellationRisk: 0.15,
}

// FactorParty owns each factor.
var FactorParty = map[string]model.Party{
	FactorTimeMatch:        model.PartyCustomer,
	FactorWaitTime:         model.PartyCustomer,
	FactorEngineerQuality:  model.PartyCustomer,
	FactorPriceFit:         model.PartyCustomer,
	FactorTravelEfficiency: model.PartyEngineer,
	FactorEarningsPerHour:  model.PartyEngineer,
	FactorRouteContinuity:  model.PartyEngineer,
	FactorWorkloadBalance:  model.PartyEngineer,
	FactorMargin:           model.PartyPlatform,
	FactorUtilization:      model.PartyPlatform,
	FactorCustomerLTV:      model.PartyPlatform,
	FactorNetworkEffect:    model.PartyPlatform,
	FactorCancellationRisk: model.PartyPlatform,
}

// Neutral scores substituted when a dependency cannot be resolved.
const (
	NeutralPriceFit = 80.0
	NeutralTravel   = 50.0
	NeutralRoute    = 50.0
	NeutralWorkload = 50.0
	NeutralNetwork  = 50.0
	NeutralRisk     = 50.0
	NeutralLTV      = 50.0
	NeutralRating   = 3.5

	// assumedTravelMinutes is used for earnings when travel is unknown.
	assumedTravelMinutes = 30

	overheadRate = 0.10
)

func newFactor(id string, raw float64, unit string, score float64, explanation string) model.ScoreFactor {
	return model.NewFactor(id, FactorParty[id], FactorWeights[id], raw, unit, score, explanation)
}

// TimeMatch scores the slot half-day against the customer's preference.
func TimeMatch(req model.JobRequest, h model.HalfDay) (float64, string) {
	switch {
	case len(req.PreferredSlots) == 0:
		return 100, "no time preference"
	case req.Prefers(h):
		return 100, fmt.Sprintf("%s slot requested", h)
	case req.Flexibility == model.FlexFlexibleWeek:
		return 100, "customer is flexible within the week"
	case req.Flexibility == model.FlexFlexibleDay:
		return 70, fmt.Sprintf("%s slot not requested, customer flexible on the day", h)
	default:
		return 40, fmt.Sprintf("%s slot not requested", h)
	}
}

// WaitTime scores days until the visit. One to two days scores 100,
// same-day is capped at 85 and the score declines past a week.
func WaitTime(days int) float64 {
	d := float64(days)
	switch {
	case days < 0:
		return 0
	case days == 0:
		return 85
	case days <= 2:
		return 100
	case days <= 7:
		return 100 - (d-2)*3
	case days <= 14:
		return 85 - (d-7)*3
	default:
		return math.Max(10, 64-(d-14)*2)
	}
}

// EngineerQuality blends rating, experience and service history. A missing
// rating uses the neutral rating and says so.
func EngineerQuality(rating *float64, comp model.Competency, neutral float64) (float64, float64, string) {
	r, note := neutral, "no ratings yet"
	if rating != nil {
		r, note = *rating, fmt.Sprintf("rated %.1f", *rating)
	}
	score := 0.5*(r/5*100) +
		0.3*math.Min(100, float64(comp.ExperienceYears)*15) +
		0.2*math.Min(100, float64(comp.CompletedJobs)*0.5)
	return score, r, fmt.Sprintf("%s, %d years, %d jobs for this service", note, comp.ExperienceYears, comp.CompletedJobs)
}

// PriceFit buckets the ratio of quoted to expected price.
func PriceFit(price float64, expected *float64) (float64, float64) {
	if expected == nil || *expected <= 0 {
		return NeutralPriceFit, 0
	}
	ratio := price / *expected
	switch {
	case ratio <= 0.9:
		return 100, ratio
	case ratio <= 1.0:
		return 95, ratio
	case ratio <= 1.1:
		return 80, ratio
	case ratio <= 1.25:
		return 60, ratio
	default:
		return 40, ratio
	}
}

// EngineerPay returns what the engineer earns for a half-day job.
func EngineerPay(pay model.PayModel, price float64, qty int) float64 {
	if qty <= 0 {
		qty = 1
	}
	switch pay.Type {
	case model.PayPerUnit:
		return pay.Rate * float64(qty)
	case model.PayPercentage:
		return pay.Rate * price / 100
	case model.PayDayRate:
		return pay.Rate / 2
	default:
		return 0
	}
}

// EarningsScore maps hourly earnings onto 0-100.
func EarningsScore(hourly float64) float64 {
	switch {
	case hourly >= 50:
		return 100
	case hourly >= 35:
		return 70 + (hourly-35)*2
	case hourly >= 20:
		return 30 + (hourly-20)*(40.0/15)
	default:
		return math.Max(0, hourly*1.5)
	}
}

// Margin returns the platform margin percent after engineer pay and
// overhead.
func Margin(price, pay float64) float64 {
	if price <= 0 {
		return -100
	}
	return (price - pay - price*overheadRate) / price * 100
}

// MarginScore buckets margin percent.
func MarginScore(pct float64) float64 {
	switch {
	case pct >= 40:
		return 100
	case pct >= 30:
		return 85
	case pct >= 20:
		return 70
	case pct >= 10:
		return 50
	case pct >= 0:
		return 30
	default:
		return 0
	}
}

// UtilizationScore favours filling empty or light days.
func UtilizationScore(dayJobs int, cluster bool) float64 {
	var s float64
	switch {
	case dayJobs == 0:
		s = 90
	case dayJobs <= 2:
		s = 75
	case dayJobs <= 4:
		s = 55
	default:
		s = 35
	}
	if cluster {
		s += 10
	}
	return math.Min(100, s)
}
