// Package scoring computes the 13-factor multi-party score of an
// (engineer, slot) candidate for a job request.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/ltv"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/network"
	"github.com/kilianp07/fieldalloc/core/prediction"
	"github.com/kilianp07/fieldalloc/core/route"
	"github.com/kilianp07/fieldalloc/core/store"
	"github.com/kilianp07/fieldalloc/core/travel"
	"github.com/kilianp07/fieldalloc/core/workload"
)

// Scorer scores candidates. It holds no request state; see Prepare.
type Scorer struct {
	repo      store.Repository
	geocoder  geo.Geocoder
	predictor prediction.CancellationPredictor
	workload  *workload.Calculator
	network   *network.Calculator
	ltv       *ltv.Calculator
	log       logger.Logger
	cfg       Config
	now       func() time.Time
}

// New creates a scorer. A nil predictor selects the heuristic predictor.
func New(repo store.Repository, g geo.Geocoder, pred prediction.CancellationPredictor, log logger.Logger, cfg Config) *Scorer {
	cfg.SetDefaults()
	log = logger.OrNop(log)
	if pred == nil {
		pred = prediction.HeuristicPredictor{}
	}
	return &Scorer{
		repo:      repo,
		geocoder:  g,
		predictor: pred,
		workload:  workload.NewCalculator(repo, repo, g, log, cfg.Workload),
		network:   network.NewCalculator(repo, log, cfg.areaMaxAge()),
		ltv:       ltv.NewCalculator(repo, log),
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock overrides the time source of the scorer and its calculators.
func (s *Scorer) SetClock(now func() time.Time) {
	s.now = now
	s.network.SetClock(now)
	s.ltv.SetClock(now)
}

// LTV exposes the customer metrics calculator.
func (s *Scorer) LTV() *ltv.Calculator { return s.ltv }

// Network exposes the area intelligence calculator.
func (s *Scorer) Network() *network.Calculator { return s.network }

// Workload exposes the workload calculator.
func (s *Scorer) Workload() *workload.Calculator { return s.workload }

// Job is the request-scoped context of one scoring run. It memoises
// geocoding and per-day lookups and is safe for concurrent use.
type Job struct {
	s        *Scorer
	Request  model.JobRequest
	Service  model.Service
	Site     model.Site
	Customer model.CustomerMetrics
	Network  *network.Effect
	now      time.Time

	siteCoord model.Coordinates
	siteErr   error
	travel    *travel.Calculator
	days      onceMap[string, dayRoute]
	snapshots onceMap[string, workload.Snapshot]
}

type dayRoute struct {
	base  model.Coordinates
	stops []travel.Stop
}

// Prepare loads everything a request needs. Missing service or site aborts
// with NotFound; customer and area lookups degrade to neutral values.
func (s *Scorer) Prepare(ctx context.Context, req model.JobRequest) (*Job, error) {
	svc, err := s.repo.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("scoring: service: %w", err)
	}
	site, err := s.repo.GetSite(ctx, req.SiteID)
	if err != nil {
		return nil, fmt.Errorf("scoring: site: %w", err)
	}
	memo := geo.NewMemo(s.geocoder)
	j := &Job{
		s:       s,
		Request: req,
		Service: svc,
		Site:    site,
		now:     s.now(),
		travel:  travel.NewCalculator(s.repo, memo, s.log, s.cfg.DefaultRadiusKm),
	}
	j.siteCoord, j.siteErr = geo.Locate(ctx, memo, site.Coordinates, site.Postcode)
	if j.siteErr != nil {
		s.log.Warnf("scoring: geocode site %s (%s): %v", site.ID, site.Postcode, j.siteErr)
	}

	if m, err := s.ltv.Metrics(ctx, req.CustomerID); err != nil {
		s.log.Warnf("scoring: customer metrics %s: %v", req.CustomerID, err)
		j.Customer = ltv.Compute(req.CustomerID, nil, j.now)
	} else {
		j.Customer = m
	}

	if eff, err := s.network.NetworkEffect(ctx, site.Postcode); err != nil {
		s.log.Warnf("scoring: network effect %s: %v", site.Postcode, err)
	} else {
		j.Network = &eff
	}
	return j, nil
}

// Score computes the candidate score of one slot for the job.
func (s *Scorer) Score(ctx context.Context, slot model.Slot, req model.JobRequest, eng model.Engineer, w model.Weights) (model.SlotScore, error) {
	job, err := s.Prepare(ctx, req)
	if err != nil {
		return model.SlotScore{}, err
	}
	return job.Score(ctx, slot, eng, w)
}

// Price returns the slot price, falling back to the service list price.
func (j *Job) Price(slot model.Slot) float64 {
	if slot.Price > 0 {
		return slot.Price
	}
	return j.Service.PriceFor(j.Request.Units())
}

// Duration returns the slot duration, falling back to the service estimate.
func (j *Job) Duration(slot model.Slot) int {
	if slot.DurationMinutes > 0 {
		return slot.DurationMinutes
	}
	return j.Service.DurationMinutes(j.Request.Units())
}

// Score computes the 13 factors and aggregates them with w. Dependency
// failures degrade individual factors to their neutral values.
func (j *Job) Score(ctx context.Context, slot model.Slot, eng model.Engineer, w model.Weights) (model.SlotScore, error) {
	if err := w.Validate(); err != nil {
		return model.SlotScore{}, apperr.Wrap(apperr.ValidationFailure, "scoring.Score", err)
	}
	price := j.Price(slot)
	duration := j.Duration(slot)
	comp, _ := eng.Competency(j.Request.ServiceID)

	factors := make([]model.ScoreFactor, 0, 13)

	// customer
	tm, tmWhy := TimeMatch(j.Request, slot.HalfDay)
	factors = append(factors, newFactor(FactorTimeMatch, tm, "points", tm, tmWhy))

	days := model.DaysBetween(j.now, slot.Date)
	factors = append(factors, newFactor(FactorWaitTime, float64(days), "days", WaitTime(days),
		fmt.Sprintf("visit in %d days", days)))

	q, rating, qWhy := EngineerQuality(eng.Rating, comp, j.s.cfg.NeutralRating)
	factors = append(factors, newFactor(FactorEngineerQuality, rating, "rating", q, qWhy))

	pf, ratio := PriceFit(price, j.Request.ExpectedPrice)
	pfWhy := "no expected price given"
	if ratio > 0 {
		pfWhy = fmt.Sprintf("quote is %.0f%% of expected price", ratio*100)
	}
	factors = append(factors, newFactor(FactorPriceFit, ratio, "ratio", pf, pfWhy))

	// engineer
	day, dayErr := j.day(ctx, eng, slot.Date)
	radius := j.travel.PreferredRadius(eng, j.Site.Postcode)
	travelMinutes := assumedTravelMinutes
	if err := firstErr(j.siteErr, dayErr); err != nil {
		j.s.log.Warnf("scoring: travel for %s on %s: %v", eng.ID, slot.Date.Format(time.DateOnly), err)
		factors = append(factors,
			newFactor(FactorTravelEfficiency, 0, "km", NeutralTravel, "travel unavailable, neutral score"),
		)
	} else {
		eff := travel.Evaluate(day.base, travel.Coordinates(day.stops), j.siteCoord, radius)
		travelMinutes = eff.TravelMinutes
		factors = append(factors, newFactor(FactorTravelEfficiency, eff.DistanceKm, "km", eff.Score,
			fmt.Sprintf("%s, %.1f km", eff.RouteContext, eff.DistanceKm)))
	}

	pay := EngineerPay(eng.Pay, price, j.Request.Units())
	hourly := pay / (float64(duration+travelMinutes) / 60)
	factors = append(factors, newFactor(FactorEarningsPerHour, hourly, "gbp_per_hour", EarningsScore(hourly),
		fmt.Sprintf("£%.2f for %d min on site and %d min travel", pay, duration, travelMinutes)))

	if err := firstErr(j.siteErr, dayErr); err != nil {
		factors = append(factors, newFactor(FactorRouteContinuity, 0, "points", NeutralRoute, "route unavailable, neutral score"))
	} else {
		c := route.Analyze(day.base, day.stops, j.siteCoord, radius, slot.Date,
			&route.Proposed{Start: slot.Start(), DurationMinutes: duration})
		factors = append(factors, newFactor(FactorRouteContinuity, c.InsertionCostKm, "km", c.Score,
			fmt.Sprintf("alignment %.2f, gap use %.2f", c.DirectionAlignment, c.GapUtilization)))
	}

	snap, snapErr := j.snapshot(ctx, slot.Date)
	if snapErr != nil {
		j.s.log.Warnf("scoring: workload snapshot %s: %v", slot.Date.Format(time.DateOnly), snapErr)
		factors = append(factors, newFactor(FactorWorkloadBalance, 0, "jobs", NeutralWorkload, "workload unavailable, neutral score"))
	} else {
		b := snap.Balance(eng.ID)
		factors = append(factors, newFactor(FactorWorkloadBalance, float64(b.Stats.DayJobs), "jobs", b.Score, b.Explanation))
	}

	// platform
	m := Margin(price, pay)
	factors = append(factors, newFactor(FactorMargin, m, "percent", MarginScore(m),
		fmt.Sprintf("%.1f%% margin after pay and overhead", m)))

	dayJobs := -1
	switch {
	case snapErr == nil:
		dayJobs = snap.Stats(eng.ID).DayJobs
	case dayErr == nil:
		dayJobs = len(day.stops)
	}
	if dayJobs < 0 {
		factors = append(factors, newFactor(FactorUtilization, 0, "jobs", NeutralWorkload, "day load unavailable, neutral score"))
	} else {
		why := fmt.Sprintf("%d jobs already booked", dayJobs)
		if slot.ClusterOpportunity {
			why += ", cluster opportunity"
		}
		factors = append(factors, newFactor(FactorUtilization, float64(dayJobs), "jobs", UtilizationScore(dayJobs, slot.ClusterOpportunity), why))
	}

	ltvWhy := fmt.Sprintf("%d bookings, reliability %.0f", j.Customer.TotalBookings, j.Customer.ReliabilityScore)
	if j.Customer.TotalBookings == 0 {
		ltvWhy = "new customer, neutral value"
	}
	factors = append(factors, newFactor(FactorCustomerLTV, j.Customer.LTVScore, "points", j.Customer.LTVScore, ltvWhy))

	if j.Network == nil {
		factors = append(factors, newFactor(FactorNetworkEffect, 0, "points", NeutralNetwork, "area intelligence unavailable, neutral score"))
	} else {
		factors = append(factors, newFactor(FactorNetworkEffect, j.Network.Intelligence.PenetrationRate, "penetration", j.Network.Score, j.Network.Explanation))
	}

	var customer *model.CustomerMetrics
	if j.Customer.TotalBookings > 0 {
		c := j.Customer
		customer = &c
	}
	risk, err := j.s.predictor.Predict(ctx, prediction.Input{
		RequestedAt: j.now,
		SlotDate:    slot.Date,
		Flexibility: j.Request.Flexibility,
		Customer:    customer,
	})
	if err != nil {
		j.s.log.Warnf("scoring: cancellation risk: %v", err)
		factors = append(factors, newFactor(FactorCancellationRisk, 0, "probability", NeutralRisk, "risk unavailable, neutral score"))
	} else {
		factors = append(factors, newFactor(FactorCancellationRisk, risk.Probability, "probability", risk.Score(),
			fmt.Sprintf("%s risk, %.0f%% chance of cancellation", risk.Tier, risk.Probability*100)))
	}

	return model.Aggregate(factors, w, j.now), nil
}

// NearbyJobs counts the engineer's stops on date within radiusKm of the site.
func (j *Job) NearbyJobs(ctx context.Context, eng model.Engineer, date time.Time, radiusKm float64) (int, error) {
	if j.siteErr != nil {
		return 0, j.siteErr
	}
	day, err := j.day(ctx, eng, date)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, st := range day.stops {
		if geo.HaversineKm(st.Coordinates, j.siteCoord) <= radiusKm {
			n++
		}
	}
	return n, nil
}

func (j *Job) day(ctx context.Context, eng model.Engineer, date time.Time) (dayRoute, error) {
	key := eng.ID + "|" + date.Format(time.DateOnly)
	return j.days.get(key, func() (dayRoute, error) {
		base, err := j.travel.Base(ctx, eng)
		if err != nil {
			return dayRoute{}, err
		}
		stops, err := j.travel.DayStops(ctx, eng.ID, date)
		if err != nil {
			return dayRoute{}, err
		}
		return dayRoute{base: base, stops: stops}, nil
	})
}

func (j *Job) snapshot(ctx context.Context, date time.Time) (workload.Snapshot, error) {
	return j.snapshots.get(date.Format(time.DateOnly), func() (workload.Snapshot, error) {
		return j.s.workload.Snapshot(ctx, date)
	})
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
