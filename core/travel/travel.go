// Package travel scores how well a job fits into an engineer's day.
package travel

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/store"
)

// DefaultRadiusKm is used when no coverage area matches the job postcode.
const DefaultRadiusKm = 20.0

// RouteContext classifies where a job lands relative to the day's route.
type RouteContext string

const (
	FirstJob  RouteContext = "first_job"
	Clustered RouteContext = "clustered"
	Nearby    RouteContext = "nearby"
	Detour    RouteContext = "detour"
	Distant   RouteContext = "distant"
)

// Efficiency is the travel assessment of one job for one engineer-day.
type Efficiency struct {
	DistanceKm       float64      `json:"distance_km"`
	TravelMinutes    int          `json:"travel_minutes"`
	Score            float64      `json:"score"`
	RouteContext     RouteContext `json:"route_context"`
	SavingsVsNaiveKm float64      `json:"savings_vs_naive_km"`
	OptimalPosition  int          `json:"optimal_position"`
}

// Stop is a scheduled job on an engineer's day.
type Stop struct {
	BookingID       string            `json:"booking_id"`
	Postcode        string            `json:"postcode"`
	Coordinates     model.Coordinates `json:"coordinates"`
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	DurationMinutes int               `json:"duration_minutes"`
}

// Calculator resolves an engineer's day and evaluates insertions into it.
type Calculator struct {
	bookings store.BookingStore
	geocoder geo.Geocoder
	log      logger.Logger
	radius   float64
}

// NewCalculator creates a calculator. radiusKm <= 0 selects DefaultRadiusKm.
func NewCalculator(bookings store.BookingStore, g geo.Geocoder, log logger.Logger, radiusKm float64) *Calculator {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	return &Calculator{bookings: bookings, geocoder: g, log: logger.OrNop(log), radius: radiusKm}
}

// PreferredRadius returns the engineer's radius for postcode.
func (c *Calculator) PreferredRadius(eng model.Engineer, postcode string) float64 {
	if r, ok := eng.CoverageRadius(postcode); ok && r > 0 {
		return r
	}
	return c.radius
}

// Base resolves the engineer's base coordinates.
func (c *Calculator) Base(ctx context.Context, eng model.Engineer) (model.Coordinates, error) {
	coord, err := geo.Locate(ctx, c.geocoder, eng.Base, eng.BasePostcode)
	if err != nil {
		return coord, apperr.Wrap(apperr.ExternalLookupFailure, "travel.Base", fmt.Errorf("engineer %s base %q: %w", eng.ID, eng.BasePostcode, err))
	}
	return coord, nil
}

// DayStops returns the engineer's scheduled jobs for date in start order.
// Jobs whose postcode cannot be resolved are skipped.
func (c *Calculator) DayStops(ctx context.Context, engineerID string, date time.Time) ([]Stop, error) {
	bookings, err := c.bookings.ListBookings(ctx, store.BookingFilter{
		EngineerID: engineerID,
		From:       date,
		To:         date,
		Statuses:   store.ScheduledStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("travel: list bookings: %w", err)
	}
	stops := make([]Stop, 0, len(bookings))
	for _, b := range bookings {
		coord, err := c.geocoder.Lookup(ctx, b.Postcode)
		if err != nil {
			c.log.Warnf("travel: skip booking %s, geocode %q: %v", b.ID, b.Postcode, err)
			continue
		}
		stops = append(stops, Stop{
			BookingID:       b.ID,
			Postcode:        b.Postcode,
			Coordinates:     coord,
			Start:           b.StartTime,
			End:             b.End(),
			DurationMinutes: b.DurationMinutes,
		})
	}
	return stops, nil
}

// TravelEfficiency evaluates adding a job at jobPostcode to the engineer's
// day. Lookup failures are returned as ExternalLookupFailure.
func (c *Calculator) TravelEfficiency(ctx context.Context, eng model.Engineer, date time.Time, jobPostcode string) (Efficiency, error) {
	const op = "travel.TravelEfficiency"
	job, err := c.geocoder.Lookup(ctx, jobPostcode)
	if err != nil {
		return Efficiency{}, apperr.Wrap(apperr.ExternalLookupFailure, op, fmt.Errorf("job postcode %q: %w", jobPostcode, err))
	}
	base, err := c.Base(ctx, eng)
	if err != nil {
		return Efficiency{}, err
	}
	stops, err := c.DayStops(ctx, eng.ID, date)
	if err != nil {
		return Efficiency{}, err
	}
	return Evaluate(base, Coordinates(stops), job, c.PreferredRadius(eng, jobPostcode)), nil
}

// Coordinates extracts stop positions in order.
func Coordinates(stops []Stop) []model.Coordinates {
	out := make([]model.Coordinates, len(stops))
	for i, s := range stops {
		out[i] = s.Coordinates
	}
	return out
}

// Evaluate scores inserting job into the time-ordered stops of a day that
// starts at base.
func Evaluate(base model.Coordinates, stops []model.Coordinates, job model.Coordinates, radiusKm float64) Efficiency {
	direct := geo.HaversineKm(base, job)
	if len(stops) == 0 {
		return Efficiency{
			DistanceKm:    model.Round2(direct),
			TravelMinutes: geo.DrivingMinutes(direct),
			Score:         model.Round2(FirstJobScore(direct, radiusKm)),
			RouteContext:  FirstJob,
		}
	}

	var cost float64
	var pos int
	if len(stops) == 1 {
		cost, pos = singleInsertion(base, stops[0], job)
	} else {
		cost, pos = BestInsertion(stops, job)
	}
	ctxName, score := BandScore(cost)
	return Efficiency{
		DistanceKm:       model.Round2(cost),
		TravelMinutes:    geo.DrivingMinutes(cost),
		Score:            model.Round2(score),
		RouteContext:     ctxName,
		SavingsVsNaiveKm: model.Round2(math.Max(0, direct-cost)),
		OptimalPosition:  pos,
	}
}

// singleInsertion compares visiting the job on the way out from base with
// appending it after the existing job.
func singleInsertion(base, existing, job model.Coordinates) (float64, int) {
	before := geo.HaversineKm(base, job) + geo.HaversineKm(job, existing) - geo.HaversineKm(base, existing)
	after := geo.HaversineKm(existing, job)
	if before < after {
		return math.Max(0, before), 0
	}
	return after, 1
}

// BestInsertion tries every position in stops and returns the minimal
// additional distance and its index. Interior positions use the detour cost;
// the two ends use the one-sided distance.
func BestInsertion(stops []model.Coordinates, job model.Coordinates) (float64, int) {
	if len(stops) == 0 {
		return 0, 0
	}
	best := geo.HaversineKm(job, stops[0])
	pos := 0
	for i := 1; i < len(stops); i++ {
		prev, next := stops[i-1], stops[i]
		cost := geo.HaversineKm(prev, job) + geo.HaversineKm(job, next) - geo.HaversineKm(prev, next)
		if cost < best {
			best, pos = cost, i
		}
	}
	if end := geo.HaversineKm(stops[len(stops)-1], job); end < best {
		best, pos = end, len(stops)
	}
	return math.Max(0, best), pos
}

// FirstJobScore scores the base-to-job distance of an otherwise empty day:
// 100 at the base, 70 at the preferred radius, decaying to 0 at three radii.
func FirstJobScore(distanceKm, radiusKm float64) float64 {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	if distanceKm <= radiusKm {
		return 100 - (distanceKm/radiusKm)*30
	}
	return math.Max(0, 70*(1-(distanceKm-radiusKm)/(2*radiusKm)))
}

// BandScore classifies an insertion cost and scores it within its band.
func BandScore(costKm float64) (RouteContext, float64) {
	switch {
	case costKm < 2:
		return Clustered, 100 - costKm*2.5
	case costKm < 5:
		return Nearby, 95 - (costKm-2)*5
	case costKm < 15:
		return Detour, 80 - (costKm-5)*3
	default:
		return Distant, math.Max(0, 50-(costKm-15)*2)
	}
}
