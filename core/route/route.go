// Package route analyses how a new job continues an engineer's existing
// route: insertion cost, direction alignment and use of idle time.
package route

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/travel"
)

const (
	DayStartHour = 9
	DayEndHour   = 17

	// GapThreshold is the minimum idle time between jobs counted as a gap.
	GapThreshold = 45 * time.Minute

	corridorFullKm = 2.0
	corridorZeroKm = 10.0

	// fullGapMinutes of idle time scores a gap utilisation of 1 when no
	// slot is proposed.
	fullGapMinutes = 180.0
)

// GapPosition says where in the day a gap sits.
type GapPosition string

const (
	BeforeFirst GapPosition = "before_first"
	Between     GapPosition = "between"
	AfterLast   GapPosition = "after_last"
	WholeDay    GapPosition = "whole_day"
)

// Gap is idle time in the working day.
type Gap struct {
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
	Minutes  int         `json:"minutes"`
	Position GapPosition `json:"position"`
}

// Proposed is the time window a candidate slot would occupy.
type Proposed struct {
	Start           time.Time
	DurationMinutes int
}

func (p Proposed) end() time.Time {
	return p.Start.Add(time.Duration(p.DurationMinutes) * time.Minute)
}

// Continuity is the route continuity assessment of one job.
type Continuity struct {
	InsertionCostKm    float64             `json:"insertion_cost_km"`
	InsertionScore     float64             `json:"insertion_score"`
	RouteContext       travel.RouteContext `json:"route_context"`
	OptimalPosition    int                 `json:"optimal_position"`
	GapUtilization     float64             `json:"gap_utilization"`
	DirectionAlignment float64             `json:"direction_alignment"`
	Gaps               []Gap               `json:"gaps"`
	Score              float64             `json:"score"`
}

// Analyzer evaluates route continuity against stored bookings.
type Analyzer struct {
	travel   *travel.Calculator
	geocoder geo.Geocoder
}

func NewAnalyzer(calc *travel.Calculator, g geo.Geocoder) *Analyzer {
	return &Analyzer{travel: calc, geocoder: g}
}

// RouteContinuity evaluates inserting the job at jobPostcode into the
// engineer's day. proposed may be nil.
func (a *Analyzer) RouteContinuity(ctx context.Context, eng model.Engineer, date time.Time, jobPostcode string, proposed *Proposed) (Continuity, error) {
	job, err := a.geocoder.Lookup(ctx, jobPostcode)
	if err != nil {
		return Continuity{}, apperr.Wrap(apperr.ExternalLookupFailure, "route.RouteContinuity", err)
	}
	base, err := a.travel.Base(ctx, eng)
	if err != nil {
		return Continuity{}, err
	}
	stops, err := a.travel.DayStops(ctx, eng.ID, date)
	if err != nil {
		return Continuity{}, err
	}
	return Analyze(base, stops, job, a.travel.PreferredRadius(eng, jobPostcode), date, proposed), nil
}

// Analyze is the pure form of RouteContinuity over resolved inputs.
func Analyze(base model.Coordinates, stops []travel.Stop, job model.Coordinates, radiusKm float64, date time.Time, proposed *Proposed) Continuity {
	sorted := append([]travel.Stop(nil), stops...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	eff := travel.Evaluate(base, travel.Coordinates(sorted), job, radiusKm)
	gaps := Gaps(sorted, date)
	c := Continuity{
		InsertionCostKm:    eff.DistanceKm,
		InsertionScore:     eff.Score,
		RouteContext:       eff.RouteContext,
		OptimalPosition:    eff.OptimalPosition,
		Gaps:               gaps,
		GapUtilization:     model.Round2(GapUtilization(gaps, proposed)),
		DirectionAlignment: model.Round2(Alignment(base, travel.Coordinates(sorted), job)),
	}
	if eff.RouteContext == travel.FirstJob {
		c.InsertionCostKm = 0
	}
	c.Score = model.Round2(model.Clamp(
		c.InsertionScore*0.5+c.GapUtilization*100*0.3+c.DirectionAlignment*100*0.2, 0, 100))
	return c
}

// Alignment measures how well the job follows the route's direction, in
// [0,1]. An empty day is fully aligned. With one stop the bearings from base
// to the stop and to the job are compared. With more stops, the bearing
// alignment towards the last stop is averaged with a corridor measure of the
// nearest existing stop.
func Alignment(base model.Coordinates, stops []model.Coordinates, job model.Coordinates) float64 {
	switch len(stops) {
	case 0:
		return 1
	case 1:
		return geo.Alignment(geo.Bearing(base, stops[0]), geo.Bearing(base, job))
	}
	bearing := geo.Alignment(geo.Bearing(base, stops[len(stops)-1]), geo.Bearing(base, job))
	nearest := math.Inf(1)
	for _, s := range stops {
		nearest = math.Min(nearest, geo.HaversineKm(s, job))
	}
	return (bearing + Corridor(nearest)) / 2
}

// Corridor scores the distance from the job to the nearest stop: 1 within
// 2 km, 0 beyond 10 km, linear between.
func Corridor(nearestKm float64) float64 {
	switch {
	case nearestKm <= corridorFullKm:
		return 1
	case nearestKm >= corridorZeroKm:
		return 0
	default:
		return 1 - (nearestKm-corridorFullKm)/(corridorZeroKm-corridorFullKm)
	}
}

// DayWindow returns the working day bounds for date.
func DayWindow(date time.Time) (time.Time, time.Time) {
	d := model.Day(date)
	return d.Add(DayStartHour * time.Hour), d.Add(DayEndHour * time.Hour)
}

// Gaps finds idle time in a day of start-ordered stops.
func Gaps(stops []travel.Stop, date time.Time) []Gap {
	start, end := DayWindow(date)
	if len(stops) == 0 {
		return []Gap{newGap(start, end, WholeDay)}
	}
	var gaps []Gap
	if first := stops[0].Start; first.After(start) {
		gaps = append(gaps, newGap(start, first, BeforeFirst))
	}
	for i := 1; i < len(stops); i++ {
		prevEnd := stopEnd(stops[i-1])
		if stops[i].Start.Sub(prevEnd) >= GapThreshold {
			gaps = append(gaps, newGap(prevEnd, stops[i].Start, Between))
		}
	}
	if last := stopEnd(stops[len(stops)-1]); last.Before(end) {
		gaps = append(gaps, newGap(last, end, AfterLast))
	}
	return gaps
}

func stopEnd(s travel.Stop) time.Time {
	if !s.End.IsZero() {
		return s.End
	}
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

func newGap(start, end time.Time, pos GapPosition) Gap {
	return Gap{Start: start, End: end, Minutes: int(end.Sub(start).Minutes()), Position: pos}
}

// GapUtilization scores how well a proposed window fills a gap, as the ratio
// of its duration to the containing gap. A window that fits no gap scores 0.
// Without a proposal the total idle time is scored, saturating at three
// hours.
func GapUtilization(gaps []Gap, proposed *Proposed) float64 {
	if proposed == nil {
		total := 0
		for _, g := range gaps {
			total += g.Minutes
		}
		return math.Min(1, float64(total)/fullGapMinutes)
	}
	for _, g := range gaps {
		if proposed.Start.Before(g.Start) || proposed.end().After(g.End) || g.Minutes <= 0 {
			continue
		}
		return math.Min(1, float64(proposed.DurationMinutes)/float64(g.Minutes))
	}
	return 0
}
