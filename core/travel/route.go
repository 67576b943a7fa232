package travel

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/model"
)

// Rating summarises a day route by average km per transition.
type Rating string

const (
	Excellent Rating = "excellent"
	Good      Rating = "good"
	Fair      Rating = "fair"
	Poor      Rating = "poor"
)

// RouteStop is one leg of an ordered day route.
type RouteStop struct {
	Stop
	LegKm      float64 `json:"leg_km"`
	LegMinutes int     `json:"leg_minutes"`
}

// Route is a greedy nearest-neighbour ordering of an engineer's day.
type Route struct {
	EngineerID      string      `json:"engineer_id"`
	Date            time.Time   `json:"date"`
	Stops           []RouteStop `json:"stops"`
	TotalKm         float64     `json:"total_km"`
	TotalMinutes    int         `json:"total_minutes"`
	AvgKmTransition float64     `json:"avg_km_per_transition"`
	Rating          Rating      `json:"rating"`
}

// BuildOptimizedRoute orders the engineer's jobs for date by repeatedly
// visiting the nearest unvisited stop, starting at base. It is a heuristic;
// the result is not guaranteed to be the shortest tour.
func (c *Calculator) BuildOptimizedRoute(ctx context.Context, eng model.Engineer, date time.Time) (Route, error) {
	base, err := c.Base(ctx, eng)
	if err != nil {
		return Route{}, err
	}
	stops, err := c.DayStops(ctx, eng.ID, date)
	if err != nil {
		return Route{}, fmt.Errorf("travel: build route: %w", err)
	}
	r := NearestNeighbour(base, stops)
	r.EngineerID = eng.ID
	r.Date = model.Day(date)
	return r, nil
}

// NearestNeighbour builds a route from base over stops.
func NearestNeighbour(base model.Coordinates, stops []Stop) Route {
	remaining := append([]Stop(nil), stops...)
	route := Route{Stops: make([]RouteStop, 0, len(stops))}
	cur := base
	for len(remaining) > 0 {
		best, bestKm := 0, geo.HaversineKm(cur, remaining[0].Coordinates)
		for i := 1; i < len(remaining); i++ {
			if d := geo.HaversineKm(cur, remaining[i].Coordinates); d < bestKm {
				best, bestKm = i, d
			}
		}
		next := remaining[best]
		remaining = append(remaining[:best], remaining[best+1:]...)
		mins := geo.DrivingMinutes(bestKm)
		route.Stops = append(route.Stops, RouteStop{Stop: next, LegKm: model.Round2(bestKm), LegMinutes: mins})
		route.TotalKm += bestKm
		route.TotalMinutes += mins
		cur = next.Coordinates
	}
	if n := len(route.Stops); n > 0 {
		route.AvgKmTransition = model.Round2(route.TotalKm / float64(n))
	}
	route.TotalKm = model.Round2(route.TotalKm)
	route.Rating = RateAverage(route.AvgKmTransition)
	return route
}

// RateAverage maps average km per transition to a rating.
func RateAverage(avgKm float64) Rating {
	switch {
	case avgKm < 5:
		return Excellent
	case avgKm < 10:
		return Good
	case avgKm < 20:
		return Fair
	default:
		return Poor
	}
}
