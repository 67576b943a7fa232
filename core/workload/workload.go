// Package workload compares an engineer's load with the rest of the network.
package workload

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/store"
)

// Config caps the number of jobs per engineer.
type Config struct {
	DailyCap  int `json:"daily_cap"`
	WeeklyCap int `json:"weekly_cap"`
}

func (c *Config) SetDefaults() {
	if c.DailyCap <= 0 {
		c.DailyCap = 7
	}
	if c.WeeklyCap <= 0 {
		c.WeeklyCap = 30
	}
}

const (
	overloadRatio   = 0.85
	underloadRatio  = 0.5
	underloadBonus  = 10.0
	overloadCeiling = 20.0
	excessPenalty   = 15.0
)

// Status flags the load of an engineer relative to caps and the network.
type Status string

const (
	Balanced    Status = "balanced"
	Overloaded  Status = "overloaded"
	Underloaded Status = "underloaded"
)

// Stats is one engineer's load.
type Stats struct {
	DayJobs     int     `json:"day_jobs"`
	WeekJobs    int     `json:"week_jobs"`
	DayRevenue  float64 `json:"day_revenue"`
	WeekRevenue float64 `json:"week_revenue"`
	DayTravelKm float64 `json:"day_travel_km"`
}

// Averages are means over all approved engineers.
type Averages struct {
	DayJobs     float64 `json:"day_jobs"`
	WeekJobs    float64 `json:"week_jobs"`
	DayRevenue  float64 `json:"day_revenue"`
	DayTravelKm float64 `json:"day_travel_km"`
}

// Balance is the workload assessment of one engineer-day.
type Balance struct {
	Stats       Stats    `json:"stats"`
	Network     Averages `json:"network"`
	Status      Status   `json:"status"`
	Score       float64  `json:"score"`
	Explanation string   `json:"explanation"`
}

// Snapshot holds the loads of every engineer for one date.
type Snapshot struct {
	Date     time.Time
	PerEng   map[string]Stats
	Averages Averages
	cfg      Config
}

// Calculator builds workload snapshots from stored bookings.
type Calculator struct {
	bookings  store.BookingStore
	engineers store.EngineerStore
	geocoder  geo.Geocoder
	log       logger.Logger
	cfg       Config
}

// NewCalculator creates a calculator. g may be nil, in which case travel
// distances are not computed.
func NewCalculator(bookings store.BookingStore, engineers store.EngineerStore, g geo.Geocoder, log logger.Logger, cfg Config) *Calculator {
	cfg.SetDefaults()
	return &Calculator{bookings: bookings, engineers: engineers, geocoder: g, log: logger.OrNop(log), cfg: cfg}
}

// Config returns the effective caps.
func (c *Calculator) Config() Config { return c.cfg }

// WeekOf returns the Monday starting the ISO week containing t.
func WeekOf(t time.Time) time.Time {
	d := model.Day(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// Snapshot loads the network's loads for date.
func (c *Calculator) Snapshot(ctx context.Context, date time.Time) (Snapshot, error) {
	engs, err := c.engineers.ListEngineers(ctx, store.EngineerFilter{ApprovedOnly: true})
	if err != nil {
		return Snapshot{}, fmt.Errorf("workload: list engineers: %w", err)
	}
	monday := WeekOf(date)
	bookings, err := c.bookings.ListBookings(ctx, store.BookingFilter{
		From:     monday,
		To:       monday.AddDate(0, 0, 6),
		Statuses: store.ScheduledStatuses,
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("workload: list bookings: %w", err)
	}

	day := model.Day(date)
	per := make(map[string]Stats, len(engs))
	for _, e := range engs {
		per[e.ID] = Stats{}
	}
	dayStops := map[string][]model.Booking{}
	for _, b := range bookings {
		if b.EngineerID == "" {
			continue
		}
		st := per[b.EngineerID]
		st.WeekJobs++
		st.WeekRevenue += b.Price
		if model.Day(b.ScheduledDate).Equal(day) {
			st.DayJobs++
			st.DayRevenue += b.Price
			dayStops[b.EngineerID] = append(dayStops[b.EngineerID], b)
		}
		per[b.EngineerID] = st
	}
	if c.geocoder != nil {
		for id, bs := range dayStops {
			st := per[id]
			st.DayTravelKm = model.Round2(c.travelKm(ctx, bs))
			per[id] = st
		}
	}
	return Snapshot{Date: day, PerEng: per, Averages: averages(per), cfg: c.cfg}, nil
}

func (c *Calculator) travelKm(ctx context.Context, bs []model.Booking) float64 {
	sort.Slice(bs, func(i, j int) bool { return bs[i].StartTime.Before(bs[j].StartTime) })
	var total float64
	var prev *model.Coordinates
	for _, b := range bs {
		coord, err := c.geocoder.Lookup(ctx, b.Postcode)
		if err != nil {
			c.log.Debugf("workload: skip %s for travel: %v", b.ID, err)
			continue
		}
		if prev != nil {
			total += geo.HaversineKm(*prev, coord)
		}
		prev = &coord
	}
	return total
}

func averages(per map[string]Stats) Averages {
	if len(per) == 0 {
		return Averages{}
	}
	var day, week, rev, km []float64
	for _, s := range per {
		day = append(day, float64(s.DayJobs))
		week = append(week, float64(s.WeekJobs))
		rev = append(rev, s.DayRevenue)
		km = append(km, s.DayTravelKm)
	}
	return Averages{
		DayJobs:     model.Round2(stat.Mean(day, nil)),
		WeekJobs:    model.Round2(stat.Mean(week, nil)),
		DayRevenue:  model.Round2(stat.Mean(rev, nil)),
		DayTravelKm: model.Round2(stat.Mean(km, nil)),
	}
}

// Stats returns the load of one engineer; unknown engineers have none.
func (s Snapshot) Stats(engineerID string) Stats { return s.PerEng[engineerID] }

// Balance scores one engineer within the snapshot.
func (s Snapshot) Balance(engineerID string) Balance {
	return Evaluate(s.PerEng[engineerID], s.Averages, s.cfg)
}

// WorkloadBalance loads a snapshot and scores one engineer.
func (c *Calculator) WorkloadBalance(ctx context.Context, engineerID string, date time.Time) (Balance, error) {
	snap, err := c.Snapshot(ctx, date)
	if err != nil {
		return Balance{}, err
	}
	return snap.Balance(engineerID), nil
}

// Evaluate scores a load against network averages. An empty day scores 100;
// the score tapers towards the daily cap, loses points for running above
// the network average and is capped when overloaded.
func Evaluate(st Stats, avg Averages, cfg Config) Balance {
	cfg.SetDefaults()
	b := Balance{Stats: st, Network: avg, Status: Balanced}

	score := 100 * (1 - float64(st.DayJobs)/float64(cfg.DailyCap))
	if excess := float64(st.DayJobs) - avg.DayJobs; excess > 0 {
		score -= excessPenalty * excess / math.Max(1, avg.DayJobs)
	}

	switch {
	case float64(st.DayJobs) >= float64(cfg.DailyCap)*overloadRatio ||
		float64(st.WeekJobs) >= float64(cfg.WeeklyCap)*overloadRatio:
		b.Status = Overloaded
		score = math.Min(score, overloadCeiling)
		b.Explanation = fmt.Sprintf("overloaded: %d jobs today (cap %d), %d this week (cap %d)", st.DayJobs, cfg.DailyCap, st.WeekJobs, cfg.WeeklyCap)
	case avg.DayJobs > 0 && float64(st.DayJobs) <= underloadRatio*avg.DayJobs:
		b.Status = Underloaded
		score += underloadBonus
		b.Explanation = fmt.Sprintf("underloaded: %d jobs today vs network average %.1f", st.DayJobs, avg.DayJobs)
	default:
		b.Explanation = fmt.Sprintf("%d jobs today vs network average %.1f", st.DayJobs, avg.DayJobs)
	}
	b.Score = model.Round2(model.Clamp(score, 0, 100))
	return b
}
