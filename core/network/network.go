// Package network estimates the strategic value of serving a postcode
// district.
package network

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/store"
)

const (
	// NewAreaThreshold is the booking count under which a district is new.
	NewAreaThreshold = 10
	// DefaultMaxAge is how long area intelligence is reused.
	DefaultMaxAge = 7 * 24 * time.Hour

	newAreaBonus      = 20.0
	penetrationPoints = 30.0
	// penetration at or above this share of businesses earns no points.
	saturatedPenetration = 0.05
	repeatPoints         = 10.0
	cancelPenalty        = 20.0
)

// Effect is the network value of one job location.
type Effect struct {
	District     string                 `json:"district"`
	IsNewArea    bool                   `json:"is_new_area"`
	Score        float64                `json:"score"`
	Intelligence model.AreaIntelligence `json:"intelligence"`
	Explanation  string                 `json:"explanation"`
}

type repository interface {
	store.BookingStore
	store.IntelligenceStore
}

// Calculator derives and caches area intelligence.
type Calculator struct {
	repo   repository
	log    logger.Logger
	maxAge time.Duration
	now    func() time.Time
}

// NewCalculator creates a calculator. maxAge <= 0 selects DefaultMaxAge.
func NewCalculator(repo repository, log logger.Logger, maxAge time.Duration) *Calculator {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Calculator{repo: repo, log: logger.OrNop(log), maxAge: maxAge, now: time.Now}
}

// SetClock overrides the time source.
func (c *Calculator) SetClock(now func() time.Time) { c.now = now }

// NetworkEffect scores serving postcode. Cached intelligence is reused
// until it is older than the max age.
func (c *Calculator) NetworkEffect(ctx context.Context, postcode string) (Effect, error) {
	district := geo.District(postcode)
	if district == "" {
		return Effect{}, apperr.Invalidf("network.NetworkEffect", "empty postcode")
	}
	ai, err := c.repo.GetAreaIntelligence(ctx, district)
	switch {
	case err == nil && !ai.Stale(c.now(), c.maxAge):
	case err == nil || errors.Is(err, apperr.ErrNotFound):
		if ai, err = c.derive(ctx, district); err != nil {
			return Effect{}, err
		}
		if err := c.save(ctx, ai); err != nil {
			c.log.Warnf("%v; scoring unsaved intelligence", err)
		}
	default:
		return Effect{}, fmt.Errorf("network: load %s: %w", district, err)
	}
	return Score(ai), nil
}

// Recalculate derives the intelligence of a district from its bookings and
// upserts it.
func (c *Calculator) Recalculate(ctx context.Context, district string) (model.AreaIntelligence, error) {
	ai, err := c.derive(ctx, district)
	if err != nil {
		return ai, err
	}
	return ai, c.save(ctx, ai)
}

func (c *Calculator) derive(ctx context.Context, district string) (model.AreaIntelligence, error) {
	bookings, err := c.repo.ListBookings(ctx, store.BookingFilter{District: district})
	if err != nil {
		return model.AreaIntelligence{}, fmt.Errorf("network: list bookings for %s: %w", district, err)
	}
	return Derive(district, bookings, c.now()), nil
}

func (c *Calculator) save(ctx context.Context, ai model.AreaIntelligence) error {
	if err := c.repo.UpsertAreaIntelligence(ctx, ai); err != nil {
		return fmt.Errorf("network: upsert %s: %w", ai.District, err)
	}
	c.log.Debugw("area intelligence recalculated", map[string]any{
		"district": ai.District, "bookings": ai.BookingCount, "penetration": ai.PenetrationRate,
	})
	return nil
}

// Derive computes the intelligence of a district from its bookings.
func Derive(district string, bookings []model.Booking, now time.Time) model.AreaIntelligence {
	prof := profileFor(geo.Area(district))
	ai := model.AreaIntelligence{
		District:            district,
		DensityTier:         prof.tier,
		PrimaryIndustry:     prof.industry,
		EstimatedBusinesses: businessesPerDistrict[prof.tier],
		BookingCount:        len(bookings),
		CalculatedAt:        now,
	}
	perCustomer := map[string]int{}
	var cancelled, completed int
	var revenue float64
	for _, b := range bookings {
		perCustomer[b.Request.CustomerID]++
		switch b.Status {
		case model.StatusCancelled:
			cancelled++
		case model.StatusCompleted:
			completed++
			revenue += b.Price
		}
	}
	ai.CustomerCount = len(perCustomer)
	repeat := 0
	for _, n := range perCustomer {
		if n > 1 {
			repeat++
		}
	}
	if ai.EstimatedBusinesses > 0 {
		ai.PenetrationRate = math.Round(float64(ai.CustomerCount)/float64(ai.EstimatedBusinesses)*10000) / 10000
	}
	if completed > 0 {
		ai.AverageJobValue = model.Round2(revenue / float64(completed))
	}
	if ai.BookingCount > 0 {
		ai.CancellationRate = model.Round2(float64(cancelled) / float64(ai.BookingCount))
	}
	if ai.CustomerCount > 0 {
		ai.RepeatCustomerFactor = model.Round2(float64(repeat) / float64(ai.CustomerCount))
	}
	return ai
}

// Score rates the strategic value of an area: dense, barely penetrated new
// areas score highest.
func Score(ai model.AreaIntelligence) Effect {
	isNew := ai.BookingCount < NewAreaThreshold
	score := densityPoints[ai.DensityTier]
	score += penetrationPoints * (1 - math.Min(1, ai.PenetrationRate/saturatedPenetration))
	if isNew {
		score += newAreaBonus
	}
	score += repeatPoints * ai.RepeatCustomerFactor
	score -= cancelPenalty * ai.CancellationRate

	expl := fmt.Sprintf("%s density, %.2f%% penetration", ai.DensityTier, ai.PenetrationRate*100)
	if isNew {
		expl = "new area: " + expl
	}
	return Effect{
		District:     ai.District,
		IsNewArea:    isNew,
		Score:        model.Round2(model.Clamp(score, 0, 100)),
		Intelligence: ai,
		Explanation:  expl,
	}
}
