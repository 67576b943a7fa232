// Package ltv derives a customer's lifetime value score from their booking
// history.
package ltv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/store"
)

const (
	RevenueCap   = 5000.0
	FrequencyCap = 12.0

	// NeutralLTV is reported for customers without history.
	NeutralLTV = 50.0

	recentWindow = 30 * 24 * time.Hour
	staleWindow  = 180 * 24 * time.Hour
	recentBoost  = 1.1
	staleDecay   = 0.8

	// minGapDays bounds the mean interval between bookings so a burst of
	// same-week bookings does not imply an absurd yearly rate.
	minGapDays  = 7.0
	daysPerYear = 365.0
)

// ReliabilityScore penalises cancellation rate in three bands.
func ReliabilityScore(cancelRate float64) float64 {
	switch {
	case cancelRate > 0.30:
		return 40
	case cancelRate > 0.15:
		return 70
	case cancelRate > 0.05:
		return 90
	default:
		return 100
	}
}

// Compute derives metrics from every booking of a customer. It is pure.
func Compute(customerID string, bookings []model.Booking, now time.Time) model.CustomerMetrics {
	m := model.CustomerMetrics{CustomerID: customerID, CalculatedAt: now}
	if len(bookings) == 0 {
		m.ReliabilityScore = 100
		m.LTVScore = NeutralLTV
		return m
	}

	times := make([]time.Time, 0, len(bookings))
	for _, b := range bookings {
		m.TotalBookings++
		switch b.Status {
		case model.StatusCompleted:
			m.CompletedBookings++
			m.TotalRevenue += b.Price
		case model.StatusCancelled:
			m.CancelledBookings++
		}
		times = append(times, bookedAt(b))
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	first, last := times[0], times[len(times)-1]
	m.FirstBookingAt, m.LastBookingAt = &first, &last

	m.TotalRevenue = model.Round2(m.TotalRevenue)
	if m.CompletedBookings > 0 {
		m.AverageRevenue = model.Round2(m.TotalRevenue / float64(m.CompletedBookings))
	}

	m.RevenueScore = model.Round2(math.Min(100, m.TotalRevenue/RevenueCap*100))
	m.FrequencyScore = model.Round2(math.Min(100, perYear(times)/FrequencyCap*100))
	m.ReliabilityScore = ReliabilityScore(m.CancellationRate())

	ltv := 0.4*m.RevenueScore + 0.3*m.FrequencyScore + 0.3*m.ReliabilityScore
	switch since := now.Sub(last); {
	case since <= recentWindow:
		ltv *= recentBoost
	case since > staleWindow:
		ltv *= staleDecay
	}
	m.LTVScore = model.Round2(model.Clamp(ltv, 0, 100))
	return m
}

func bookedAt(b model.Booking) time.Time {
	if !b.CreatedAt.IsZero() {
		return b.CreatedAt
	}
	return b.ScheduledDate
}

// perYear estimates bookings per year from the mean interval between
// consecutive bookings.
func perYear(sorted []time.Time) float64 {
	if len(sorted) < 2 {
		return float64(len(sorted))
	}
	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Sub(sorted[i-1]).Hours()/24)
	}
	mean := math.Max(minGapDays, stat.Mean(gaps, nil))
	return daysPerYear / mean
}

type repository interface {
	store.BookingStore
	store.IntelligenceStore
}

// Calculator caches customer metrics in the repository.
type Calculator struct {
	repo repository
	log  logger.Logger
	now  func() time.Time
}

func NewCalculator(repo repository, log logger.Logger) *Calculator {
	return &Calculator{repo: repo, log: logger.OrNop(log), now: time.Now}
}

// SetClock overrides the time source.
func (c *Calculator) SetClock(now func() time.Time) { c.now = now }

// Metrics returns cached metrics, recomputing them when missing or older
// than a day. An empty customer id yields neutral metrics.
func (c *Calculator) Metrics(ctx context.Context, customerID string) (model.CustomerMetrics, error) {
	if customerID == "" {
		return Compute("", nil, c.now()), nil
	}
	m, err := c.repo.GetCustomerMetrics(ctx, customerID)
	switch {
	case err == nil && !m.Stale(c.now()):
		return m, nil
	case err == nil || errors.Is(err, apperr.ErrNotFound):
		m, err := c.compute(ctx, customerID)
		if err != nil {
			return m, err
		}
		if err := c.save(ctx, m); err != nil {
			c.log.Warnf("%v; using unsaved metrics", err)
		}
		return m, nil
	default:
		return model.CustomerMetrics{}, fmt.Errorf("ltv: load %s: %w", customerID, err)
	}
}

// Recalculate recomputes and upserts a customer's metrics.
func (c *Calculator) Recalculate(ctx context.Context, customerID string) (model.CustomerMetrics, error) {
	m, err := c.compute(ctx, customerID)
	if err != nil {
		return m, err
	}
	return m, c.save(ctx, m)
}

func (c *Calculator) compute(ctx context.Context, customerID string) (model.CustomerMetrics, error) {
	bookings, err := c.repo.ListBookings(ctx, store.BookingFilter{CustomerID: customerID})
	if err != nil {
		return model.CustomerMetrics{}, fmt.Errorf("ltv: list bookings for %s: %w", customerID, err)
	}
	return Compute(customerID, bookings, c.now()), nil
}

func (c *Calculator) save(ctx context.Context, m model.CustomerMetrics) error {
	if err := c.repo.UpsertCustomerMetrics(ctx, m); err != nil {
		return fmt.Errorf("ltv: upsert %s: %w", m.CustomerID, err)
	}
	c.log.Debugw("customer metrics recalculated", map[string]any{
		"customer": m.CustomerID, "bookings": m.TotalBookings, "ltv": m.LTVScore,
	})
	return nil
}
