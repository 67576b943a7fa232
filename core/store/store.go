// Package store defines the persistence boundary of the allocation engine.
package store

import (
	"context"
	"time"

	"github.com/kilianp07/fieldalloc/core/model"
)

// BookingFilter selects bookings. Zero fields match everything.
type BookingFilter struct {
	EngineerID string
	CustomerID string
	District   string
	From       time.Time
	To         time.Time
	Statuses   []model.BookingStatus
}

// EngineerFilter selects engineers.
type EngineerFilter struct {
	ApprovedOnly bool
	ServiceID    string
}

// AssignParams describes a compare-and-set assignment. The write is rejected
// with a ConcurrencyConflict when the booking's status, engineer or version
// no longer match the expected values.
type AssignParams struct {
	BookingID          string
	EngineerID         string
	ExpectedStatus     model.BookingStatus
	ExpectedEngineerID string
	ExpectedVersion    int64
	NewStatus          model.BookingStatus
	Date               time.Time
	Slot               model.HalfDay
	StartTime          time.Time
	DurationMinutes    int
	Price              float64
}

type BookingStore interface {
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error)
	AssignEngineer(ctx context.Context, p AssignParams) (model.Booking, error)
	// UpdateBookingStatus moves a booking from expected to next.
	UpdateBookingStatus(ctx context.Context, id string, expected, next model.BookingStatus) (model.Booking, error)
}

type EngineerStore interface {
	GetEngineer(ctx context.Context, id string) (model.Engineer, error)
	ListEngineers(ctx context.Context, f EngineerFilter) ([]model.Engineer, error)
}

type CatalogStore interface {
	GetSite(ctx context.Context, id string) (model.Site, error)
	GetService(ctx context.Context, id string) (model.Service, error)
}

type PricingStore interface {
	// ListPricingRules returns all rules by ascending priority.
	ListPricingRules(ctx context.Context) ([]model.PricingRule, error)
	GetPricingRule(ctx context.Context, id string) (model.PricingRule, error)
	SavePricingRule(ctx context.Context, r model.PricingRule) error
}

type IntelligenceStore interface {
	GetAreaIntelligence(ctx context.Context, district string) (model.AreaIntelligence, error)
	UpsertAreaIntelligence(ctx context.Context, a model.AreaIntelligence) error
	GetCustomerMetrics(ctx context.Context, customerID string) (model.CustomerMetrics, error)
	UpsertCustomerMetrics(ctx context.Context, m model.CustomerMetrics) error
	ListDistricts(ctx context.Context) ([]string, error)
	ListCustomerIDs(ctx context.Context) ([]string, error)
}

type AuditStore interface {
	AppendAllocationLog(ctx context.Context, l model.AllocationLog) error
	AppendScoreLogs(ctx context.Context, logs []model.ScoreLog) error
}

// Repository is the full persistence surface consumed by the engine.
type Repository interface {
	BookingStore
	EngineerStore
	CatalogStore
	PricingStore
	IntelligenceStore
	AuditStore
}

// Match reports whether b satisfies f.
func (f BookingFilter) Match(b model.Booking, district string) bool {
	if f.EngineerID != "" && b.EngineerID != f.EngineerID {
		return false
	}
	if f.CustomerID != "" && b.Request.CustomerID != f.CustomerID {
		return false
	}
	if f.District != "" && district != f.District {
		return false
	}
	d := model.Day(b.ScheduledDate)
	if !f.From.IsZero() && d.Before(model.Day(f.From)) {
		return false
	}
	if !f.To.IsZero() && d.After(model.Day(f.To)) {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if b.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// ScheduledStatuses are the statuses that occupy an engineer's day.
var ScheduledStatuses = []model.BookingStatus{
	model.StatusConfirmed, model.StatusInProgress, model.StatusCompleted,
}
