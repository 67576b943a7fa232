package model

import (
	"math"
	"slices"
	"time"
)

// Flexibility describes how far a customer accepts the visit moving away from
// the preferred date and half-day.
type Flexibility string

const (
	FlexExact        Flexibility = "exact"
	FlexFlexibleDay  Flexibility = "flexible_day"
	FlexFlexibleWeek Flexibility = "flexible_week"
)

// Valid reports whether f is a known flexibility tier.
func (f Flexibility) Valid() bool {
	switch f {
	case FlexExact, FlexFlexibleDay, FlexFlexibleWeek:
		return true
	}
	return false
}

// HalfDay is one of the two bookable blocks of a working day.
type HalfDay string

const (
	Morning   HalfDay = "am"
	Afternoon HalfDay = "pm"
)

// HalfDays lists both blocks in chronological order.
var HalfDays = []HalfDay{Morning, Afternoon}

// Valid reports whether h is a known half-day.
func (h HalfDay) Valid() bool { return h == Morning || h == Afternoon }

// StartHour is the local hour at which the block starts.
func (h HalfDay) StartHour() int {
	if h == Afternoon {
		return 13
	}
	return 9
}

// Start returns the start time of the block on the given date.
func (h HalfDay) Start(date time.Time) time.Time {
	d := Day(date)
	return d.Add(time.Duration(h.StartHour()) * time.Hour)
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	da := Day(a)
	db := Day(b.In(a.Location()))
	return int(math.Round(db.Sub(da).Hours() / 24))
}

// JobRequest is the customer's ask. It is immutable once scoring begins.
type JobRequest struct {
	CustomerID     string      `json:"customer_id"`
	SiteID         string      `json:"site_id"`
	ServiceID      string      `json:"service_id"`
	PreferredDate  time.Time   `json:"preferred_date"`
	PreferredSlots []HalfDay   `json:"preferred_slots,omitempty"`
	Flexibility    Flexibility `json:"flexibility"`
	Quantity       int         `json:"quantity"`
	ExpectedPrice  *float64    `json:"expected_price,omitempty"`
}

// Prefers reports whether the half-day is in the preferred set. An empty set
// accepts any half-day.
func (r JobRequest) Prefers(h HalfDay) bool {
	if len(r.PreferredSlots) == 0 {
		return true
	}
	return slices.Contains(r.PreferredSlots, h)
}

// Units returns the quantity, defaulting to one.
func (r JobRequest) Units() int {
	if r.Quantity <= 0 {
		return 1
	}
	return r.Quantity
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
)

// Scheduled reports whether the booking occupies an engineer's day.
func (s BookingStatus) Scheduled() bool {
	return s == StatusConfirmed || s == StatusInProgress || s == StatusCompleted
}

// Booking is a persisted job request with its allocation state.
type Booking struct {
	ID              string        `json:"id"`
	Request         JobRequest    `json:"request"`
	Status          BookingStatus `json:"status"`
	EngineerID      string        `json:"engineer_id,omitempty"`
	ScheduledDate   time.Time     `json:"scheduled_date"`
	ScheduledSlot   HalfDay       `json:"scheduled_slot,omitempty"`
	StartTime       time.Time     `json:"start_time"`
	DurationMinutes int           `json:"duration_minutes"`
	Postcode        string        `json:"postcode"`
	Price           float64       `json:"price"`
	CreatedAt       time.Time     `json:"created_at"`
	Version         int64         `json:"version"`
}

// End returns the scheduled finish time.
func (b Booking) End() time.Time {
	return b.StartTime.Add(time.Duration(b.DurationMinutes) * time.Minute)
}
