package model

import "time"

// DensityTier buckets the estimated business density of a district.
type DensityTier string

const (
	DensityVeryHigh DensityTier = "very_high"
	DensityHigh     DensityTier = "high"
	DensityMedium   DensityTier = "medium"
	DensityLow      DensityTier = "low"
	DensityRural    DensityTier = "rural"
)

// AreaIntelligence caches market statistics for a postcode district.
type AreaIntelligence struct {
	District             string      `json:"district" db:"district"`
	EstimatedBusinesses  int         `json:"estimated_businesses" db:"estimated_businesses"`
	DensityTier          DensityTier `json:"density_tier" db:"density_tier"`
	CustomerCount        int         `json:"customer_count" db:"customer_count"`
	BookingCount         int         `json:"booking_count" db:"booking_count"`
	PenetrationRate      float64     `json:"penetration_rate" db:"penetration_rate"`
	AverageJobValue      float64     `json:"average_job_value" db:"average_job_value"`
	CancellationRate     float64     `json:"cancellation_rate" db:"cancellation_rate"`
	PrimaryIndustry      string      `json:"primary_industry" db:"primary_industry"`
	RepeatCustomerFactor float64     `json:"repeat_customer_factor" db:"repeat_customer_factor"`
	CalculatedAt         time.Time   `json:"calculated_at" db:"calculated_at"`
}

// Stale reports whether the entry is older than maxAge at now.
func (a AreaIntelligence) Stale(now time.Time, maxAge time.Duration) bool {
	return a.CalculatedAt.IsZero() || now.Sub(a.CalculatedAt) > maxAge
}

// CustomerMetricsMaxAge is how long customer metrics are reused.
const CustomerMetricsMaxAge = 24 * time.Hour

// CustomerMetrics summarises a customer's booking history.
type CustomerMetrics struct {
	CustomerID        string     `json:"customer_id" db:"customer_id"`
	TotalBookings     int        `json:"total_bookings" db:"total_bookings"`
	CompletedBookings int        `json:"completed_bookings" db:"completed_bookings"`
	CancelledBookings int        `json:"cancelled_bookings" db:"cancelled_bookings"`
	TotalRevenue      float64    `json:"total_revenue" db:"total_revenue"`
	AverageRevenue    float64    `json:"average_revenue" db:"average_revenue"`
	FirstBookingAt    *time.Time `json:"first_booking_at,omitempty" db:"first_booking_at"`
	LastBookingAt     *time.Time `json:"last_booking_at,omitempty" db:"last_booking_at"`
	RevenueScore      float64    `json:"revenue_score" db:"revenue_score"`
	FrequencyScore    float64    `json:"frequency_score" db:"frequency_score"`
	ReliabilityScore  float64    `json:"reliability_score" db:"reliability_score"`
	LTVScore          float64    `json:"ltv_score" db:"ltv_score"`
	CalculatedAt      time.Time  `json:"calculated_at" db:"calculated_at"`
}

// Stale reports whether the metrics need recomputing at now.
func (m CustomerMetrics) Stale(now time.Time) bool {
	return m.CalculatedAt.IsZero() || now.Sub(m.CalculatedAt) > CustomerMetricsMaxAge
}

// CancellationRate is cancelled / total bookings, or 0 without history.
func (m CustomerMetrics) CancellationRate() float64 {
	if m.TotalBookings == 0 {
		return 0
	}
	return float64(m.CancelledBookings) / float64(m.TotalBookings)
}

// AllocationLog is the append-only record of an applied or overridden
// allocation.
type AllocationLog struct {
	ID             string         `json:"id"`
	BookingID      string         `json:"booking_id"`
	EngineerID     string         `json:"engineer_id"`
	PreviousID     string         `json:"previous_engineer_id,omitempty"`
	CompositeScore float64        `json:"composite_score"`
	Weights        Weights        `json:"weights"`
	CandidateCount int            `json:"candidate_count"`
	Shadow         bool           `json:"shadow"`
	Override       bool           `json:"override"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ScoreLog is the append-only record of one scored candidate.
type ScoreLog struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"booking_id"`
	EngineerID  string    `json:"engineer_id"`
	Date        time.Time `json:"date"`
	HalfDay     HalfDay   `json:"half_day"`
	Rank        int       `json:"rank"`
	Score       SlotScore `json:"score"`
	WasSelected bool      `json:"was_selected"`
	Shadow      bool      `json:"shadow"`
	CreatedAt   time.Time `json:"created_at"`
}
