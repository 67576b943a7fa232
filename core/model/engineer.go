package model

import (
	"strings"
	"time"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PayType selects how an engineer is paid for a job.
type PayType string

const (
	PayPerUnit    PayType = "per_unit"
	PayPercentage PayType = "percentage"
	PayDayRate    PayType = "day_rate"
)

// PayModel is an engineer's pay type and rate. Rate is money per unit, a
// percentage of the job price, or money per day depending on Type.
type PayModel struct {
	Type PayType `json:"type"`
	Rate float64 `json:"rate"`
}

// Competency records an engineer's standing for one service.
type Competency struct {
	ServiceID       string  `json:"service_id"`
	Certified       bool    `json:"certified"`
	ExperienceYears float64 `json:"experience_years"`
	CompletedJobs   int     `json:"completed_jobs"`
}

// Qualification is a dated certificate held by an engineer.
type Qualification struct {
	Name        string    `json:"name"`
	IssuingBody string    `json:"issuing_body"`
	Expiry      time.Time `json:"expiry"`
}

// ValidOn reports whether the qualification is unexpired on date.
func (q Qualification) ValidOn(date time.Time) bool {
	return !Day(q.Expiry).Before(Day(date))
}

// CoverageArea is a postcode prefix an engineer serves within a radius.
type CoverageArea struct {
	PostcodePrefix string  `json:"postcode_prefix"`
	RadiusKm       float64 `json:"radius_km"`
}

// Availability marks one half-day as available or blocked.
type Availability struct {
	Date      time.Time `json:"date"`
	Slot      HalfDay   `json:"slot"`
	Available bool      `json:"available"`
}

// Engineer is a field engineer who can be allocated jobs.
type Engineer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Approved       bool            `json:"approved"`
	BasePostcode   string          `json:"base_postcode"`
	Base           *Coordinates    `json:"base,omitempty"`
	Rating         *float64        `json:"rating,omitempty"`
	Competencies   []Competency    `json:"competencies"`
	Qualifications []Qualification `json:"qualifications"`
	Coverage       []CoverageArea  `json:"coverage"`
	Pay            PayModel        `json:"pay"`
	Availability   []Availability  `json:"availability"`
}

// Competency returns the engineer's competency for a service.
func (e Engineer) Competency(serviceID string) (Competency, bool) {
	for _, c := range e.Competencies {
		if c.ServiceID == serviceID {
			return c, true
		}
	}
	return Competency{}, false
}

// AvailabilityOn returns the explicit availability record for a half-day.
// explicit is false when no record exists.
func (e Engineer) AvailabilityOn(date time.Time, slot HalfDay) (available, explicit bool) {
	d := Day(date)
	for _, a := range e.Availability {
		if a.Slot == slot && Day(a.Date).Equal(d) {
			return a.Available, true
		}
	}
	return true, false
}

// CoverageRadius returns the radius of the most specific coverage area whose
// prefix matches postcode.
func (e Engineer) CoverageRadius(postcode string) (float64, bool) {
	pc := strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))
	best, bestLen := 0.0, -1
	for _, c := range e.Coverage {
		p := strings.ToUpper(strings.ReplaceAll(c.PostcodePrefix, " ", ""))
		if strings.HasPrefix(pc, p) && len(p) > bestLen {
			best, bestLen = c.RadiusKm, len(p)
		}
	}
	return best, bestLen >= 0
}

// Site is a customer premises.
type Site struct {
	ID          string       `json:"id"`
	CustomerID  string       `json:"customer_id"`
	Postcode    string       `json:"postcode"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Service is a bookable compliance test.
type Service struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	BasePrice      float64 `json:"base_price"`
	UnitPrice      float64 `json:"unit_price"`
	BaseMinutes    int     `json:"base_minutes"`
	MinutesPerUnit int     `json:"minutes_per_unit"`
}

// DurationMinutes estimates on-site time for qty units.
func (s Service) DurationMinutes(qty int) int {
	if qty <= 0 {
		qty = 1
	}
	d := s.BaseMinutes + s.MinutesPerUnit*qty
	if d <= 0 {
		return 60
	}
	return d
}

// PriceFor returns the list price for qty units.
func (s Service) PriceFor(qty int) float64 {
	if qty <= 0 {
		qty = 1
	}
	return Round2(s.BasePrice + s.UnitPrice*float64(qty))
}
