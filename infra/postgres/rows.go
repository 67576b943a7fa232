package postgres

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kilianp07/fieldalloc/core/model"
)

// jsonb stores V as a JSONB column.
type jsonb[T any] struct{ V T }

func (j jsonb[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (j *jsonb[T]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		var zero T
		j.V = zero
		return nil
	case []byte:
		return json.Unmarshal(v, &j.V)
	case string:
		return json.Unmarshal([]byte(v), &j.V)
	default:
		return fmt.Errorf("jsonb: unsupported type %T", src)
	}
}

const bookingColumns = `id, customer_id, site_id, service_id, preferred_date, preferred_slots,
	flexibility, quantity, expected_price, status, engineer_id, scheduled_date, scheduled_slot,
	start_time, duration_minutes, postcode, district, price, created_at, version`

type bookingRow struct {
	ID              string          `db:"id"`
	CustomerID      string          `db:"customer_id"`
	SiteID          string          `db:"site_id"`
	ServiceID       string          `db:"service_id"`
	PreferredDate   sql.NullTime    `db:"preferred_date"`
	PreferredSlots  pq.StringArray  `db:"preferred_slots"`
	Flexibility     string          `db:"flexibility"`
	Quantity        int             `db:"quantity"`
	ExpectedPrice   sql.NullFloat64 `db:"expected_price"`
	Status          string          `db:"status"`
	EngineerID      sql.NullString  `db:"engineer_id"`
	ScheduledDate   sql.NullTime    `db:"scheduled_date"`
	ScheduledSlot   sql.NullString  `db:"scheduled_slot"`
	StartTime       sql.NullTime    `db:"start_time"`
	DurationMinutes int             `db:"duration_minutes"`
	Postcode        string          `db:"postcode"`
	District        string          `db:"district"`
	Price           float64         `db:"price"`
	CreatedAt       time.Time       `db:"created_at"`
	Version         int64           `db:"version"`
}

func (r bookingRow) model() model.Booking {
	b := model.Booking{
		ID: r.ID,
		Request: model.JobRequest{
			CustomerID:  r.CustomerID,
			SiteID:      r.SiteID,
			ServiceID:   r.ServiceID,
			Flexibility: model.Flexibility(r.Flexibility),
			Quantity:    r.Quantity,
		},
		Status:          model.BookingStatus(r.Status),
		EngineerID:      r.EngineerID.String,
		ScheduledSlot:   model.HalfDay(r.ScheduledSlot.String),
		DurationMinutes: r.DurationMinutes,
		Postcode:        r.Postcode,
		Price:           r.Price,
		CreatedAt:       r.CreatedAt,
		Version:         r.Version,
	}
	if r.PreferredDate.Valid {
		b.Request.PreferredDate = r.PreferredDate.Time
	}
	for _, s := range r.PreferredSlots {
		b.Request.PreferredSlots = append(b.Request.PreferredSlots, model.HalfDay(s))
	}
	if r.ExpectedPrice.Valid {
		p := r.ExpectedPrice.Float64
		b.Request.ExpectedPrice = &p
	}
	if r.ScheduledDate.Valid {
		b.ScheduledDate = r.ScheduledDate.Time
	}
	if r.StartTime.Valid {
		b.StartTime = r.StartTime.Time
	}
	return b
}

type engineerRow struct {
	ID             string                       `db:"id"`
	Name           string                       `db:"name"`
	Approved       bool                         `db:"approved"`
	BasePostcode   string                       `db:"base_postcode"`
	BaseLat        sql.NullFloat64              `db:"base_lat"`
	BaseLng        sql.NullFloat64              `db:"base_lng"`
	Rating         sql.NullFloat64              `db:"rating"`
	Competencies   jsonb[[]model.Competency]    `db:"competencies"`
	Qualifications jsonb[[]model.Qualification] `db:"qualifications"`
	Coverage       jsonb[[]model.CoverageArea]  `db:"coverage"`
	Pay            jsonb[model.PayModel]        `db:"pay"`
	Availability   jsonb[[]model.Availability]  `db:"availability"`
}

const engineerColumns = `id, name, approved, base_postcode, base_lat, base_lng, rating,
	competencies, qualifications, coverage, pay, availability`

func (r engineerRow) model() model.Engineer {
	e := model.Engineer{
		ID:             r.ID,
		Name:           r.Name,
		Approved:       r.Approved,
		BasePostcode:   r.BasePostcode,
		Competencies:   r.Competencies.V,
		Qualifications: r.Qualifications.V,
		Coverage:       r.Coverage.V,
		Pay:            r.Pay.V,
		Availability:   r.Availability.V,
	}
	if r.BaseLat.Valid && r.BaseLng.Valid {
		e.Base = &model.Coordinates{Lat: r.BaseLat.Float64, Lng: r.BaseLng.Float64}
	}
	if r.Rating.Valid {
		v := r.Rating.Float64
		e.Rating = &v
	}
	return e
}

type siteRow struct {
	ID         string          `db:"id"`
	CustomerID string          `db:"customer_id"`
	Postcode   string          `db:"postcode"`
	Lat        sql.NullFloat64 `db:"lat"`
	Lng        sql.NullFloat64 `db:"lng"`
}

func (r siteRow) model() model.Site {
	s := model.Site{ID: r.ID, CustomerID: r.CustomerID, Postcode: r.Postcode}
	if r.Lat.Valid && r.Lng.Valid {
		s.Coordinates = &model.Coordinates{Lat: r.Lat.Float64, Lng: r.Lng.Float64}
	}
	return s
}

type serviceRow struct {
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	Category       string  `db:"category"`
	BasePrice      float64 `db:"base_price"`
	UnitPrice      float64 `db:"unit_price"`
	BaseMinutes    int     `db:"base_minutes"`
	MinutesPerUnit int     `db:"minutes_per_unit"`
}

func (r serviceRow) model() model.Service {
	return model.Service{
		ID:             r.ID,
		Name:           r.Name,
		Category:       r.Category,
		BasePrice:      r.BasePrice,
		UnitPrice:      r.UnitPrice,
		BaseMinutes:    r.BaseMinutes,
		MinutesPerUnit: r.MinutesPerUnit,
	}
}

type ruleRow struct {
	ID              string          `db:"id"`
	Name            string          `db:"name"`
	Type            string          `db:"type"`
	Priority        int             `db:"priority"`
	Enabled         bool            `db:"enabled"`
	CustomerVisible bool            `db:"customer_visible"`
	Config          json.RawMessage `db:"config"`
}

const ruleColumns = `id, name, type, priority, enabled, customer_visible, config`

func (r ruleRow) model() (model.PricingRule, error) {
	cfg, err := model.DecodeRuleConfig(model.RuleType(r.Type), r.Config)
	if err != nil {
		return model.PricingRule{}, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return model.PricingRule{
		ID:              r.ID,
		Name:            r.Name,
		Priority:        r.Priority,
		Enabled:         r.Enabled,
		CustomerVisible: r.CustomerVisible,
		Config:          cfg,
	}, nil
}

const areaColumns = `district, estimated_businesses, density_tier, customer_count, booking_count,
	penetration_rate, average_job_value, cancellation_rate, primary_industry,
	repeat_customer_factor, calculated_at`

const customerColumns = `customer_id, total_bookings, completed_bookings, cancelled_bookings,
	total_revenue, average_revenue, first_booking_at, last_booking_at, revenue_score,
	frequency_score, reliability_score, ltv_score, calculated_at`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDate(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
