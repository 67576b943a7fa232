package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/store"
)

// Repository is a PostgreSQL store.Repository.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

var _ store.Repository = (*Repository)(nil)

// Close closes the underlying pool.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func notFound(err error, op, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFoundf(op, format, args...)
	}
	return apperr.Wrap(apperr.Internal, op, err)
}

// ====================
// Bookings
// ====================

// SaveBooking inserts or replaces a booking. The district column is derived
// from the postcode.
func (r *Repository) SaveBooking(ctx context.Context, b model.Booking) error {
	slots := make(pq.StringArray, len(b.Request.PreferredSlots))
	for i, s := range b.Request.PreferredSlots {
		slots[i] = string(s)
	}
	var expected sql.NullFloat64
	if b.Request.ExpectedPrice != nil {
		expected = sql.NullFloat64{Float64: *b.Request.ExpectedPrice, Valid: true}
	}
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id, site_id = EXCLUDED.site_id,
			service_id = EXCLUDED.service_id, preferred_date = EXCLUDED.preferred_date,
			preferred_slots = EXCLUDED.preferred_slots, flexibility = EXCLUDED.flexibility,
			quantity = EXCLUDED.quantity, expected_price = EXCLUDED.expected_price,
			status = EXCLUDED.status, engineer_id = EXCLUDED.engineer_id,
			scheduled_date = EXCLUDED.scheduled_date, scheduled_slot = EXCLUDED.scheduled_slot,
			start_time = EXCLUDED.start_time, duration_minutes = EXCLUDED.duration_minutes,
			postcode = EXCLUDED.postcode, district = EXCLUDED.district, price = EXCLUDED.price,
			version = bookings.version + 1
	`
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.Request.CustomerID, b.Request.SiteID, b.Request.ServiceID,
		nullDate(b.Request.PreferredDate), slots, string(b.Request.Flexibility), b.Request.Quantity,
		expected, string(b.Status), nullString(b.EngineerID), nullDate(b.ScheduledDate),
		nullString(string(b.ScheduledSlot)), nullDate(b.StartTime), b.DurationMinutes,
		b.Postcode, geo.District(b.Postcode), b.Price, b.CreatedAt, b.Version,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "postgres.SaveBooking", err)
	}
	return nil
}

func (r *Repository) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	var row bookingRow
	err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err != nil {
		return model.Booking{}, notFound(err, "postgres.GetBooking", "booking %s not found", id)
	}
	return row.model(), nil
}

func (r *Repository) ListBookings(ctx context.Context, f store.BookingFilter) ([]model.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.EngineerID != "" {
		add("engineer_id = $%d", f.EngineerID)
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.District != "" {
		add("district = $%d", f.District)
	}
	if !f.From.IsZero() {
		add("scheduled_date >= $%d", model.Day(f.From))
	}
	if !f.To.IsZero() {
		add("scheduled_date <= $%d", model.Day(f.To))
	}
	if len(f.Statuses) > 0 {
		st := make(pq.StringArray, len(f.Statuses))
		for i, s := range f.Statuses {
			st[i] = string(s)
		}
		add("status = ANY($%d)", st)
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_date NULLS LAST, start_time NULLS LAST, id"

	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "postgres.ListBookings", err)
	}
	out := make([]model.Booking, len(rows))
	for i, row := range rows {
		out[i] = row.model()
	}
	return out, nil
}

// AssignEngineer performs the compare-and-set in a single UPDATE. When no
// row matches, a second read tells a missing booking from a stale one.
func (r *Repository) AssignEngineer(ctx context.Context, p store.AssignParams) (model.Booking, error) {
	const op = "postgres.AssignEngineer"
	query := `
		UPDATE bookings SET
			engineer_id = $1, status = $2, scheduled_date = $3, scheduled_slot = $4,
			start_time = $5, price = CASE WHEN $6::double precision > 0 THEN $6::double precision ELSE price END,
			duration_minutes = CASE WHEN $7::integer > 0 THEN $7::integer ELSE duration_minutes END,
			version = version + 1
		WHERE id = $8 AND status = $9 AND COALESCE(engineer_id, '') = $10 AND version = $11
		RETURNING ` + bookingColumns
	var row bookingRow
	err := r.db.QueryRowxContext(ctx, query,
		p.EngineerID, string(p.NewStatus), model.Day(p.Date), string(p.Slot),
		p.StartTime, p.Price, p.DurationMinutes,
		p.BookingID, string(p.ExpectedStatus), p.ExpectedEngineerID, p.ExpectedVersion,
	).StructScan(&row)
	if err == nil {
		return row.model(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, apperr.Wrap(apperr.Internal, op, err)
	}
	return model.Booking{}, r.missingOrStale(ctx, op, p.BookingID)
}

func (r *Repository) UpdateBookingStatus(ctx context.Context, id string, expected, next model.BookingStatus) (model.Booking, error) {
	const op = "postgres.UpdateBookingStatus"
	query := `
		UPDATE bookings SET status = $1, version = version + 1
		WHERE id = $2 AND status = $3
		RETURNING ` + bookingColumns
	var row bookingRow
	err := r.db.QueryRowxContext(ctx, query, string(next), id, string(expected)).StructScan(&row)
	if err == nil {
		return row.model(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, apperr.Wrap(apperr.Internal, op, err)
	}
	return model.Booking{}, r.missingOrStale(ctx, op, id)
}

func (r *Repository) missingOrStale(ctx context.Context, op, id string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id); err != nil {
		return apperr.Wrap(apperr.Internal, op, err)
	}
	if !exists {
		return apperr.NotFoundf(op, "booking %s not found", id)
	}
	return apperr.Conflictf(op, "booking %s changed since read", id)
}

// ====================
// Engineers and catalog
// ====================

// SaveEngineer inserts or replaces an engineer.
func (r *Repository) SaveEngineer(ctx context.Context, e model.Engineer) error {
	var lat, lng, rating sql.NullFloat64
	if e.Base != nil {
		lat = sql.NullFloat64{Float64: e.Base.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: e.Base.Lng, Valid: true}
	}
	if e.Rating != nil {
		rating = sql.NullFloat64{Float64: *e.Rating, Valid: true}
	}
	query := `
		INSERT INTO engineers (` + engineerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, approved = EXCLUDED.approved,
			base_postcode = EXCLUDED.base_postcode, base_lat = EXCLUDED.base_lat,
			base_lng = EXCLUDED.base_lng, rating = EXCLUDED.rating,
			competencies = EXCLUDED.competencies, qualifications = EXCLUDED.qualifications,
			coverage = EXCLUDED.coverage, pay = EXCLUDED.pay, availability = EXCLUDED.availability
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Name, e.Approved, e.BasePostcode, lat, lng, rating,
		jsonb[[]model.Competency]{e.Competencies},
		jsonb[[]model.Qualification]{e.Qualifications},
		jsonb[[]model.CoverageArea]{e.Coverage},
		jsonb[model.PayModel]{e.Pay},
		jsonb[[]model.Availability]{e.Availability},
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "postgres.SaveEngineer", err)
	}
	return nil
}

func (r *Repository) GetEngineer(ctx context.Context, id string) (model.Engineer, error) {
	var row engineerRow
	err := r.db.GetContext(ctx, &row, `SELECT `+engineerColumns+` FROM engineers WHERE id = $1`, id)
	if err != nil {
		return model.Engineer{}, notFound(err, "postgres.GetEngineer", "engineer %s not found", id)
	}
	return row.model(), nil
}

func (r *Repository) ListEngineers(ctx context.Context, f store.EngineerFilter) ([]model.Engineer, error) {
	query := `
		SELECT ` + engineerColumns + ` FROM engineers
		WHERE ($1::boolean = FALSE OR approved)
		  AND ($2::text = '' OR competencies @> jsonb_build_array(jsonb_build_object('service_id', $2::text)))
		ORDER BY id`
	var rows []engineerRow
	if err := r.db.SelectContext(ctx, &rows, query, f.ApprovedOnly, f.ServiceID); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "postgres.ListEngineers", err)
	}
	out := make([]model.Engineer, len(rows))
	for i, row := range rows {
		out[i] = row.model()
	}
	return out, nil
}

func (r *Repository) GetSite(ctx context.Context, id string) (model.Site, error) {
	var row siteRow
	err := r.db.GetContext(ctx, &row, `SELECT id, customer_id, postcode, lat, lng FROM sites WHERE id = $1`, id)
	if err != nil {
		return model.Site{}, notFound(err, "postgres.GetSite", "site %s not found", id)
	}
	return row.model(), nil
}

func (r *Repository) GetService(ctx context.Context, id string) (model.Service, error) {
	var row serviceRow
	query := `
		SELECT id, name, category, base_price, unit_price, base_minutes, minutes_per_unit
		FROM services WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return model.Service{}, notFound(err, "postgres.GetService", "service %s not found", id)
	}
	return row.model(), nil
}

// ====================
// Pricing rules
// ====================

func (r *Repository) ListPricingRules(ctx context.Context) ([]model.PricingRule, error) {
	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+ruleColumns+` FROM pricing_rules ORDER BY priority, id`); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "postgres.ListPricingRules", err)
	}
	out := make([]model.PricingRule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.model()
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "postgres.ListPricingRules", err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func (r *Repository) GetPricingRule(ctx context.Context, id string) (model.PricingRule, error) {
	const op = "postgres.GetPricingRule"
	var row ruleRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+ruleColumns+` FROM pricing_rules WHERE id = $1`, id); err != nil {
		return model.PricingRule{}, notFound(err, op, "pricing rule %s not found", id)
	}
	rule, err := row.model()
	if err != nil {
		return model.PricingRule{}, apperr.Wrap(apperr.Internal, op, err)
	}
	return rule, nil
}

func (r *Repository) SavePricingRule(ctx context.Context, rule model.PricingRule) error {
	const op = "postgres.SavePricingRule"
	cfg, err := jsonb[model.RuleConfig]{rule.Config}.Value()
	if err != nil {
		return apperr.Wrap(apperr.ValidationFailure, op, err)
	}
	query := `
		INSERT INTO pricing_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, priority = EXCLUDED.priority,
			enabled = EXCLUDED.enabled, customer_visible = EXCLUDED.customer_visible,
			config = EXCLUDED.config
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, string(rule.Type()), rule.Priority, rule.Enabled, rule.CustomerVisible, cfg)
	if err != nil {
		return apperr.Wrap(apperr.Internal, op, err)
	}
	return nil
}

// ====================
// Intelligence
// ====================

func (r *Repository) GetAreaIntelligence(ctx context.Context, district string) (model.AreaIntelligence, error) {
	var a model.AreaIntelligence
	err := r.db.GetContext(ctx, &a, `SELECT `+areaColumns+` FROM area_intelligence WHERE district = $1`, district)
	if err != nil {
		return model.AreaIntelligence{}, notFound(err, "postgres.GetAreaIntelligence", "no intelligence for %s", district)
	}
	return a, nil
}

func (r *Repository) UpsertAreaIntelligence(ctx context.Context, a model.AreaIntelligence) error {
	query := `
		INSERT INTO area_intelligence (` + areaColumns + `)
		VALUES (:district, :estimated_businesses, :density_tier, :customer_count, :booking_count,
			:penetration_rate, :average_job_value, :cancellation_rate, :primary_industry,
			:repeat_customer_factor, :calculated_at)
		ON CONFLICT (district) DO UPDATE SET
			estimated_businesses = EXCLUDED.estimated_businesses,
			density_tier = EXCLUDED.density_tier,
			customer_count = EXCLUDED.customer_count,
			booking_count = EXCLUDED.booking_count,
			penetration_rate = EXCLUDED.penetration_rate,
			average_job_value = EXCLUDED.average_job_value,
			cancellation_rate = EXCLUDED.cancellation_rate,
			primary_industry = EXCLUDED.primary_industry,
			repeat_customer_factor = EXCLUDED.repeat_customer_factor,
			calculated_at = EXCLUDED.calculated_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return apperr.Wrap(apperr.Internal, "postgres.UpsertAreaIntelligence", err)
	}
	return nil
}

func (r *Repository) GetCustomerMetrics(ctx context.Context, customerID string) (model.CustomerMetrics, error) {
	var m model.CustomerMetrics
	err := r.db.GetContext(ctx, &m, `SELECT `+customerColumns+` FROM customer_metrics WHERE customer_id = $1`, customerID)
	if err != nil {
		return model.CustomerMetrics{}, notFound(err, "postgres.GetCustomerMetrics", "no metrics for %s", customerID)
	}
	return m, nil
}

func (r *Repository) UpsertCustomerMetrics(ctx context.Context, m model.CustomerMetrics) error {
	query := `
		INSERT INTO customer_metrics (` + customerColumns + `)
		VALUES (:customer_id, :total_bookings, :completed_bookings, :cancelled_bookings,
			:total_revenue, :average_revenue, :first_booking_at, :last_booking_at, :revenue_score,
			:frequency_score, :reliability_score, :ltv_score, :calculated_at)
		ON CONFLICT (customer_id) DO UPDATE SET
			total_bookings = EXCLUDED.total_bookings,
			completed_bookings = EXCLUDED.completed_bookings,
			cancelled_bookings = EXCLUDED.cancelled_bookings,
			total_revenue = EXCLUDED.total_revenue,
			average_revenue = EXCLUDED.average_revenue,
			first_booking_at = EXCLUDED.first_booking_at,
			last_booking_at = EXCLUDED.last_booking_at,
			revenue_score = EXCLUDED.revenue_score,
			frequency_score = EXCLUDED.frequency_score,
			reliability_score = EXCLUDED.reliability_score,
			ltv_score = EXCLUDED.ltv_score,
			calculated_at = EXCLUDED.calculated_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return apperr.Wrap(apperr.Internal, "postgres.UpsertCustomerMetrics", err)
	}
	return nil
}

func (r *Repository) ListDistricts(ctx context.Context) ([]string, error) {
	var out []string
	if err := r.db.SelectContext(ctx, &out, `SELECT DISTINCT district FROM bookings WHERE district <> '' ORDER BY district`); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "postgres.ListDistricts", err)
	}
	return out, nil
}

func (r *Repository) ListCustomerIDs(ctx context.Context) ([]string, error) {
	var out []string
	if err := r.db.SelectContext(ctx, &out, `SELECT DISTINCT customer_id FROM bookings ORDER BY customer_id`); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "postgres.ListCustomerIDs", err)
	}
	return out, nil
}

// ====================
// Logs
// ====================

func (r *Repository) AppendAllocationLog(ctx context.Context, l model.AllocationLog) error {
	query := `
		INSERT INTO allocation_logs (id, booking_id, engineer_id, previous_engineer_id,
			composite_score, weights, candidate_count, shadow, override, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.BookingID, l.EngineerID, l.PreviousID, l.CompositeScore,
		jsonb[model.Weights]{l.Weights}, l.CandidateCount, l.Shadow, l.Override, l.Reason,
		jsonb[map[string]any]{l.Metadata}, l.CreatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "postgres.AppendAllocationLog", err)
	}
	return nil
}

// AppendScoreLogs writes all rows in one transaction.
func (r *Repository) AppendScoreLogs(ctx context.Context, logs []model.ScoreLog) error {
	const op = "postgres.AppendScoreLogs"
	if len(logs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		INSERT INTO score_logs (id, booking_id, engineer_id, date, half_day, rank, score,
			was_selected, shadow, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, l := range logs {
		_, err := tx.ExecContext(ctx, query,
			l.ID, l.BookingID, l.EngineerID, model.Day(l.Date), string(l.HalfDay), l.Rank,
			jsonb[model.SlotScore]{l.Score}, l.WasSelected, l.Shadow, l.CreatedAt,
		)
		if err != nil {
			return apperr.Wrap(apperr.Internal, op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Internal, op, err)
	}
	return nil
}
