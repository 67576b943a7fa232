package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/store"
)

var (
	created = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	wed     = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
)

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "postgres")), mock
}

var bookingCols = []string{
	"id", "customer_id", "site_id", "service_id", "preferred_date", "preferred_slots",
	"flexibility", "quantity", "expected_price", "status", "engineer_id", "scheduled_date",
	"scheduled_slot", "start_time", "duration_minutes", "postcode", "district", "price",
	"created_at", "version",
}

func bookingRows() *sqlmock.Rows {
	return sqlmock.NewRows(bookingCols)
}

func pendingBooking(rows *sqlmock.Rows) *sqlmock.Rows {
	return rows.AddRow("b1", "c1", "site1", "pat", wed, []byte("{am}"),
		"exact", int64(10), nil, "pending", nil, nil,
		nil, nil, int64(0), "M4 1AA", "M4", 0.0,
		created, int64(0))
}

func TestGetBooking(t *testing.T) {
	repo, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT .+ FROM bookings WHERE id = \\$1").
		WithArgs("b1").
		WillReturnRows(pendingBooking(bookingRows()))
	b, err := repo.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "c1", b.Request.CustomerID)
	assert.Equal(t, []model.HalfDay{model.Morning}, b.Request.PreferredSlots)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Empty(t, b.EngineerID)
	assert.True(t, b.ScheduledDate.IsZero())
	assert.Nil(t, b.Request.ExpectedPrice)

	mock.ExpectQuery("SELECT .+ FROM bookings WHERE id = \\$1").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetBooking(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	mock.ExpectQuery("SELECT .+ FROM bookings WHERE id = \\$1").
		WithArgs("b2").
		WillReturnError(sql.ErrConnDone)
	_, err = repo.GetBooking(ctx, "b2")
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBookingsBuildsFilter(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE engineer_id = $1 AND scheduled_date >= $2 AND scheduled_date <= $3 AND status = ANY($4) ORDER BY")).
		WithArgs("e1", wed, wed, sqlmock.AnyArg()).
		WillReturnRows(pendingBooking(bookingRows()))
	out, err := repo.ListBookings(context.Background(), store.BookingFilter{
		EngineerID: "e1",
		From:       wed.Add(5 * time.Hour),
		To:         wed,
		Statuses:   store.ScheduledStatuses,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b1", out[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignEngineer(t *testing.T) {
	params := store.AssignParams{
		BookingID:       "b1",
		EngineerID:      "e1",
		ExpectedStatus:  model.StatusPending,
		NewStatus:       model.StatusConfirmed,
		Date:            wed,
		Slot:            model.Morning,
		StartTime:       model.Morning.Start(wed),
		DurationMinutes: 60,
		Price:           100,
	}
	tests := []struct {
		name     string
		setup    func(mock sqlmock.Sqlmock)
		wantKind apperr.Kind
	}{
		{
			name: "assigned",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE bookings SET").
					WithArgs("e1", "confirmed", wed, "am", model.Morning.Start(wed), 100.0, int64(60), "b1", "pending", "", int64(0)).
					WillReturnRows(bookingRows().AddRow("b1", "c1", "site1", "pat", wed, []byte("{am}"),
						"exact", int64(10), nil, "confirmed", "e1", wed,
						"am", model.Morning.Start(wed), int64(60), "M4 1AA", "M4", 100.0,
						created, int64(1)))
			},
		},
		{
			name: "stale version",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE bookings SET").WillReturnRows(bookingRows())
				mock.ExpectQuery("SELECT EXISTS").WithArgs("b1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantKind: apperr.ConcurrencyConflict,
		},
		{
			name: "missing booking",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE bookings SET").WillReturnRows(bookingRows())
				mock.ExpectQuery("SELECT EXISTS").WithArgs("b1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantKind: apperr.NotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMock(t)
			tt.setup(mock)
			b, err := repo.AssignEngineer(context.Background(), params)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, "e1", b.EngineerID)
				assert.Equal(t, model.StatusConfirmed, b.Status)
				assert.Equal(t, int64(1), b.Version)
				assert.Equal(t, 60, b.DurationMinutes)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListEngineersDecodesJSONB(t *testing.T) {
	repo, mock := newMock(t)
	cols := []string{"id", "name", "approved", "base_postcode", "base_lat", "base_lng", "rating",
		"competencies", "qualifications", "coverage", "pay", "availability"}
	mock.ExpectQuery("SELECT .+ FROM engineers").
		WithArgs(true, "pat").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"e1", "Sam", true, "M4 2AA", 53.57, -2.24, 4.5,
			[]byte(`[{"service_id":"pat","certified":true,"experience_years":3,"completed_jobs":40}]`),
			[]byte(`[{"name":"PAT Inspection","expiry":"2027-01-01T00:00:00Z"}]`),
			[]byte(`[{"postcode_prefix":"M","radius_km":20}]`),
			[]byte(`{"type":"per_unit","rate":1.5}`),
			[]byte(`null`),
		))
	out, err := repo.ListEngineers(context.Background(), store.EngineerFilter{ApprovedOnly: true, ServiceID: "pat"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	e := out[0]
	require.NotNil(t, e.Base)
	assert.InDelta(t, 53.57, e.Base.Lat, 1e-9)
	require.NotNil(t, e.Rating)
	assert.Equal(t, 4.5, *e.Rating)
	c, ok := e.Competency("pat")
	require.True(t, ok)
	assert.True(t, c.Certified)
	assert.Equal(t, model.PayPerUnit, e.Pay.Type)
	assert.Nil(t, e.Availability)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPricingRulesRoundTrip(t *testing.T) {
	repo, mock := newMock(t)
	ctx := context.Background()
	rule := model.PricingRule{
		ID: "r1", Name: "Cluster", Priority: 10, Enabled: true, CustomerVisible: true,
		Config: model.ClusterConfig{MinJobs: 1, RadiusKm: 5, DiscountPercent: 10},
	}

	mock.ExpectExec("INSERT INTO pricing_rules").
		WithArgs("r1", "Cluster", "cluster", 10, true, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.SavePricingRule(ctx, rule))

	cols := []string{"id", "name", "type", "priority", "enabled", "customer_visible", "config"}
	mock.ExpectQuery("SELECT .+ FROM pricing_rules ORDER BY priority, id").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r1", "Cluster", "cluster", int64(10), true, true, []byte(`{"min_jobs":1,"radius_km":5,"discount_percent":10}`)))
	rules, err := repo.ListPricingRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.Config, rules[0].Config)
	assert.Equal(t, model.RuleCluster, rules[0].Type())

	mock.ExpectQuery("SELECT .+ FROM pricing_rules WHERE id = \\$1").
		WithArgs("bad").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("bad", "Bad", "surge", int64(1), true, false, []byte(`{}`)))
	_, err = repo.GetPricingRule(ctx, "bad")
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertIntelligence(t *testing.T) {
	repo, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO area_intelligence").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpsertAreaIntelligence(ctx, model.AreaIntelligence{District: "M4", CalculatedAt: created}))

	mock.ExpectExec("INSERT INTO customer_metrics").WillReturnError(sql.ErrConnDone)
	err := repo.UpsertCustomerMetrics(ctx, model.CustomerMetrics{CustomerID: "c1", CalculatedAt: created})
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))

	mock.ExpectQuery("SELECT DISTINCT district").
		WillReturnRows(sqlmock.NewRows([]string{"district"}).AddRow("M1").AddRow("M4"))
	d, err := repo.ListDistricts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"M1", "M4"}, d)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendScoreLogsIsTransactional(t *testing.T) {
	logs := []model.ScoreLog{
		{ID: "s1", BookingID: "b1", EngineerID: "e1", Date: wed, HalfDay: model.Morning, Rank: 1, WasSelected: true, CreatedAt: created},
		{ID: "s2", BookingID: "b1", EngineerID: "e2", Date: wed, HalfDay: model.Morning, Rank: 2, CreatedAt: created},
	}

	t.Run("commit", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO score_logs").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO score_logs").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		require.NoError(t, repo.AppendScoreLogs(context.Background(), logs))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO score_logs").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO score_logs").WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()
		assert.Error(t, repo.AppendScoreLogs(context.Background(), logs))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty", func(t *testing.T) {
		repo, mock := newMock(t)
		require.NoError(t, repo.AppendScoreLogs(context.Background(), nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
