package ltv

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/store"
)

var now = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func history(n int, every time.Duration, lastAgo time.Duration, status func(i int) model.BookingStatus, price float64) []model.Booking {
	out := make([]model.Booking, n)
	for i := 0; i < n; i++ {
		at := now.Add(-lastAgo - time.Duration(n-1-i)*every)
		out[i] = model.Booking{ID: fmt.Sprint(i), Status: status(i), Price: price, CreatedAt: at}
	}
	return out
}

func completed(int) model.BookingStatus { return model.StatusCompleted }

func TestComputeNoBookingsIsNeutral(t *testing.T) {
	m := Compute("c1", nil, now)
	assert.Equal(t, NeutralLTV, m.LTVScore)
	assert.Zero(t, m.FrequencyScore)
	assert.Zero(t, m.RevenueScore)
	assert.Equal(t, 100.0, m.ReliabilityScore)
	assert.Nil(t, m.LastBookingAt)
}

func TestComputeMonthlyCustomer(t *testing.T) {
	month := 365 * 24 * time.Hour / 12
	m := Compute("c1", history(12, month, 10*24*time.Hour, completed, 250), now)
	assert.Equal(t, 12, m.CompletedBookings)
	assert.Equal(t, 3000.0, m.TotalRevenue)
	assert.Equal(t, 250.0, m.AverageRevenue)
	assert.Equal(t, 60.0, m.RevenueScore)
	assert.InDelta(t, 100, m.FrequencyScore, 0.01)
	assert.Equal(t, 100.0, m.ReliabilityScore)
	assert.InDelta(t, (0.4*60+0.3*100+0.3*100)*1.1, m.LTVScore, 0.01)
}

func TestComputeStaleFlakyCustomer(t *testing.T) {
	cancelEveryOther := func(i int) model.BookingStatus {
		if i%2 == 0 {
			return model.StatusCancelled
		}
		return model.StatusCompleted
	}
	m := Compute("c1", history(4, 73*24*time.Hour, 200*24*time.Hour, cancelEveryOther, 500), now)
	assert.Equal(t, 2, m.CancelledBookings)
	assert.Equal(t, 1000.0, m.TotalRevenue)
	assert.Equal(t, 20.0, m.RevenueScore)
	assert.InDelta(t, 41.67, m.FrequencyScore, 0.01)
	assert.Equal(t, 40.0, m.ReliabilityScore)
	assert.InDelta(t, (0.4*20+0.3*41.67+0.3*40)*0.8, m.LTVScore, 0.01)
}

func TestReliabilityBands(t *testing.T) {
	assert.Equal(t, 100.0, ReliabilityScore(0.05))
	assert.Equal(t, 90.0, ReliabilityScore(0.06))
	assert.Equal(t, 70.0, ReliabilityScore(0.2))
	assert.Equal(t, 40.0, ReliabilityScore(0.31))
}

func TestComputeScoresBounded(t *testing.T) {
	m := Compute("c1", history(40, 24*time.Hour, 0, completed, 900), now)
	for _, v := range []float64{m.RevenueScore, m.FrequencyScore, m.ReliabilityScore, m.LTVScore} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestMetricsCachesForADay(t *testing.T) {
	s := store.NewMemoryStore()
	s.PutBooking(model.Booking{ID: "b1", Request: model.JobRequest{CustomerID: "c1"}, Status: model.StatusCompleted, Price: 100, CreatedAt: now.Add(-48 * time.Hour)})
	calc := NewCalculator(s, nil)
	calc.SetClock(func() time.Time { return now })

	m, err := calc.Metrics(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalBookings)

	s.PutBooking(model.Booking{ID: "b2", Request: model.JobRequest{CustomerID: "c1"}, Status: model.StatusCancelled, CreatedAt: now})
	m, err = calc.Metrics(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalBookings)

	calc.SetClock(func() time.Time { return now.Add(25 * time.Hour) })
	m, err = calc.Metrics(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalBookings)
}

func TestMetricsUnknownCustomerIsNeutral(t *testing.T) {
	calc := NewCalculator(store.NewMemoryStore(), nil)
	m, err := calc.Metrics(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, NeutralLTV, m.LTVScore)
	m, err = calc.Metrics(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, NeutralLTV, m.LTVScore)
}

type readOnlyStore struct {
	*store.MemoryStore
}

func (readOnlyStore) UpsertCustomerMetrics(context.Context, model.CustomerMetrics) error {
	return errors.New("read-only replica")
}

func TestMetricsSurviveUpsertFailure(t *testing.T) {
	s := store.NewMemoryStore()
	s.PutBooking(model.Booking{ID: "b1", Request: model.JobRequest{CustomerID: "c1"}, Status: model.StatusCompleted, Price: 100, CreatedAt: now.Add(-48 * time.Hour)})
	calc := NewCalculator(readOnlyStore{s}, nil)
	calc.SetClock(func() time.Time { return now })

	m, err := calc.Metrics(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalBookings)
	assert.Equal(t, "c1", m.CustomerID)

	_, err = calc.Recalculate(context.Background(), "c1")
	assert.ErrorContains(t, err, "read-only replica")
}
