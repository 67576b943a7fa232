package network

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

func booking(id, customer, pc string, status model.BookingStatus, price float64) model.Booking {
	return model.Booking{ID: id, Request: model.JobRequest{CustomerID: customer}, Postcode: pc, Status: status, Price: price}
}

func TestDerive(t *testing.T) {
	bookings := []model.Booking{
		booking("1", "c1", "M1 1AA", model.StatusCompleted, 100),
		booking("2", "c1", "M1 2AA", model.StatusCompleted, 200),
		booking("3", "c2", "M1 3AA", model.StatusCancelled, 0),
		booking("4", "c3", "M1 4AA", model.StatusConfirmed, 150),
	}
	ai := Derive("M1", bookings, now)
	assert.Equal(t, model.DensityHigh, ai.DensityTier)
	assert.Equal(t, 2500, ai.EstimatedBusinesses)
	assert.Equal(t, 3, ai.CustomerCount)
	assert.Equal(t, 4, ai.BookingCount)
	assert.Equal(t, 0.0012, ai.PenetrationRate)
	assert.Equal(t, 150.0, ai.AverageJobValue)
	assert.Equal(t, 0.25, ai.CancellationRate)
	assert.Equal(t, 0.33, ai.RepeatCustomerFactor)
	assert.Equal(t, now, ai.CalculatedAt)
}

func TestDeriveUnknownArea(t *testing.T) {
	ai := Derive("QQ9", nil, now)
	assert.Equal(t, model.DensityLow, ai.DensityTier)
	assert.Equal(t, "mixed", ai.PrimaryIndustry)
	assert.Zero(t, ai.PenetrationRate)
}

func TestScoreFavoursDenseNewAreas(t *testing.T) {
	denseNew := Score(model.AreaIntelligence{District: "EC1", DensityTier: model.DensityVeryHigh})
	ruralNew := Score(model.AreaIntelligence{District: "IV1", DensityTier: model.DensityRural})
	denseMature := Score(model.AreaIntelligence{District: "EC2", DensityTier: model.DensityVeryHigh, BookingCount: 400, PenetrationRate: 0.06})

	assert.True(t, denseNew.IsNewArea)
	assert.Equal(t, 90.0, denseNew.Score)
	assert.Greater(t, denseNew.Score, ruralNew.Score)
	assert.Greater(t, denseNew.Score, denseMature.Score)
	assert.False(t, denseMature.IsNewArea)
	assert.Equal(t, 40.0, denseMature.Score)
}

func TestNewAreaThreshold(t *testing.T) {
	assert.True(t, Score(model.AreaIntelligence{BookingCount: 9}).IsNewArea)
	assert.False(t, Score(model.AreaIntelligence{BookingCount: 10}).IsNewArea)
}

func TestNetworkEffectCachesAndRecalculatesStale(t *testing.T) {
	s := store.NewMemoryStore()
	for i := 0; i < 3; i++ {
		s.PutBooking(booking(fmt.Sprint(i), fmt.Sprintf("c%d", i), "LS6 2AA", model.StatusCompleted, 90))
	}
	calc := NewCalculator(s, nil, 0)
	calc.SetClock(func() time.Time { return now })

	eff, err := calc.NetworkEffect(context.Background(), "ls6 2aa")
	require.NoError(t, err)
	assert.Equal(t, "LS6", eff.District)
	assert.Equal(t, 3, eff.Intelligence.BookingCount)
	assert.True(t, eff.IsNewArea)

	s.PutBooking(booking("x", "c9", "LS6 1ZZ", model.StatusCompleted, 90))
	eff, err = calc.NetworkEffect(context.Background(), "LS6 2AA")
	require.NoError(t, err)
	assert.Equal(t, 3, eff.Intelligence.BookingCount, "fresh entry reused")

	calc.SetClock(func() time.Time { return now.Add(DefaultMaxAge + time.Hour) })
	eff, err = calc.NetworkEffect(context.Background(), "LS6 2AA")
	require.NoError(t, err)
	assert.Equal(t, 4, eff.Intelligence.BookingCount, "stale entry recalculated")

	stored, err := s.GetAreaIntelligence(context.Background(), "LS6")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.BookingCount)
}

type readOnlyStore struct {
	*store.MemoryStore
}

func (readOnlyStore) UpsertAreaIntelligence(context.Context, model.AreaIntelligence) error {
	return errors.New("read-only replica")
}

func TestNetworkEffectScoresWhenUpsertFails(t *testing.T) {
	s := store.NewMemoryStore()
	for i := 0; i < 3; i++ {
		s.PutBooking(booking(fmt.Sprint(i), fmt.Sprintf("c%d", i), "LS6 2AA", model.StatusCompleted, 90))
	}
	calc := NewCalculator(readOnlyStore{s}, nil, 0)
	calc.SetClock(func() time.Time { return now })

	eff, err := calc.NetworkEffect(context.Background(), "LS6 2AA")
	require.NoError(t, err)
	assert.Equal(t, 3, eff.Intelligence.BookingCount)
	bookings, err := s.ListBookings(context.Background(), store.BookingFilter{District: "LS6"})
	require.NoError(t, err)
	assert.Equal(t, Score(Derive("LS6", bookings, now)).Score, eff.Score)
	assert.True(t, eff.IsNewArea)

	_, err = calc.Recalculate(context.Background(), "LS6")
	assert.ErrorContains(t, err, "read-only replica")
}
