package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/model"
)

func TestMemoryStoreAssignIsCompareAndSet(t *testing.T) {
	s := NewMemoryStore()
	s.PutBooking(model.Booking{ID: "b1", Status: model.StatusPending})
	date := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	conflicts := 0
	for _, eng := range []string{"e1", "e2", "e3", "e4"} {
		wg.Add(1)
		go func(eng string) {
			defer wg.Done()
			_, err := s.AssignEngineer(context.Background(), AssignParams{
				BookingID:       "b1",
				EngineerID:      eng,
				ExpectedStatus:  model.StatusPending,
				NewStatus:       model.StatusConfirmed,
				Date:            date,
				Slot:            model.Morning,
				StartTime:       model.Morning.Start(date),
				DurationMinutes: 90,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if errors.Is(err, apperr.ErrConcurrencyConflict) {
				conflicts++
			}
		}(eng)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
	assert.Equal(t, 3, conflicts)

	b, err := s.GetBooking(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, 90, b.DurationMinutes)
	assert.Equal(t, b.StartTime.Add(90*time.Minute), b.End())
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetBooking(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetService(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryStoreListBookingsFilter(t *testing.T) {
	s := NewMemoryStore()
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	s.PutBooking(model.Booking{ID: "a", EngineerID: "e1", Status: model.StatusConfirmed, ScheduledDate: day, StartTime: day.Add(13 * time.Hour), Postcode: "M1 4BT"})
	s.PutBooking(model.Booking{ID: "b", EngineerID: "e1", Status: model.StatusConfirmed, ScheduledDate: day, StartTime: day.Add(9 * time.Hour), Postcode: "M2 3AW"})
	s.PutBooking(model.Booking{ID: "c", EngineerID: "e1", Status: model.StatusCancelled, ScheduledDate: day, Postcode: "M1 1AA"})
	s.PutBooking(model.Booking{ID: "d", EngineerID: "e2", Status: model.StatusConfirmed, ScheduledDate: day.AddDate(0, 0, 1), Postcode: "M1 1AA"})

	got, err := s.ListBookings(context.Background(), BookingFilter{EngineerID: "e1", From: day, To: day, Statuses: ScheduledStatuses})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	got, err = s.ListBookings(context.Background(), BookingFilter{District: "M1"})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	districts, err := s.ListDistricts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"M1", "M2"}, districts)
}

func TestMemoryStoreRulesSortedByPriority(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SavePricingRule(ctx, model.PricingRule{ID: "z", Priority: 1, Config: model.FlexConfig{}}))
	require.NoError(t, s.SavePricingRule(ctx, model.PricingRule{ID: "a", Priority: 5, Config: model.FlexConfig{}}))
	require.NoError(t, s.SavePricingRule(ctx, model.PricingRule{ID: "b", Priority: 1, Config: model.FlexConfig{}}))
	rules, err := s.ListPricingRules(ctx)
	require.NoError(t, err)
	ids := []string{rules[0].ID, rules[1].ID, rules[2].ID}
	assert.Equal(t, []string{"b", "z", "a"}, ids)
}

func TestUpdateBookingStatusRequiresExpected(t *testing.T) {
	s := NewMemoryStore()
	s.PutBooking(model.Booking{ID: "b1", Status: model.StatusConfirmed})
	_, err := s.UpdateBookingStatus(context.Background(), "b1", model.StatusPending, model.StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrConcurrencyConflict)
	b, err := s.UpdateBookingStatus(context.Background(), "b1", model.StatusConfirmed, model.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, b.Status)
}
