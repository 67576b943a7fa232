package allocation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/audit"
	"github.com/kilianp07/fieldalloc/core/events"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/monitoring"
	"github.com/kilianp07/fieldalloc/core/store"
)

const (
	defaultMaxSlots = 10
	maxSlotWindow   = 31
)

// OverrideAllocation assigns the booking to engineerID by hand. The reason
// is mandatory and lands in the allocation log. Viability problems do not
// block an override; they are recorded as warnings.
func (a *Allocator) OverrideAllocation(ctx context.Context, bookingID, engineerID, reason string) (model.Booking, error) {
	const op = "allocation.OverrideAllocation"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Booking{}, apperr.Invalidf(op, "an override reason is required")
	}
	b, err := a.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("allocation: booking: %w", err)
	}
	if b.Status != model.StatusPending && b.Status != model.StatusConfirmed {
		return model.Booking{}, apperr.Invalidf(op, "booking %s is %s and cannot be reassigned", b.ID, b.Status)
	}
	if b.EngineerID == engineerID {
		return model.Booking{}, apperr.Invalidf(op, "booking %s is already assigned to %s", b.ID, engineerID)
	}
	eng, err := a.repo.GetEngineer(ctx, engineerID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("allocation: engineer: %w", err)
	}
	if !eng.Approved {
		return model.Booking{}, apperr.Invalidf(op, "engineer %s is not approved", eng.ID)
	}

	date, slot := b.ScheduledDate, b.ScheduledSlot
	if date.IsZero() {
		date = a.dates(b.Request, time.Time{})[0]
	}
	if !slot.Valid() {
		slot = halfDays(b.Request)[0]
	}
	var warnings []string
	duration := b.DurationMinutes
	if svc, err := a.repo.GetService(ctx, b.Request.ServiceID); err == nil {
		load, err := a.dayLoad(ctx, date, date, b.ID)
		if err != nil {
			return model.Booking{}, err
		}
		_, warnings = Check(eng, svc, date, slot, load[loadKey(eng.ID, date)], a.cfg.DailyCap)
		duration = svc.DurationMinutes(b.Request.Units())
	}

	updated, err := a.repo.AssignEngineer(ctx, store.AssignParams{
		BookingID:          b.ID,
		EngineerID:         eng.ID,
		ExpectedStatus:     b.Status,
		ExpectedEngineerID: b.EngineerID,
		ExpectedVersion:    b.Version,
		NewStatus:          model.StatusConfirmed,
		Date:               date,
		Slot:               slot,
		StartTime:          slot.Start(date),
		DurationMinutes:    duration,
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.ConcurrencyConflict {
			conflictsTotal.Inc()
		}
		return model.Booking{}, err
	}

	now := a.now()
	entry := model.AllocationLog{
		ID:         a.newID(),
		BookingID:  b.ID,
		EngineerID: eng.ID,
		PreviousID: b.EngineerID,
		Override:   true,
		Reason:     reason,
		Metadata:   map[string]any{"warnings": warnings},
		CreatedAt:  now,
	}
	if err := a.repo.AppendAllocationLog(ctx, entry); err != nil {
		a.log.Errorf("allocation: append override log for %s: %v", b.ID, err)
		monitoring.CaptureException(err, map[string]string{"component": "allocation", "op": "override_log"})
	}
	a.appendAudit(ctx, audit.DecisionRecord{
		ID:                 entry.ID,
		Timestamp:          now,
		Kind:               audit.KindOverride,
		BookingID:          b.ID,
		EngineerID:         eng.ID,
		PreviousEngineerID: b.EngineerID,
		Applied:            true,
		Reason:             reason,
	})
	overridesTotal.Inc()
	a.log.Infof("allocation: booking %s overridden %q -> %s: %s", b.ID, b.EngineerID, eng.ID, reason)
	a.publish(events.OverrideEvent{
		BookingID:          b.ID,
		PreviousEngineerID: b.EngineerID,
		EngineerID:         eng.ID,
		Reason:             reason,
		Time:               now,
	})
	return updated, nil
}

// GetViableSlots returns up to maxSlots viable slots for the request
// between from and to, best first. Weekends are skipped.
func (a *Allocator) GetViableSlots(ctx context.Context, req model.JobRequest, from, to time.Time, maxSlots int) ([]model.Slot, error) {
	const op = "allocation.GetViableSlots"
	from, to = model.Day(from), model.Day(to)
	if to.Before(from) {
		return nil, apperr.Invalidf(op, "range ends before it starts")
	}
	if model.DaysBetween(from, to) >= maxSlotWindow {
		return nil, apperr.Invalidf(op, "range exceeds %d days", maxSlotWindow)
	}
	if maxSlots <= 0 {
		maxSlots = defaultMaxSlots
	}
	if today := model.Day(a.now()); from.Before(today) {
		from = today
		if to.Before(from) {
			return []model.Slot{}, nil
		}
	}
	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
	}

	job, err := a.scorer.Prepare(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("allocation: prepare: %w", err)
	}
	all, err := a.candidates(ctx, job, "", dates, halfDays(req))
	if err != nil {
		return nil, err
	}
	cands := all[:0]
	for _, c := range all {
		if c.Viable {
			cands = append(cands, c)
		}
	}
	if err := a.score(ctx, job, model.Booking{Request: req}, cands, a.cfg.weights()); err != nil {
		return nil, fmt.Errorf("allocation: score: %w", err)
	}
	rank(cands)
	if len(cands) > maxSlots {
		cands = cands[:maxSlots]
	}
	slots := make([]model.Slot, len(cands))
	for i, c := range cands {
		slots[i] = c.Slot
	}
	return slots, nil
}

// RecordOutcome moves a booking to completed or cancelled and publishes
// the outcome for metric recalculation.
func (a *Allocator) RecordOutcome(ctx context.Context, bookingID string, status model.BookingStatus) (model.Booking, error) {
	const op = "allocation.RecordOutcome"
	if status != model.StatusCompleted && status != model.StatusCancelled {
		return model.Booking{}, apperr.Invalidf(op, "outcome must be completed or cancelled, got %q", status)
	}
	b, err := a.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("allocation: booking: %w", err)
	}
	if !canTransition(b.Status, status) {
		return model.Booking{}, apperr.Invalidf(op, "booking %s cannot move from %s to %s", b.ID, b.Status, status)
	}
	updated, err := a.repo.UpdateBookingStatus(ctx, b.ID, b.Status, status)
	if err != nil {
		return model.Booking{}, err
	}
	postcode := b.Postcode
	if postcode == "" {
		if site, err := a.repo.GetSite(ctx, b.Request.SiteID); err == nil {
			postcode = site.Postcode
		}
	}
	outcomesTotal.WithLabelValues(string(status)).Inc()
	a.publish(events.BookingOutcome{
		BookingID:  b.ID,
		CustomerID: b.Request.CustomerID,
		EngineerID: b.EngineerID,
		Postcode:   postcode,
		Status:     status,
		Time:       a.now(),
	})
	return updated, nil
}

func canTransition(from, to model.BookingStatus) bool {
	switch to {
	case model.StatusCompleted:
		return from == model.StatusConfirmed || from == model.StatusInProgress
	case model.StatusCancelled:
		return from == model.StatusPending || from == model.StatusConfirmed || from == model.StatusInProgress
	}
	return false
}
