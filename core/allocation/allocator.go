// Package allocation selects the best engineer and slot for a booking:
// discover candidates, filter viable ones, score them on a bounded worker
// pool, select, and optionally persist the decision.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/audit"
	"github.com/kilianp07/fieldalloc/core/events"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/monitoring"
	"github.com/kilianp07/fieldalloc/core/scoring"
	"github.com/kilianp07/fieldalloc/core/store"
	"github.com/kilianp07/fieldalloc/internal/eventbus"
)

// NoCandidateMessage is reported when every engineer was filtered out.
const NoCandidateMessage = "No qualified engineers available"

// Quoter prices a slot without recording a customer quote. The pricing
// engine implements it.
type Quoter interface {
	Quote(ctx context.Context, pc model.PricingContext) (model.PricingResult, error)
}

// Options control one allocation call. Without Apply or Shadow the call
// has no side effects.
type Options struct {
	Weights       *model.Weights
	Shadow        bool
	Apply         bool
	PreferredDate time.Time
}

// Allocator runs allocations against a repository.
type Allocator struct {
	repo   store.Repository
	scorer *scoring.Scorer
	legacy LegacyAllocator
	bus    eventbus.EventBus
	audit  audit.Store
	quoter Quoter
	log    logger.Logger
	cfg    Config
	now    func() time.Time
	newID  func() string
}

// NewAllocator wires an allocator. legacy and bus may be nil.
func NewAllocator(repo store.Repository, scorer *scoring.Scorer, legacy LegacyAllocator, bus eventbus.EventBus, log logger.Logger, cfg Config) *Allocator {
	cfg.SetDefaults()
	return &Allocator{
		repo:   repo,
		scorer: scorer,
		legacy: legacy,
		bus:    bus,
		audit:  audit.NopStore{},
		log:    logger.OrNop(log),
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// SetAuditStore configures the store receiving decision records.
func (a *Allocator) SetAuditStore(s audit.Store) {
	if s != nil {
		a.audit = s
	}
}

// SetQuoter makes slot prices come from the pricing engine instead of the
// service list price.
func (a *Allocator) SetQuoter(q Quoter) { a.quoter = q }

// SetClock overrides the time source.
func (a *Allocator) SetClock(now func() time.Time) { a.now = now }

// AutoAllocate finds the best engineer and assigns the booking.
func (a *Allocator) AutoAllocate(ctx context.Context, bookingID string, opts Options) (model.AllocationResult, error) {
	opts.Apply = true
	opts.Shadow = false
	return a.FindBestEngineer(ctx, bookingID, opts)
}

// FindBestEngineer ranks every candidate for the booking. A result without
// a viable candidate is not an error: Success is false and Error explains.
func (a *Allocator) FindBestEngineer(ctx context.Context, bookingID string, opts Options) (model.AllocationResult, error) {
	const op = "allocation.FindBestEngineer"
	started := time.Now()
	defer func() { decisionLatency.Observe(time.Since(started).Seconds()) }()

	w := a.cfg.weights()
	if opts.Weights != nil {
		w = *opts.Weights
	}
	if err := w.Validate(); err != nil {
		return model.AllocationResult{}, apperr.Wrap(apperr.ValidationFailure, op, err)
	}
	if opts.Apply && opts.Shadow {
		return model.AllocationResult{}, apperr.Invalidf(op, "apply and shadow are mutually exclusive")
	}

	b, err := a.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return model.AllocationResult{}, fmt.Errorf("allocation: booking: %w", err)
	}
	if opts.Apply && b.Status != model.StatusPending {
		return model.AllocationResult{}, apperr.Conflictf(op, "booking %s is already %s", b.ID, b.Status)
	}
	job, err := a.scorer.Prepare(ctx, b.Request)
	if err != nil {
		return model.AllocationResult{}, fmt.Errorf("allocation: prepare: %w", err)
	}

	dates := a.dates(b.Request, opts.PreferredDate)
	cands, err := a.candidates(ctx, job, b.ID, dates, halfDays(b.Request))
	if err != nil {
		return model.AllocationResult{}, err
	}
	if err := a.score(ctx, job, b, cands, w); err != nil {
		return model.AllocationResult{}, fmt.Errorf("allocation: score: %w", err)
	}
	rank(cands)
	candidatesSeen.Observe(float64(len(cands)))

	res := model.AllocationResult{BookingID: b.ID, Candidates: cands, Shadow: opts.Shadow}
	viable := countViable(cands)
	if viable == 0 {
		res.Error = NoCandidateMessage
		decisionsTotal.WithLabelValues("no_candidate").Inc()
		a.log.Infof("allocation: booking %s: no viable candidate among %d", b.ID, len(cands))
		if opts.Apply || opts.Shadow {
			a.appendAudit(ctx, a.decisionRecord(audit.KindNoCandidate, b, res, w, viable))
		}
		a.publish(events.AllocationEvent{
			BookingID: b.ID, CandidateCount: len(cands), Shadow: opts.Shadow,
			Duration: time.Since(started), Time: a.now(),
		})
		return res, nil
	}

	sel := cands[0]
	res.Success = true
	res.Selected = &sel
	if opts.Shadow {
		res.LegacyComparison = a.compare(ctx, b.ID, sel)
	}
	if opts.Apply {
		if _, err := a.assign(ctx, b, sel); err != nil {
			res.Success = false
			res.Error = err.Error()
			return res, err
		}
		res.Applied = true
	}

	outcome := "preview"
	switch {
	case opts.Apply:
		outcome = "applied"
	case opts.Shadow:
		outcome = "shadow"
	}
	if opts.Apply || opts.Shadow {
		a.persist(ctx, b, res, w, viable)
	}
	decisionsTotal.WithLabelValues(outcome).Inc()
	a.log.Infof("allocation: booking %s -> %s on %s %s (%.2f, %s)", b.ID, sel.Engineer.ID,
		sel.Slot.Date.Format(time.DateOnly), sel.Slot.HalfDay, sel.Score.Composite, outcome)
	a.publish(events.AllocationEvent{
		BookingID:      b.ID,
		EngineerID:     sel.Engineer.ID,
		Date:           sel.Slot.Date,
		HalfDay:        sel.Slot.HalfDay,
		Composite:      sel.Score.Composite,
		Scores:         sel.Score,
		CandidateCount: len(cands),
		ViableCount:    viable,
		Shadow:         opts.Shadow,
		Applied:        res.Applied,
		Duration:       time.Since(started),
		Time:           a.now(),
	})
	return res, nil
}

// dates lists the candidate days of a request. Past dates move to today; a
// week-flexible request spans FlexibleDays working days.
func (a *Allocator) dates(req model.JobRequest, preferred time.Time) []time.Time {
	today := model.Day(a.now())
	start := preferred
	if start.IsZero() {
		start = req.PreferredDate
	}
	switch {
	case start.IsZero():
		start = today.AddDate(0, 0, 1)
	case model.Day(start).Before(today):
		start = today
	}
	start = model.Day(start)
	if req.Flexibility == model.FlexFlexibleWeek {
		return workingDays(start, a.cfg.FlexibleDays)
	}
	return []time.Time{start}
}

func workingDays(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := from; len(out) < n; d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}

// halfDays restricts exact requests to their preferred half-days.
func halfDays(req model.JobRequest) []model.HalfDay {
	if req.Flexibility != model.FlexExact || len(req.PreferredSlots) == 0 {
		return model.HalfDays
	}
	var out []model.HalfDay
	for _, h := range model.HalfDays {
		if req.Prefers(h) {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return model.HalfDays
	}
	return out
}

// candidates pairs every discovered engineer with every candidate half-day
// and applies the viability gate.
func (a *Allocator) candidates(ctx context.Context, job *scoring.Job, bookingID string, dates []time.Time, halves []model.HalfDay) ([]model.AllocationCandidate, error) {
	engineers, err := a.repo.ListEngineers(ctx, store.EngineerFilter{ApprovedOnly: true, ServiceID: job.Request.ServiceID})
	if err != nil {
		return nil, fmt.Errorf("allocation: engineers: %w", err)
	}
	if len(dates) == 0 {
		return nil, nil
	}
	load, err := a.dayLoad(ctx, dates[0], dates[len(dates)-1], bookingID)
	if err != nil {
		return nil, err
	}
	cands := make([]model.AllocationCandidate, 0, len(engineers)*len(dates)*len(halves))
	for _, eng := range engineers {
		for _, d := range dates {
			for _, h := range halves {
				ok, reasons := Check(eng, job.Service, d, h, load[loadKey(eng.ID, d)], a.cfg.DailyCap)
				cands = append(cands, model.AllocationCandidate{
					Engineer: eng,
					Slot:     model.Slot{EngineerID: eng.ID, Date: d, HalfDay: h},
					Viable:   ok,
					Reasons:  reasons,
				})
			}
		}
	}
	return cands, nil
}

// dayLoad counts scheduled jobs per engineer and day, excluding skipID.
func (a *Allocator) dayLoad(ctx context.Context, from, to time.Time, skipID string) (map[string]int, error) {
	bookings, err := a.repo.ListBookings(ctx, store.BookingFilter{From: from, To: to, Statuses: store.ScheduledStatuses})
	if err != nil {
		return nil, fmt.Errorf("allocation: day load: %w", err)
	}
	load := make(map[string]int)
	for _, b := range bookings {
		if b.EngineerID == "" || b.ID == skipID {
			continue
		}
		load[loadKey(b.EngineerID, b.ScheduledDate)]++
	}
	return load, nil
}

func loadKey(engineerID string, d time.Time) string {
	return engineerID + "|" + d.Format(time.DateOnly)
}

// score fills in slot details and scores on a bounded pool. Each worker
// writes only its own index.
func (a *Allocator) score(ctx context.Context, job *scoring.Job, b model.Booking, cands []model.AllocationCandidate, w model.Weights) error {
	if len(cands) == 0 {
		return nil
	}
	errs := make([]error, len(cands))
	idx := make(chan int)
	var wg sync.WaitGroup
	for n := min(a.cfg.Workers, len(cands)); n > 0; n-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				errs[i] = a.scoreOne(ctx, job, b, &cands[i], w)
			}
		}()
	}
	for i := range cands {
		if ctx.Err() != nil {
			break
		}
		idx <- i
	}
	close(idx)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (a *Allocator) scoreOne(ctx context.Context, job *scoring.Job, b model.Booking, c *model.AllocationCandidate, w model.Weights) error {
	if n, err := job.NearbyJobs(ctx, c.Engineer, c.Slot.Date, a.cfg.ClusterRadiusKm); err == nil {
		c.Slot.NearbyJobs = n
		c.Slot.ClusterOpportunity = n > 0
	}
	c.Slot.Price = a.price(ctx, job, b, c.Slot)
	c.Slot.DurationMinutes = job.Duration(c.Slot)
	s, err := job.Score(ctx, c.Slot, c.Engineer, w)
	if err != nil {
		return err
	}
	c.Score = s
	c.Slot.Score = s.Composite
	return nil
}

// price uses the booked price, then a quote, then the list price.
func (a *Allocator) price(ctx context.Context, job *scoring.Job, b model.Booking, slot model.Slot) float64 {
	if b.Price > 0 {
		return b.Price
	}
	if a.quoter == nil {
		return job.Price(slot)
	}
	q, err := a.quoter.Quote(ctx, model.PricingContext{
		SiteID:      job.Request.SiteID,
		ServiceID:   job.Request.ServiceID,
		CustomerID:  job.Request.CustomerID,
		EngineerID:  slot.EngineerID,
		Date:        slot.Date,
		HalfDay:     slot.HalfDay,
		Quantity:    job.Request.Units(),
		Flexibility: job.Request.Flexibility,
	})
	if err != nil {
		a.log.Warnf("allocation: quote for %s on %s: %v", slot.EngineerID, slot.Date.Format(time.DateOnly), err)
		return job.Price(slot)
	}
	return q.FinalPrice
}

// rank orders viable candidates first, then by composite score. Ties go to
// the lowest engineer id, then the earliest slot.
func rank(c []model.AllocationCandidate) {
	sort.SliceStable(c, func(i, j int) bool { return less(c[i], c[j]) })
}

func less(x, y model.AllocationCandidate) bool {
	if x.Viable != y.Viable {
		return x.Viable
	}
	if x.Score.Composite != y.Score.Composite {
		return x.Score.Composite > y.Score.Composite
	}
	if x.Engineer.ID != y.Engineer.ID {
		return x.Engineer.ID < y.Engineer.ID
	}
	if !x.Slot.Date.Equal(y.Slot.Date) {
		return x.Slot.Date.Before(y.Slot.Date)
	}
	return x.Slot.HalfDay == model.Morning && y.Slot.HalfDay != model.Morning
}

func countViable(c []model.AllocationCandidate) int {
	n := 0
	for _, x := range c {
		if x.Viable {
			n++
		}
	}
	return n
}

// assign writes the selection with compare-and-set on the booking as read.
func (a *Allocator) assign(ctx context.Context, b model.Booking, sel model.AllocationCandidate) (model.Booking, error) {
	updated, err := a.repo.AssignEngineer(ctx, store.AssignParams{
		BookingID:          b.ID,
		EngineerID:         sel.Engineer.ID,
		ExpectedStatus:     b.Status,
		ExpectedEngineerID: b.EngineerID,
		ExpectedVersion:    b.Version,
		NewStatus:          model.StatusConfirmed,
		Date:               sel.Slot.Date,
		Slot:               sel.Slot.HalfDay,
		StartTime:          sel.Slot.Start(),
		DurationMinutes:    sel.Slot.DurationMinutes,
		Price:              sel.Slot.Price,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConcurrencyConflict) {
			conflictsTotal.Inc()
			a.log.Warnf("allocation: booking %s changed during allocation", b.ID)
		}
		return model.Booking{}, err
	}
	return updated, nil
}

// compare asks the legacy allocator for its choice. Failures are recorded
// on the comparison and never abort the shadow run.
func (a *Allocator) compare(ctx context.Context, bookingID string, sel model.AllocationCandidate) *model.LegacyComparison {
	cmp := &model.LegacyComparison{}
	var (
		id    string
		score float64
		err   error
	)
	if a.legacy == nil {
		err = ErrNoLegacy
	} else {
		id, score, err = a.legacy.FindBestEngineer(ctx, bookingID)
	}
	ev := events.ShadowComparisonEvent{BookingID: bookingID, EngineerID: sel.Engineer.ID, Time: a.now()}
	if err != nil {
		err = apperr.Wrap(apperr.ExternalLookupFailure, "allocation.legacy", err)
		a.log.Warnf("allocation: legacy comparison for %s: %v", bookingID, err)
		monitoring.Degraded("allocation", "legacy", err)
		cmp.Error = err.Error()
		shadowChanges.WithLabelValues("error").Inc()
		ev.Err = err
		a.publish(ev)
		return cmp
	}
	cmp.EngineerID = id
	cmp.Score = score
	cmp.DecisionChanged = id != sel.Engineer.ID
	if score > 0 {
		cmp.ImprovementPercent = model.Round2((sel.Score.Composite - score) / score * 100)
	}
	label := "same"
	if cmp.DecisionChanged {
		label = "changed"
	}
	shadowChanges.WithLabelValues(label).Inc()
	ev.LegacyEngineerID = id
	ev.DecisionChanged = cmp.DecisionChanged
	ev.ImprovementPercent = cmp.ImprovementPercent
	a.publish(ev)
	return cmp
}

func (a *Allocator) publish(ev eventbus.Event) {
	if a.bus != nil {
		a.bus.Publish(ev)
	}
}
