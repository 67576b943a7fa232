// Package recalc refreshes cached area intelligence and customer metrics in
// batches, on a schedule and in reaction to booking outcomes.
package recalc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/fieldalloc/core/events"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/internal/eventbus"
)

const (
	KindArea     = "area"
	KindCustomer = "customer"
)

// Lister enumerates the entities to recalculate.
type Lister interface {
	ListDistricts(ctx context.Context) ([]string, error)
	ListCustomerIDs(ctx context.Context) ([]string, error)
}

// AreaRecalculator recomputes one district.
type AreaRecalculator interface {
	Recalculate(ctx context.Context, district string) (model.AreaIntelligence, error)
}

// CustomerRecalculator recomputes one customer.
type CustomerRecalculator interface {
	Recalculate(ctx context.Context, customerID string) (model.CustomerMetrics, error)
}

// Config controls batch recalculation.
type Config struct {
	// Workers bounds concurrent recalculations per batch.
	Workers int `json:"workers"`
	// AreaSchedule and CustomerSchedule are cron expressions. Empty disables
	// the schedule.
	AreaSchedule     string `json:"area_schedule"`
	CustomerSchedule string `json:"customer_schedule"`
	// Timeout bounds one scheduled batch.
	Timeout time.Duration `json:"timeout"`
	// OnOutcome recalculates the customer and district of a booking when
	// it completes or is cancelled.
	OnOutcome bool `json:"on_outcome"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
}

// Result summarises one batch.
type Result struct {
	Kind      string
	Processed int
	Failed    int
	Duration  time.Duration
}

// Runner recalculates every district or customer with a bounded pool.
type Runner struct {
	lister    Lister
	areas     AreaRecalculator
	customers CustomerRecalculator
	bus       eventbus.EventBus
	log       logger.Logger
	workers   int
	now       func() time.Time
}

// NewRunner builds a runner. bus may be nil.
func NewRunner(lister Lister, areas AreaRecalculator, customers CustomerRecalculator, bus eventbus.EventBus, log logger.Logger, cfg Config) *Runner {
	cfg.SetDefaults()
	return &Runner{
		lister:    lister,
		areas:     areas,
		customers: customers,
		bus:       bus,
		log:       logger.OrNop(log),
		workers:   cfg.Workers,
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// RunAreas recalculates every district with bookings.
func (r *Runner) RunAreas(ctx context.Context) (Result, error) {
	ids, err := r.lister.ListDistricts(ctx)
	if err != nil {
		return Result{Kind: KindArea}, fmt.Errorf("recalc: list districts: %w", err)
	}
	return r.run(ctx, KindArea, ids, func(ctx context.Context, id string) error {
		_, err := r.areas.Recalculate(ctx, id)
		return err
	})
}

// RunCustomers recalculates every customer with bookings.
func (r *Runner) RunCustomers(ctx context.Context) (Result, error) {
	ids, err := r.lister.ListCustomerIDs(ctx)
	if err != nil {
		return Result{Kind: KindCustomer}, fmt.Errorf("recalc: list customers: %w", err)
	}
	return r.run(ctx, KindCustomer, ids, func(ctx context.Context, id string) error {
		_, err := r.customers.Recalculate(ctx, id)
		return err
	})
}

// RunAll runs both batches and joins their errors.
func (r *Runner) RunAll(ctx context.Context) error {
	_, aerr := r.RunAreas(ctx)
	_, cerr := r.RunCustomers(ctx)
	return errors.Join(aerr, cerr)
}

// run processes ids until done or ctx is canceled. Entities not started
// before cancellation are neither processed nor failed.
func (r *Runner) run(ctx context.Context, kind string, ids []string, fn func(context.Context, string) error) (Result, error) {
	start := r.now()
	res := Result{Kind: kind}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := fn(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			res.Processed++
			if err != nil {
				res.Failed++
				errs = append(errs, fmt.Errorf("%s %s: %w", kind, id, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	res.Duration = r.now().Sub(start)

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	r.log.Infof("recalc %s: processed=%d failed=%d in %s", kind, res.Processed, res.Failed, res.Duration)
	if r.bus != nil {
		r.bus.Publish(events.RecalcEvent{
			Kind:      kind,
			Processed: res.Processed,
			Failed:    res.Failed,
			Duration:  res.Duration,
			Time:      r.now(),
		})
	}
	return res, errors.Join(errs...)
}
