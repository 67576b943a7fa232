package recalc

import (
	"context"

	"github.com/kilianp07/fieldalloc/core/events"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/internal/eventbus"
)

// OutcomeWatcher refreshes the customer's metrics and the booking's district
// whenever a booking completes or is cancelled.
type OutcomeWatcher struct {
	areas     AreaRecalculator
	customers CustomerRecalculator
	log       logger.Logger
}

// NewOutcomeWatcher builds a watcher.
func NewOutcomeWatcher(areas AreaRecalculator, customers CustomerRecalculator, log logger.Logger) *OutcomeWatcher {
	return &OutcomeWatcher{areas: areas, customers: customers, log: logger.OrNop(log)}
}

// Run consumes BookingOutcome events until ctx is canceled.
func (w *OutcomeWatcher) Run(ctx context.Context, bus eventbus.EventBus) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if o, ok := ev.(events.BookingOutcome); ok {
				w.Handle(ctx, o)
			}
		}
	}
}

// Handle recalculates for one outcome. Failures are logged; the cached
// values are refreshed again by the next scheduled batch.
func (w *OutcomeWatcher) Handle(ctx context.Context, o events.BookingOutcome) {
	if o.CustomerID != "" && w.customers != nil {
		if _, err := w.customers.Recalculate(ctx, o.CustomerID); err != nil {
			w.log.Warnf("recalc customer %s after %s: %v", o.CustomerID, o.Status, err)
		}
	}
	if o.Postcode != "" && w.areas != nil {
		district := geo.District(o.Postcode)
		if _, err := w.areas.Recalculate(ctx, district); err != nil {
			w.log.Warnf("recalc district %s after %s: %v", district, o.Status, err)
		}
	}
}
