package metrics

import (
	"context"

	"github.com/kilianp07/fieldalloc/core/events"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/logger"
	coremetrics "github.com/kilianp07/fieldalloc/core/metrics"
	"github.com/kilianp07/fieldalloc/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// events. It stops when the context is canceled. The returned channel is
// closed once the collector has unsubscribed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log = logger.OrNop(log)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("metrics: record %T: %v", ev, err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.AllocationEvent:
		outcome := "preview"
		switch {
		case e.EngineerID == "":
			outcome = "no_candidate"
		case e.Applied:
			outcome = "applied"
		case e.Shadow:
			outcome = "shadow"
		}
		return sink.RecordAllocation(coremetrics.AllocationDecision{
			BookingID:      e.BookingID,
			EngineerID:     e.EngineerID,
			Outcome:        outcome,
			Composite:      e.Composite,
			CustomerScore:  e.Scores.Customer,
			EngineerScore:  e.Scores.Engineer,
			PlatformScore:  e.Scores.Platform,
			CandidateCount: e.CandidateCount,
			ViableCount:    e.ViableCount,
			Latency:        e.Duration,
			Time:           e.Time,
		})
	case events.ShadowComparisonEvent:
		if r, ok := sink.(coremetrics.ShadowRecorder); ok {
			errStr := ""
			if e.Err != nil {
				errStr = e.Err.Error()
			}
			return r.RecordShadowComparison(coremetrics.ShadowComparison{
				BookingID:          e.BookingID,
				EngineerID:         e.EngineerID,
				LegacyEngineerID:   e.LegacyEngineerID,
				DecisionChanged:    e.DecisionChanged,
				ImprovementPercent: e.ImprovementPercent,
				Error:              errStr,
				Time:               e.Time,
			})
		}
	case events.OverrideEvent:
		if r, ok := sink.(coremetrics.OverrideRecorder); ok {
			return r.RecordOverride(coremetrics.OverrideRecord{
				BookingID:          e.BookingID,
				PreviousEngineerID: e.PreviousEngineerID,
				EngineerID:         e.EngineerID,
				Reason:             e.Reason,
				Time:               e.Time,
			})
		}
	case events.BookingOutcome:
		if r, ok := sink.(coremetrics.OutcomeRecorder); ok {
			district := ""
			if e.Postcode != "" {
				district = geo.District(e.Postcode)
			}
			return r.RecordOutcome(coremetrics.OutcomeRecord{
				BookingID:  e.BookingID,
				EngineerID: e.EngineerID,
				District:   district,
				Status:     string(e.Status),
				Time:       e.Time,
			})
		}
	case events.QuoteEvent:
		if r, ok := sink.(coremetrics.QuoteRecorder); ok {
			return r.RecordQuote(coremetrics.QuoteRecord{
				ServiceID:     e.ServiceID,
				BasePrice:     e.BasePrice,
				FinalPrice:    e.FinalPrice,
				TotalDiscount: e.TotalDiscount,
				TotalPremium:  e.TotalPremium,
				Adjustments:   e.Adjustments,
				Time:          e.Time,
			})
		}
	case events.RecalcEvent:
		if r, ok := sink.(coremetrics.RecalcRecorder); ok {
			return r.RecordRecalc(coremetrics.RecalcRecord{
				Kind:      e.Kind,
				Processed: e.Processed,
				Failed:    e.Failed,
				Duration:  e.Duration,
				Time:      e.Time,
			})
		}
	}
	return nil
}
