package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fieldalloc/core/events"
	coremetrics "github.com/kilianp07/fieldalloc/core/metrics"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/internal/eventbus"
)

type captureSink struct {
	mu        sync.Mutex
	decisions []coremetrics.AllocationDecision
	shadows   []coremetrics.ShadowComparison
	overrides []coremetrics.OverrideRecord
	outcomes  []coremetrics.OutcomeRecord
	quotes    []coremetrics.QuoteRecord
	recalcs   []coremetrics.RecalcRecord
}

func (c *captureSink) RecordAllocation(ev coremetrics.AllocationDecision) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, ev)
	return nil
}

func (c *captureSink) RecordShadowComparison(ev coremetrics.ShadowComparison) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shadows = append(c.shadows, ev)
	return nil
}

func (c *captureSink) RecordOverride(ev coremetrics.OverrideRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides = append(c.overrides, ev)
	return nil
}

func (c *captureSink) RecordOutcome(ev coremetrics.OutcomeRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, ev)
	return nil
}

func (c *captureSink) RecordQuote(ev coremetrics.QuoteRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes = append(c.quotes, ev)
	return nil
}

func (c *captureSink) RecordRecalc(ev coremetrics.RecalcRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recalcs = append(c.recalcs, ev)
	return nil
}

func (c *captureSink) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.decisions) + len(c.shadows) + len(c.overrides) + len(c.outcomes) + len(c.quotes) + len(c.recalcs)
}

func TestStartEventCollector_MapsEvents(t *testing.T) {
	bus := eventbus.New()
	sink := &captureSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, sink, nil)

	now := time.Now()
	// The collector subscribes synchronously, so events published now are seen.
	bus.Publish(events.AllocationEvent{BookingID: "b1", EngineerID: "e1", Applied: true, Scores: model.SlotScore{Customer: 30, Engineer: 20, Platform: 25}, Composite: 75, Time: now})
	bus.Publish(events.AllocationEvent{BookingID: "b2", Time: now})
	bus.Publish(events.AllocationEvent{BookingID: "b3", EngineerID: "e2", Shadow: true, Time: now})
	bus.Publish(events.ShadowComparisonEvent{BookingID: "b3", EngineerID: "e2", LegacyEngineerID: "e1", Err: errors.New("timeout")})
	bus.Publish(events.OverrideEvent{BookingID: "b1", PreviousEngineerID: "e1", EngineerID: "e4", Reason: "customer asked"})
	bus.Publish(events.BookingOutcome{BookingID: "b1", EngineerID: "e4", Postcode: "m41aa", Status: model.StatusCompleted})
	bus.Publish(events.QuoteEvent{ServiceID: "pat", BasePrice: 100, FinalPrice: 95, Adjustments: 1})
	bus.Publish(events.RecalcEvent{Kind: "customer", Processed: 3})

	require.Eventually(t, func() bool { return sink.total() == 8 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.decisions, 3)
	assert.Equal(t, "applied", sink.decisions[0].Outcome)
	assert.Equal(t, 20.0, sink.decisions[0].EngineerScore)
	assert.Equal(t, "no_candidate", sink.decisions[1].Outcome)
	assert.Equal(t, "shadow", sink.decisions[2].Outcome)
	assert.Equal(t, "timeout", sink.shadows[0].Error)
	assert.Equal(t, "e1", sink.overrides[0].PreviousEngineerID)
	assert.Equal(t, "M4", sink.outcomes[0].District)
	assert.Equal(t, "completed", sink.outcomes[0].Status)
	assert.Equal(t, 95.0, sink.quotes[0].FinalPrice)
	assert.Equal(t, "customer", sink.recalcs[0].Kind)
}

func TestStartEventCollector_NilBus(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, coremetrics.NopSink{}, nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector without bus should finish immediately")
	}
}
