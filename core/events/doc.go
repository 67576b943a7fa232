// Package events defines the allocation related events emitted on the event bus.
//
// Available event types:
//   - AllocationEvent: an allocation decision, applied or shadow
//   - ShadowComparisonEvent: a shadow decision compared with the legacy allocator
//   - OverrideEvent: a manual engineer override
//   - BookingOutcome: a booking completed or cancelled
//   - QuoteEvent: a price calculated by the pricing engine
//   - RecalcEvent: a finished area or customer metric recalculation
package events
