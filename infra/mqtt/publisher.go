package mqtt

import (
	"context"
	"time"

	"github.com/kilianp07/fieldalloc/core/events"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/internal/eventbus"
)

// NoticeSender is the part of PahoClient used by the decision publisher.
type NoticeSender interface {
	SendNotice(n Notice) (string, error)
	PublishJSON(topic string, v any) error
	OutcomeTopic(bookingID string) string
}

// DecisionPublisher forwards applied allocations, overrides and booking
// outcomes from the event bus to MQTT. Previews and shadow decisions are
// never sent to engineers.
type DecisionPublisher struct {
	sender NoticeSender
	log    logger.Logger
}

// NewDecisionPublisher wraps sender.
func NewDecisionPublisher(sender NoticeSender, log logger.Logger) *DecisionPublisher {
	return &DecisionPublisher{sender: sender, log: logger.OrNop(log)}
}

// Run consumes bus events until ctx is canceled.
func (d *DecisionPublisher) Run(ctx context.Context, bus eventbus.EventBus) {
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
			if err := d.Handle(ev); err != nil {
				d.log.Errorf("mqtt: forward %T: %v", ev, err)
			}
		}
	}
}

// Handle publishes a single event. Unrelated events are ignored.
func (d *DecisionPublisher) Handle(ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.AllocationEvent:
		if !e.Applied || e.EngineerID == "" {
			return nil
		}
		_, err := d.sender.SendNotice(Notice{
			Kind:       "assigned",
			BookingID:  e.BookingID,
			EngineerID: e.EngineerID,
			Date:       e.Date.Format(time.DateOnly),
			HalfDay:    string(e.HalfDay),
			Composite:  e.Composite,
			Timestamp:  e.Time.UnixMilli(),
		})
		return err
	case events.OverrideEvent:
		if _, err := d.sender.SendNotice(Notice{
			Kind:       "assigned",
			BookingID:  e.BookingID,
			EngineerID: e.EngineerID,
			Reason:     e.Reason,
			Timestamp:  e.Time.UnixMilli(),
		}); err != nil {
			return err
		}
		if e.PreviousEngineerID == "" || e.PreviousEngineerID == e.EngineerID {
			return nil
		}
		_, err := d.sender.SendNotice(Notice{
			Kind:       "withdrawn",
			BookingID:  e.BookingID,
			EngineerID: e.PreviousEngineerID,
			Reason:     e.Reason,
			Timestamp:  e.Time.UnixMilli(),
		})
		return err
	case events.BookingOutcome:
		return d.sender.PublishJSON(d.sender.OutcomeTopic(e.BookingID), struct {
			BookingID  string `json:"booking_id"`
			EngineerID string `json:"engineer_id,omitempty"`
			Status     string `json:"status"`
			Timestamp  int64  `json:"timestamp"`
		}{e.BookingID, e.EngineerID, string(e.Status), e.Time.UnixMilli()})
	}
	return nil
}
