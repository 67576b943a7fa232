package events

import (
	"time"

	"github.com/kilianp07/fieldalloc/core/model"
)

// BookingOutcome is published when a booking reaches completed or cancelled.
type BookingOutcome struct {
	BookingID  string
	CustomerID string
	EngineerID string
	Postcode   string
	Status     model.BookingStatus
	Time       time.Time
}
