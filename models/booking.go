package models

import (
	"time"
)

const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusRefunded  = "refunded"
	BookingStatusCompleted = "completed"
)

// Booking is a user's reservation against a slot. Amount is copied from the
// service price at booking time so later price changes never touch it.
// Bookings are never deleted; cancellation is a status change.
type Booking struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user" json:"user_id"`
	ServiceID   string     `db:"service" json:"service_id"`
	SlotID      string     `db:"slot" json:"slot_id"`
	Amount      float64    `db:"amount" json:"amount"`
	Status      string     `db:"status" json:"status"`
	Notes       string     `db:"notes" json:"notes,omitempty"`
	PaymentRef  string     `db:"payment_ref" json:"payment_ref,omitempty"`
	Reference   string     `db:"reference" json:"reference"`
	CreatedAt   time.Time  `db:"created" json:"created_at"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// Active reports whether the booking still occupies a spot on its slot.
func (b *Booking) Active() bool {
	return b.Status != BookingStatusCancelled
}
