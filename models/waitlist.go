package models

import (
	"time"
)

const (
	WaitlistStatusWaiting  = "waiting"
	WaitlistStatusNotified = "notified"
	WaitlistStatusExpired  = "expired"
	WaitlistStatusBooked   = "booked"
)

// WaitlistEntry is a user's place in the per-service queue for a spot.
// Positions among waiting entries are 1-based and contiguous.
type WaitlistEntry struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user" json:"user_id"`
	ServiceID  string     `db:"service" json:"service_id"`
	Email      string     `db:"email" json:"email,omitempty"`
	Phone      string     `db:"phone" json:"phone,omitempty"`
	Position   int        `db:"position" json:"position"`
	Status     string     `db:"status" json:"status"`
	NotifiedAt *time.Time `db:"notified_at" json:"notified_at,omitempty"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt  time.Time  `db:"created" json:"created_at"`
}
