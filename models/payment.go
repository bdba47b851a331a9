package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentConfirmation is the message the payment processor delivers when a
// charge settles, either over the realtime feed or the webhook. PaymentRef is
// the processor's reference and the idempotency key for the confirmed-booking
// path: the same confirmation delivered twice must not book twice.
type PaymentConfirmation struct {
	PaymentRef string          `json:"payment_ref"`
	UserID     string          `json:"user_id"`
	ServiceID  string          `json:"service_id"`
	SlotID     string          `json:"slot_id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"` // success, failed
	Notes      string          `json:"notes,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}
