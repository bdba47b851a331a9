package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConfirmation_StringPayload(t *testing.T) {
	raw := `{
		"payment_ref": "pay-1",
		"user_id": "user-1",
		"service_id": "svc-1",
		"slot_id": "slot-1",
		"amount": 42.50,
		"status": "success",
		"timestamp": "2026-08-29T10:00:00Z"
	}`

	c, err := decodeConfirmation(raw)
	require.NoError(t, err)

	assert.Equal(t, "pay-1", c.PaymentRef)
	assert.Equal(t, "slot-1", c.SlotID)
	assert.Equal(t, "success", c.Status)
	assert.True(t, c.Amount.Equal(decimal.NewFromFloat(42.50)), "got %s", c.Amount)
	assert.Equal(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), c.Timestamp)
}

func TestDecodeConfirmation_MapPayload(t *testing.T) {
	raw := map[string]any{
		"payment_ref": "pay-2",
		"user_id":     "user-1",
		"service_id":  "svc-1",
		"slot_id":     "slot-1",
		"amount":      100,
		"status":      "failed",
	}

	c, err := decodeConfirmation(raw)
	require.NoError(t, err)

	assert.Equal(t, "pay-2", c.PaymentRef)
	assert.Equal(t, "failed", c.Status)
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(100)), "got %s", c.Amount)
}

func TestDecodeConfirmation_MissingAmount(t *testing.T) {
	c, err := decodeConfirmation(`{"payment_ref": "pay-3", "status": "success"}`)
	require.NoError(t, err)
	assert.True(t, c.Amount.IsZero())
}

func TestDecodeConfirmation_Garbage(t *testing.T) {
	_, err := decodeConfirmation("not json at all")
	assert.Error(t, err)
}
