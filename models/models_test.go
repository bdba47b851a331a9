package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlot_DeriveStatus(t *testing.T) {
	slot := Slot{Capacity: 3}

	slot.BookedCount = 0
	assert.Equal(t, SlotStatusOpen, slot.DeriveStatus())

	slot.BookedCount = 2
	assert.Equal(t, SlotStatusOpen, slot.DeriveStatus())

	slot.BookedCount = 3
	assert.Equal(t, SlotStatusClosed, slot.DeriveStatus())

	// Never below closed even if the count somehow overshoots.
	slot.BookedCount = 4
	assert.Equal(t, SlotStatusClosed, slot.DeriveStatus())
}

func TestSlot_Overlaps(t *testing.T) {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	slot := Slot{StartTime: base, EndTime: base.Add(time.Hour)}

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"identical window", base, base.Add(time.Hour), true},
		{"partial overlap", base.Add(30 * time.Minute), base.Add(90 * time.Minute), true},
		{"contained", base.Add(10 * time.Minute), base.Add(20 * time.Minute), true},
		{"touching end is not overlap", base.Add(time.Hour), base.Add(2 * time.Hour), false},
		{"touching start is not overlap", base.Add(-time.Hour), base, false},
		{"disjoint", base.Add(2 * time.Hour), base.Add(3 * time.Hour), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, slot.Overlaps(tc.start, tc.end))
		})
	}
}

func TestBooking_Active(t *testing.T) {
	b := Booking{Status: BookingStatusPending}
	assert.True(t, b.Active())

	b.Status = BookingStatusConfirmed
	assert.True(t, b.Active())

	b.Status = BookingStatusCancelled
	assert.False(t, b.Active())
}

func TestBooking_JSONSerialization(t *testing.T) {
	cancelledAt := time.Now().UTC().Truncate(time.Second)
	booking := Booking{
		ID:          "bk-1",
		UserID:      "user-1",
		ServiceID:   "svc-1",
		SlotID:      "slot-1",
		Amount:      79.99,
		Status:      BookingStatusCancelled,
		Reference:   "AB12CD34",
		CancelledAt: &cancelledAt,
	}

	data, err := json.Marshal(booking)
	require.NoError(t, err)

	var decoded Booking
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, booking.ID, decoded.ID)
	assert.Equal(t, booking.Amount, decoded.Amount)
	assert.Equal(t, booking.Status, decoded.Status)
	require.NotNil(t, decoded.CancelledAt)
	assert.WithinDuration(t, cancelledAt, *decoded.CancelledAt, time.Second)
}
