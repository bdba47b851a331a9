package services

import (
	"errors"
	"sync"
	"testing"

	"booking-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	messages []map[string]any
	err      error
}

func (p *recordingPublisher) Publish(channel string, message map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, message)
	return nil
}

func TestNotifier_BookingCreated(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifierWithPublisher(pub)

	n.BookingCreated(&models.Booking{
		ID:        "bk-1",
		UserID:    "user-1",
		SlotID:    "slot-1",
		Status:    models.BookingStatusPending,
		Reference: "AB12CD34",
	})

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "user-user-1", pub.channels[0])
	assert.Equal(t, "booking_created", pub.messages[0]["type"])
	assert.Equal(t, "AB12CD34", pub.messages[0]["reference"])
}

func TestNotifier_WaitlistSpotOpened(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifierWithPublisher(pub)

	n.WaitlistSpotOpened(&models.WaitlistEntry{
		ID:        "wl-1",
		UserID:    "user-2",
		ServiceID: "svc-1",
	})

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "user-user-2", pub.channels[0])
	assert.Equal(t, "waitlist_spot_opened", pub.messages[0]["type"])
}

func TestNotifier_FailuresNeverPropagate(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("transport down")}
	n := NewNotifierWithPublisher(pub)

	// Repeated failures trip the breaker; none of it reaches the caller.
	for i := 0; i < 10; i++ {
		n.BookingCancelled(&models.Booking{ID: "bk-1", UserID: "user-1"})
	}
}
