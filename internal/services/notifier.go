package services

import (
	"context"
	"fmt"
	"log/slog"

	"booking-system/models"
	"booking-system/monitoring"
	"booking-system/utils"

	pubnub "github.com/pubnub/go"
)

// Publisher is the transport the notifier publishes through. Kept narrow so
// tests can stub it.
type Publisher interface {
	Publish(channel string, message map[string]any) error
}

type pubnubPublisher struct {
	pn *pubnub.PubNub
}

func (p *pubnubPublisher) Publish(channel string, message map[string]any) error {
	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

// Notifier pushes realtime events to users. Every call is fire-and-forget:
// delivery failure is logged and counted, never propagated to the operation
// that triggered it. A circuit breaker keeps a dead transport from stalling
// the hot paths.
type Notifier struct {
	publisher Publisher
	breaker   *utils.CircuitBreaker
}

func NewNotifier(pn *pubnub.PubNub) *Notifier {
	return &Notifier{
		publisher: &pubnubPublisher{pn: pn},
		breaker:   utils.NewCircuitBreaker("notifier"),
	}
}

// NewNotifierWithPublisher wires a custom transport; used by tests.
func NewNotifierWithPublisher(p Publisher) *Notifier {
	return &Notifier{
		publisher: p,
		breaker:   utils.NewCircuitBreaker("notifier"),
	}
}

func (n *Notifier) publish(channel string, message map[string]any) {
	err := n.breaker.Execute(context.Background(), func() error {
		return n.publisher.Publish(channel, message)
	})
	if err != nil {
		monitoring.TrackNotificationFailure()
		slog.Error("notification publish failed", "channel", channel, "error", err)
	}
}

func userChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

func (n *Notifier) BookingCreated(b *models.Booking) {
	n.publish(userChannel(b.UserID), map[string]any{
		"type":       "booking_created",
		"booking_id": b.ID,
		"slot_id":    b.SlotID,
		"status":     b.Status,
		"reference":  b.Reference,
	})
}

func (n *Notifier) BookingCancelled(b *models.Booking) {
	n.publish(userChannel(b.UserID), map[string]any{
		"type":       "booking_cancelled",
		"booking_id": b.ID,
		"slot_id":    b.SlotID,
	})
}

// WaitlistSpotOpened tells a notified user their booking window is open.
// Delivery mechanics beyond this publish (email, SMS) belong to the
// notification collaborator consuming the channel.
func (n *Notifier) WaitlistSpotOpened(e *models.WaitlistEntry) {
	msg := map[string]any{
		"type":       "waitlist_spot_opened",
		"entry_id":   e.ID,
		"service_id": e.ServiceID,
	}
	if e.ExpiresAt != nil {
		msg["expires_at"] = e.ExpiresAt.UTC()
	}
	n.publish(userChannel(e.UserID), msg)
}
