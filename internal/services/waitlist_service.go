package services

import (
	"context"
	"log/slog"
	"time"

	"booking-system/config"
	"booking-system/internal/status"
	"booking-system/models"
	"booking-system/monitoring"
)

// WaitlistStore is the persistence surface for the per-service waitlist.
// The partial unique index on waiting (user, service) pairs backs the
// one-active-entry invariant.
type WaitlistStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	MaxWaitlistPosition(ctx context.Context, serviceID string) (int, error)
	CreateWaitlistEntry(ctx context.Context, e *models.WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, entryID string) (*models.WaitlistEntry, error)
	DeleteWaitlistEntry(ctx context.Context, entryID string) error
	ShiftWaitlistPositions(ctx context.Context, serviceID string, above int) error
	NextWaiting(ctx context.Context, serviceID string) (*models.WaitlistEntry, error)
	UpdateWaitlistEntry(ctx context.Context, e *models.WaitlistEntry) error
	ExpireOverdueNotifications(ctx context.Context, now time.Time) (int, error)
	MarkWaitlistBooked(ctx context.Context, userID, serviceID string) error
	ListWaitlist(ctx context.Context, serviceID string) ([]*models.WaitlistEntry, error)
}

// WaitlistService keeps the ordered per-service queue of users wanting a spot
// in a currently-full service. Positions among waiting entries are contiguous
// starting at 1.
type WaitlistService struct {
	store    WaitlistStore
	notifier *Notifier
	cfg      *config.Config
	now      func() time.Time
}

func NewWaitlistService(store WaitlistStore, notifier *Notifier, cfg *config.Config) *WaitlistService {
	return &WaitlistService{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Join appends the user at the tail of the service's waitlist.
func (s *WaitlistService) Join(ctx context.Context, userID, serviceID, email, phone string) (*models.WaitlistEntry, error) {
	var entry *models.WaitlistEntry

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		max, err := s.store.MaxWaitlistPosition(txCtx, serviceID)
		if err != nil {
			return err
		}

		entry = &models.WaitlistEntry{
			UserID:    userID,
			ServiceID: serviceID,
			Email:     email,
			Phone:     phone,
			Position:  max + 1,
			Status:    models.WaitlistStatusWaiting,
		}
		return s.store.CreateWaitlistEntry(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Leave removes the actor's own entry and closes the position gap.
func (s *WaitlistService) Leave(ctx context.Context, entryID string, actor Actor) error {
	return s.store.WithTx(ctx, func(txCtx context.Context) error {
		entry, err := s.store.GetWaitlistEntry(txCtx, entryID)
		if err != nil {
			return err
		}
		if entry.UserID != actor.ID {
			return status.ErrUnauthorized
		}
		if err := s.store.DeleteWaitlistEntry(txCtx, entryID); err != nil {
			return err
		}
		if entry.Status == models.WaitlistStatusWaiting {
			return s.store.ShiftWaitlistPositions(txCtx, entry.ServiceID, entry.Position)
		}
		return nil
	})
}

// AdvanceNext promotes the head of the waitlist to notified and starts its
// booking window. An empty waitlist is a normal outcome, not an error: the
// return is (nil, nil).
func (s *WaitlistService) AdvanceNext(ctx context.Context, serviceID string) (*models.WaitlistEntry, error) {
	var entry *models.WaitlistEntry

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		next, err := s.store.NextWaiting(txCtx, serviceID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		now := s.now()
		expires := now.Add(s.cfg.WaitlistNotifyTTL)
		next.Status = models.WaitlistStatusNotified
		next.NotifiedAt = &now
		next.ExpiresAt = &expires

		if err := s.store.UpdateWaitlistEntry(txCtx, next); err != nil {
			return err
		}

		// The gap left at the head is closed for the entries behind it.
		if err := s.store.ShiftWaitlistPositions(txCtx, serviceID, next.Position); err != nil {
			return err
		}

		entry = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	monitoring.TrackWaitlistAdvance(serviceID)
	s.notifier.WaitlistSpotOpened(entry)
	return entry, nil
}

// MarkBooked transitions the user's notified entry to booked after they
// completed a reservation. Fire-and-forget from the coordinator's view.
func (s *WaitlistService) MarkBooked(ctx context.Context, userID, serviceID string) {
	if err := s.store.MarkWaitlistBooked(ctx, userID, serviceID); err != nil {
		slog.Error("failed to mark waitlist entry booked",
			"user_id", userID, "service_id", serviceID, "error", err)
	}
}

// ExpireOverdue flips notified entries whose window lapsed before now.
// Exposed for the external scheduler; there is no in-process sweep.
func (s *WaitlistService) ExpireOverdue(ctx context.Context) (int, error) {
	return s.store.ExpireOverdueNotifications(ctx, s.now())
}

// List returns all entries for a service, waiting first in position order.
func (s *WaitlistService) List(ctx context.Context, serviceID string) ([]*models.WaitlistEntry, error) {
	return s.store.ListWaitlist(ctx, serviceID)
}
