package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"booking-system/config"
	"booking-system/internal/status"
	"booking-system/models"
	"booking-system/monitoring"
	"booking-system/utils"

	"github.com/shopspring/decimal"
)

// Store is the persistence surface the coordinator needs. The capacity
// check-and-increment and check-and-decrement must be atomic read-modify-writes
// evaluated by the store itself; a read-then-write in two steps is not an
// acceptable implementation of IncrementSlotBooked.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetSlot(ctx context.Context, slotID string) (*models.Slot, error)
	IncrementSlotBooked(ctx context.Context, slotID string) (bool, error)
	DecrementSlotBooked(ctx context.Context, slotID string) error
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	FindBookingByPaymentRef(ctx context.Context, ref string) (*models.Booking, error)
	MarkBookingCancelled(ctx context.Context, bookingID string, at time.Time) error
	SetBookingStatus(ctx context.Context, bookingID, bookingStatus string) error
	ListBookings(ctx context.Context, f BookingFilter) ([]*models.Booking, error)
}

// PriceLookup is the service-catalog collaborator supplying the price copied
// onto a booking at creation time.
type PriceLookup interface {
	CurrentPrice(ctx context.Context, serviceID string) (decimal.Decimal, error)
}

// WaitlistAdvancer is the hand-off the coordinator signals after a
// cancellation frees a spot. Both calls are fire-and-forget: their failure
// never affects the triggering operation.
type WaitlistAdvancer interface {
	AdvanceNext(ctx context.Context, serviceID string) (*models.WaitlistEntry, error)
	MarkBooked(ctx context.Context, userID, serviceID string)
}

// Actor identifies the caller of an operation for authorization checks.
type Actor struct {
	ID    string
	Admin bool
}

// BookingService is the capacity coordinator: the sole writer of a slot's
// booked_count/status pair and of a booking's active/cancelled distinction.
type BookingService struct {
	store    Store
	prices   PriceLookup
	waitlist WaitlistAdvancer
	notifier *Notifier
	cfg      *config.Config
	now      func() time.Time
}

func NewBookingService(store Store, prices PriceLookup, waitlist WaitlistAdvancer, notifier *Notifier, cfg *config.Config) *BookingService {
	return &BookingService{
		store:    store,
		prices:   prices,
		waitlist: waitlist,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

type ReserveParams struct {
	UserID string
	SlotID string
	Notes  string
}

// Reserve books a spot on a slot for a user, starting in pending status.
func (s *BookingService) Reserve(ctx context.Context, p ReserveParams) (*models.Booking, error) {
	return s.reserve(ctx, p, models.BookingStatusPending, "", nil)
}

// ConfirmFromPayment is the payment-confirmed entry point. It runs the same
// reservation protocol but the booking starts confirmed, and it is idempotent
// on paymentRef: duplicate webhook delivery returns the already-created
// booking instead of double-booking.
func (s *BookingService) ConfirmFromPayment(ctx context.Context, c *models.PaymentConfirmation) (*models.Booking, error) {
	if existing, err := s.store.FindBookingByPaymentRef(ctx, c.PaymentRef); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	amount := c.Amount
	booking, err := s.reserve(ctx, ReserveParams{
		UserID: c.UserID,
		SlotID: c.SlotID,
		Notes:  c.Notes,
	}, models.BookingStatusConfirmed, c.PaymentRef, &amount)

	// Two deliveries of the same confirmation can race past the lookup; the
	// unique index on payment_ref catches the loser, which re-reads.
	if errors.Is(err, status.ErrDuplicatePaymentRef) {
		return s.store.FindBookingByPaymentRef(ctx, c.PaymentRef)
	}
	return booking, err
}

func (s *BookingService) reserve(ctx context.Context, p ReserveParams, initialStatus, paymentRef string, amount *decimal.Decimal) (*models.Booking, error) {
	var booking *models.Booking

	err := s.retryOnConflict(ctx, func() error {
		return s.store.WithTx(ctx, func(txCtx context.Context) error {
			slot, err := s.store.GetSlot(txCtx, p.SlotID)
			if err != nil {
				return err
			}

			// Precondition order matters: first failure wins.
			if !slot.Available {
				return status.ErrSlotNotAvailable
			}
			if !slot.StartTime.After(s.now()) {
				return status.ErrSlotInPast
			}
			if slot.BookedCount >= slot.Capacity {
				return status.ErrSlotFull
			}

			price := decimal.Zero
			if amount != nil {
				price = *amount
			} else {
				price, err = s.prices.CurrentPrice(txCtx, slot.ServiceID)
				if err != nil {
					return err
				}
			}

			ref, err := utils.GenerateCode(4)
			if err != nil {
				return err
			}

			booking = &models.Booking{
				UserID:     p.UserID,
				ServiceID:  slot.ServiceID,
				SlotID:     slot.ID,
				Amount:     price.InexactFloat64(),
				Status:     initialStatus,
				Notes:      p.Notes,
				PaymentRef: paymentRef,
				Reference:  ref,
			}

			// The unique index on active (user, slot) pairs enforces the
			// duplicate invariant even against concurrent identical requests.
			if err := s.store.CreateBooking(txCtx, booking); err != nil {
				return err
			}

			// Atomic check-and-increment. Zero rows means a concurrent caller
			// took the last spot after our read; the rollback removes the
			// booking insert above.
			ok, err := s.store.IncrementSlotBooked(txCtx, slot.ID)
			if err != nil {
				return err
			}
			if !ok {
				return status.ErrSlotFull
			}
			return nil
		})
	})
	if err != nil {
		monitoring.TrackReservation(status.Code(err))
		return nil, err
	}

	monitoring.TrackReservation("ok")

	go func() {
		s.waitlist.MarkBooked(context.Background(), booking.UserID, booking.ServiceID)
		s.notifier.BookingCreated(booking)
	}()

	return booking, nil
}

// Cancel releases a booking's spot, subject to the cancellation deadline.
// Admins are held to the same deadline unless AdminDeadlineExempt is set.
func (s *BookingService) Cancel(ctx context.Context, bookingID string, actor Actor) (*models.Booking, error) {
	var cancelled *models.Booking
	var serviceID string

	err := s.retryOnConflict(ctx, func() error {
		return s.store.WithTx(ctx, func(txCtx context.Context) error {
			booking, err := s.store.GetBooking(txCtx, bookingID)
			if err != nil {
				return err
			}
			if booking.UserID != actor.ID && !actor.Admin {
				return status.ErrUnauthorized
			}
			if booking.Status == models.BookingStatusCancelled {
				return status.ErrAlreadyCancelled
			}

			slot, err := s.store.GetSlot(txCtx, booking.SlotID)
			if err != nil {
				return err
			}

			deadline := slot.StartTime.Add(-s.cfg.CancellationWindow)
			if s.now().After(deadline) && !(actor.Admin && s.cfg.AdminDeadlineExempt) {
				return status.ErrCancellationDeadline
			}

			now := s.now()
			if err := s.store.MarkBookingCancelled(txCtx, booking.ID, now); err != nil {
				return err
			}
			if err := s.store.DecrementSlotBooked(txCtx, slot.ID); err != nil {
				return err
			}

			booking.Status = models.BookingStatusCancelled
			booking.CancelledAt = &now
			cancelled = booking
			serviceID = booking.ServiceID
			return nil
		})
	})
	if err != nil {
		monitoring.TrackCancellation(status.Code(err))
		return nil, err
	}

	monitoring.TrackCancellation("ok")

	// A spot just opened: hand it to the waitlist. Fire-and-forget by
	// contract; a failed advance never rolls back the cancellation.
	go func() {
		if _, err := s.waitlist.AdvanceNext(context.Background(), serviceID); err != nil {
			slog.Error("waitlist advance after cancellation failed",
				"service_id", serviceID, "error", err)
		}
		s.notifier.BookingCancelled(cancelled)
	}()

	return cancelled, nil
}

// Complete marks a booking as completed after the service took place.
// Administrative only.
func (s *BookingService) Complete(ctx context.Context, bookingID string, actor Actor) (*models.Booking, error) {
	if !actor.Admin {
		return nil, status.ErrUnauthorized
	}
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, status.ErrAlreadyCancelled
	}
	if err := s.store.SetBookingStatus(ctx, bookingID, models.BookingStatusCompleted); err != nil {
		return nil, err
	}
	booking.Status = models.BookingStatusCompleted
	return booking, nil
}

// Get returns a booking to its owner or an admin.
func (s *BookingService) Get(ctx context.Context, bookingID string, actor Actor) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != actor.ID && !actor.Admin {
		return nil, status.ErrUnauthorized
	}
	return booking, nil
}

// List returns the actor's own bookings, or any user's (or all) for admins.
func (s *BookingService) List(ctx context.Context, f BookingFilter, actor Actor) ([]*models.Booking, error) {
	if !actor.Admin {
		f.UserID = actor.ID
	}
	return s.store.ListBookings(ctx, f)
}

// retryOnConflict retries op a bounded number of times on optimistic
// concurrency conflicts, then surfaces ErrConflict to the caller.
func (s *BookingService) retryOnConflict(ctx context.Context, op func() error) error {
	retries := s.cfg.ReserveRetries
	if retries <= 0 {
		retries = 1
	}

	var err error
	for attempt := 0; attempt < retries; attempt++ {
		err = op()
		if !errors.Is(err, status.ErrConflict) {
			return err
		}
		monitoring.TrackConflictRetry()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return status.ErrConflict
}
