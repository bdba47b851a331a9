package services

import (
	"context"
	"time"

	"booking-system/internal/status"
	"booking-system/models"
)

// SlotStore is the persistence surface for slot administration.
type SlotStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetSlot(ctx context.Context, slotID string) (*models.Slot, error)
	CreateSlot(ctx context.Context, slot *models.Slot) error
	CountOverlappingSlots(ctx context.Context, serviceID string, start, end time.Time) (int, error)
	CountActiveBookingsForSlot(ctx context.Context, slotID string) (int, error)
	DeleteSlot(ctx context.Context, slotID string) error
	SetSlotAvailable(ctx context.Context, slotID string, available bool) error
	ListSlots(ctx context.Context, serviceID string, from time.Time) ([]*models.Slot, error)
	GetService(ctx context.Context, serviceID string) (*models.Service, error)
}

// SlotService covers the admin side of slot management. Once bookings exist
// against a slot, its booked_count/status pair is mutated only through the
// capacity coordinator; this service never touches either.
type SlotService struct {
	store SlotStore
}

func NewSlotService(store SlotStore) *SlotService {
	return &SlotService{store: store}
}

// Create adds one slot. The end time derives from the service duration, and
// the [start, end) window must not overlap another slot of the same service.
func (s *SlotService) Create(ctx context.Context, serviceID string, start time.Time, capacity int) (*models.Slot, error) {
	var slot *models.Slot

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		svc, err := s.store.GetService(txCtx, serviceID)
		if err != nil {
			return err
		}

		end := start.Add(time.Duration(svc.DurationMinutes) * time.Minute)

		overlapping, err := s.store.CountOverlappingSlots(txCtx, serviceID, start, end)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return status.ErrSlotOverlap
		}

		slot = &models.Slot{
			ServiceID: serviceID,
			StartTime: start,
			EndTime:   end,
			Capacity:  capacity,
			Available: true,
		}
		return s.store.CreateSlot(txCtx, slot)
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// CreateBulk adds evenly spaced slots between from and until. Slots whose
// window would overlap an existing one are skipped, not errors: bulk creation
// over a partially filled calendar is the common admin flow.
func (s *SlotService) CreateBulk(ctx context.Context, serviceID string, from, until time.Time, interval time.Duration, capacity int) ([]*models.Slot, error) {
	if interval <= 0 {
		interval = time.Hour
	}

	created := []*models.Slot{}
	for start := from; start.Before(until); start = start.Add(interval) {
		slot, err := s.Create(ctx, serviceID, start, capacity)
		if err != nil {
			if err == status.ErrSlotOverlap {
				continue
			}
			return created, err
		}
		created = append(created, slot)
	}
	return created, nil
}

// Delete removes a slot only when no non-cancelled booking references it.
// There is deliberately no cascade: orphaning bookings silently is worse than
// making the admin cancel them first.
func (s *SlotService) Delete(ctx context.Context, slotID string) error {
	return s.store.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.GetSlot(txCtx, slotID); err != nil {
			return err
		}
		n, err := s.store.CountActiveBookingsForSlot(txCtx, slotID)
		if err != nil {
			return err
		}
		if n > 0 {
			return status.ErrSlotHasBookings
		}
		return s.store.DeleteSlot(txCtx, slotID)
	})
}

// SetAvailable flips the admin open/close switch; the derived status keeps
// tracking occupancy independently.
func (s *SlotService) SetAvailable(ctx context.Context, slotID string, available bool) error {
	return s.store.SetSlotAvailable(ctx, slotID, available)
}

// List returns upcoming slots for a service.
func (s *SlotService) List(ctx context.Context, serviceID string, from time.Time) ([]*models.Slot, error) {
	return s.store.ListSlots(ctx, serviceID, from)
}

// Get returns a single slot.
func (s *SlotService) Get(ctx context.Context, slotID string) (*models.Slot, error) {
	return s.store.GetSlot(ctx, slotID)
}
