package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"booking-system/config"
	"booking-system/internal/status"
	"booking-system/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with transactional semantics: WithTx
// serializes callers and rolls state back when fn fails, mirroring what the
// SQL store does. Individual methods only run inside WithTx or from
// sequential test code, so they take no locks themselves.
type memStore struct {
	mu       sync.Mutex
	slots    map[string]*models.Slot
	bookings map[string]*models.Booking
	seq      int
}

func newMemStore() *memStore {
	return &memStore{
		slots:    map[string]*models.Slot{},
		bookings: map[string]*models.Booking{},
	}
}

func (s *memStore) snapshot() (map[string]*models.Slot, map[string]*models.Booking) {
	slots := map[string]*models.Slot{}
	for id, slot := range s.slots {
		c := *slot
		slots[id] = &c
	}
	bookings := map[string]*models.Booking{}
	for id, b := range s.bookings {
		c := *b
		bookings[id] = &c
	}
	return slots, bookings
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, bookings := s.snapshot()
	if err := fn(ctx); err != nil {
		s.slots, s.bookings = slots, bookings
		return err
	}
	return nil
}

func (s *memStore) GetSlot(_ context.Context, slotID string) (*models.Slot, error) {
	slot, ok := s.slots[slotID]
	if !ok {
		return nil, status.ErrSlotNotFound
	}
	c := *slot
	return &c, nil
}

func (s *memStore) IncrementSlotBooked(_ context.Context, slotID string) (bool, error) {
	slot, ok := s.slots[slotID]
	if !ok || !slot.Available || slot.BookedCount >= slot.Capacity {
		return false, nil
	}
	slot.BookedCount++
	slot.Status = slot.DeriveStatus()
	return true, nil
}

func (s *memStore) DecrementSlotBooked(_ context.Context, slotID string) error {
	slot, ok := s.slots[slotID]
	if !ok {
		return status.ErrSlotNotFound
	}
	if slot.BookedCount > 0 {
		slot.BookedCount--
	}
	slot.Status = slot.DeriveStatus()
	return nil
}

func (s *memStore) CreateBooking(_ context.Context, b *models.Booking) error {
	for _, existing := range s.bookings {
		if existing.UserID == b.UserID && existing.SlotID == b.SlotID &&
			existing.Status != models.BookingStatusCancelled {
			return status.ErrDuplicateBooking
		}
		if b.PaymentRef != "" && existing.PaymentRef == b.PaymentRef {
			return status.ErrDuplicatePaymentRef
		}
	}
	s.seq++
	b.ID = fmt.Sprintf("bk-%d", s.seq)
	b.CreatedAt = time.Now()
	c := *b
	s.bookings[b.ID] = &c
	return nil
}

func (s *memStore) GetBooking(_ context.Context, bookingID string) (*models.Booking, error) {
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, status.ErrBookingNotFound
	}
	c := *b
	return &c, nil
}

func (s *memStore) FindBookingByPaymentRef(_ context.Context, ref string) (*models.Booking, error) {
	for _, b := range s.bookings {
		if b.PaymentRef == ref {
			c := *b
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) MarkBookingCancelled(_ context.Context, bookingID string, at time.Time) error {
	b, ok := s.bookings[bookingID]
	if !ok {
		return status.ErrBookingNotFound
	}
	b.Status = models.BookingStatusCancelled
	b.CancelledAt = &at
	return nil
}

func (s *memStore) SetBookingStatus(_ context.Context, bookingID, bookingStatus string) error {
	b, ok := s.bookings[bookingID]
	if !ok {
		return status.ErrBookingNotFound
	}
	b.Status = bookingStatus
	return nil
}

func (s *memStore) ListBookings(_ context.Context, f BookingFilter) ([]*models.Booking, error) {
	out := []*models.Booking{}
	for _, b := range s.bookings {
		if f.UserID != "" && b.UserID != f.UserID {
			continue
		}
		if f.SlotID != "" && b.SlotID != f.SlotID {
			continue
		}
		c := *b
		out = append(out, &c)
	}
	return out, nil
}

type stubPrices struct{ price decimal.Decimal }

func (p *stubPrices) CurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return p.price, nil
}

type stubAdvancer struct {
	mu       sync.Mutex
	advanced []string
	booked   []string
}

func (a *stubAdvancer) AdvanceNext(_ context.Context, serviceID string) (*models.WaitlistEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advanced = append(a.advanced, serviceID)
	return nil, nil
}

func (a *stubAdvancer) MarkBooked(_ context.Context, userID, serviceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.booked = append(a.booked, userID)
}

func (a *stubAdvancer) advancedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.advanced)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, map[string]any) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		CancellationWindow: 24 * time.Hour,
		ReserveRetries:     3,
		WaitlistNotifyTTL:  30 * time.Minute,
	}
}

func setupBookingService(store Store) (*BookingService, *stubAdvancer) {
	advancer := &stubAdvancer{}
	svc := NewBookingService(
		store,
		&stubPrices{price: decimal.NewFromInt(50)},
		advancer,
		NewNotifierWithPublisher(noopPublisher{}),
		testConfig(),
	)
	return svc, advancer
}

func futureSlot(id string, capacity int) *models.Slot {
	start := time.Now().Add(48 * time.Hour)
	return &models.Slot{
		ID:        id,
		ServiceID: "svc-1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Capacity:  capacity,
		Status:    models.SlotStatusOpen,
		Available: true,
	}
}

func TestBookingService_Reserve_Success(t *testing.T) {
	store := newMemStore()
	store.slots["slot-1"] = futureSlot("slot-1", 5)
	svc, _ := setupBookingService(store)

	booking, err := svc.Reserve(context.Background(), ReserveParams{
		UserID: "user-1",
		SlotID: "slot-1",
		Notes:  "window seat please",
	})

	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, "svc-1", booking.ServiceID)
	assert.Equal(t, 50.0, booking.Amount)
	assert.NotEmpty(t, booking.Reference)

	slot, _ := store.GetSlot(context.Background(), "slot-1")
	assert.Equal(t, 1, slot.BookedCount)
	assert.Equal(t, models.SlotStatusOpen, slot.Status)
}

func TestBookingService_Reserve_FillsAndCloses(t *testing.T) {
	store := newMemStore()
	store.slots["slot-1"] = futureSlot("slot-1", 2)
	svc, _ := setupBookingService(store)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, ReserveParams{UserID: "user-a", SlotID: "slot-1"})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, ReserveParams{UserID: "user-b", SlotID: "slot-1"})
	require.NoError(t, err)

	slot, _ := store.GetSlot(ctx, "slot-1")
	assert.Equal(t, 2, slot.BookedCount)
	assert.Equal(t, models.SlotStatusClosed, slot.Status)

	_, err = svc.Reserve(ctx, ReserveParams{UserID: "user-c", SlotID: "slot-1"})
	assert.ErrorIs(t, err, status.ErrSlotFull)
}

func TestBookingService_Reserve_SlotNotFound(t *testing.T) {
	svc, _ := setupBookingService(newMemStore())

	_, err := svc.Reserve(context.Background(), ReserveParams{UserID: "u", SlotID: "missing"})
	assert.ErrorIs(t, err, status.ErrSlotNotFound)
}

func TestBookingService_Reserve_SlotNotAvailable(t *testing.T) {
	store := newMemStore()
	slot := futureSlot("slot-1", 5)
	slot.Available = false
	store.slots["slot-1"] = slot
	svc, _ := setupBookingService(store)

	_, err := svc.Reserve(context.Background(), ReserveParams{UserID: "u", SlotID: "slot-1"})
	assert.ErrorIs(t, err, status.ErrSlotNotAvailable)
}

func TestBookingService_Reserve_SlotInPast(t *testing.T) {
	store := newMemStore()
	slot := futureSlot("slot-1", 5)
	slot.StartTime = time.Now().Add(-time.Hour)
	store.slots["slot-1"] = slot
	svc, _ := setupBookingService(store)

	_, err := svc.Reserve(context.Background(), ReserveParams{UserID: "u", SlotID: "slot-1"})
	assert.ErrorIs(t, err, status.ErrSlotInPast)
}

func TestBookingService_Reserve_DuplicateRejected(t *testing.T) {
	store := newMemStore()
	store.slots["slot-1"] = futureSlot("slot-1", 5)
	svc, _ := setupBookingService(store)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, ReserveParams{UserID: "user-1", SlotID: "slot-1"})
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, ReserveParams{UserID: "user-1", SlotID: "slot-1"})
	assert.ErrorIs(t, err, status.ErrDuplicateBooking)

	// The failed attempt must not leak a spot.
	slot, _ := store.GetSlot(ctx, "slot-1")
	assert.Equal(t, 1, slot.BookedCount)
}

func TestBookingService_Reserve_ConcurrentNeverOverbooks(t *testing.T) {
	const capacity = 5
	const callers = 50

	store := newMemStore()
	store.slots["slot-1"] = futureSlot("slot-1", capacity)
	svc, _ := setupBookingService(store)

	var wg sync.WaitGroup
	results := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), ReserveParams{
				UserID: fmt.Sprintf("user-%d", n),
				SlotID: "slot-1",
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded, full := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case err == status.ErrSlotFull:
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, callers-capacity, full)

	slot, _ := store.GetSlot(context.Background(), "slot-1")
	assert.Equal(t, capacity, slot.BookedCount)
	assert.Equal(t, models.SlotStatusClosed, slot.Status)
}

func TestBookingService_Cancel_RestoresCapacity(t *testing.T) {
	store := newMemStore()
	store.slots["slot-1"] = futureSlot("slot-1", 1)
	svc, advancer := setupBookingService(store)
	ctx := context.Background()

	booking, err := svc.Reserve(ctx, ReserveParams{UserID: "user-a", SlotID: "slot-1"})
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, ReserveParams{UserID: "user-b", SlotID: "slot-1"})
	require.ErrorIs(t, err, status.ErrSlotFull)

	cancelled, err := svc.Cancel(ctx, booking.ID, Actor{ID: "user-a"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	slot, _ := store.GetSlot(ctx, "slot-1")
	assert.Equal(t, 0, slot.BookedCount)
	assert.Equal(t, models.SlotStatusOpen, slot.Status)

	// The freed spot is bookable again.
	_, err = svc.Reserve(ctx, ReserveParams{UserID: "user-b", SlotID: "slot-1"})
	assert.NoError(t, err)

	// The waitlist got the hand-off.
	assert.Eventually(t, func() bool {
		return advancer.advancedCount() >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestBookingService_Cancel_DeadlineBoundary(t *testing.T) {
	start := time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		now     time.Time
		wantErr error
	}{
		{"exactly at the deadline", start.Add(-24 * time.Hour), nil},
		{"one second late", start.Add(-24*time.Hour + time.Second), status.ErrCancellationDeadline},
		{"well before", start.Add(-48 * time.Hour), nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			slot := futureSlot("slot-1", 5)
			slot.StartTime = start
			slot.EndTime = start.Add(time.Hour)
			store.slots["slot-1"] = slot
			svc, _ := setupBookingService(store)

			svc.now = func() time.Time { return start.Add(-72 * time.Hour) }
			booking, err := svc.Reserve(context.Background(), ReserveParams{UserID: "user-1", SlotID: "slot-1"})
			require.NoError(t, err)

			svc.now = func() time.Time { return tc.now }
			_, err = svc.Cancel(context.Background(), booking.ID, Actor{ID: "user-1"})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBookingService_Cancel_AdminDeadlineExempt(t *testing.T) {
	start := time.Now().Add(2 * time.Hour) // inside the 24h window

	store := newMemStore()
	slot := futureSlot("slot-1", 5)
	slot.StartTime = start
	store.slots["slot-1"] = slot
	svc, _ := setupBookingService(store)

	booking, err := svc.Reserve(context.Background(), ReserveParams{UserID: "user-1", SlotID: "slot-1"})
	require.NoError(t, err)

	// Admin without the exemption flag is held to the deadline too.
	_, err = svc.Cancel(context.Background(), booking.ID, Actor{ID: "admin", Admin: true})
	assert.ErrorIs(t, err, status.ErrCancellationDeadline)

	svc.cfg.AdminDeadlineExempt = true
	_, err = svc.Cancel(context.Background(), booking.ID, Actor{ID: "admin", Admin: true})
	assert.NoError(t, err)
}

func TestBookingService_Cancel_Authorization(t *testing.T) {
	store := newMemStore()
	store.slots["slot-1"] = futureSlot("slot-1", 5)
	svc, _ := setupBookingService(store)
	ctx := context.Background()

	booking, err := svc.Reserve(ctx, ReserveParams{UserID: "user-1", SlotID: "slot-1"})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, booking.ID, Actor{ID: "someone-else"})
	assert.ErrorIs(t, err, status.ErrUnauthorized)

	_, err = svc.Cancel(ctx, booking.ID, Actor{ID: "user-1"})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, booking.ID, Actor{ID: "user-1"})
	assert.ErrorIs(t, err, status.ErrAlreadyCancelled)
}

func TestBookingService_ConfirmFromPayment_Idempotent(t *testing.T) {
	store := newMemStore()
	store.slots["slot-1"] = futureSlot("slot-1", 5)
	svc, _ := setupBookingService(store)
	ctx := context.Background()

	confirmation := &models.PaymentConfirmation{
		PaymentRef: "pay-123",
		UserID:     "user-1",
		ServiceID:  "svc-1",
		SlotID:     "slot-1",
		Amount:     decimal.NewFromFloat(42.50),
		Status:     "success",
	}

	first, err := svc.ConfirmFromPayment(ctx, confirmation)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, first.Status)
	assert.Equal(t, 42.5, first.Amount)

	// Redelivery returns the same booking and books nothing new.
	second, err := svc.ConfirmFromPayment(ctx, confirmation)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	slot, _ := store.GetSlot(ctx, "slot-1")
	assert.Equal(t, 1, slot.BookedCount)
}

// conflictStore always fails its transactions with a concurrency conflict.
type conflictStore struct {
	*memStore
	attempts int
}

func (s *conflictStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.attempts++
	return status.ErrConflict
}

func TestBookingService_Reserve_ConflictRetryExhaustion(t *testing.T) {
	store := &conflictStore{memStore: newMemStore()}
	svc, _ := setupBookingService(store)

	_, err := svc.Reserve(context.Background(), ReserveParams{UserID: "u", SlotID: "slot-1"})
	assert.ErrorIs(t, err, status.ErrConflict)
	assert.Equal(t, 3, store.attempts)
}

func TestBookingService_Complete(t *testing.T) {
	store := newMemStore()
	store.slots["slot-1"] = futureSlot("slot-1", 5)
	svc, _ := setupBookingService(store)
	ctx := context.Background()

	booking, err := svc.Reserve(ctx, ReserveParams{UserID: "user-1", SlotID: "slot-1"})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, booking.ID, Actor{ID: "user-1"})
	assert.ErrorIs(t, err, status.ErrUnauthorized)

	completed, err := svc.Complete(ctx, booking.ID, Actor{ID: "admin", Admin: true})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, completed.Status)
}

func TestBookingService_Get_OwnerOnly(t *testing.T) {
	store := newMemStore()
	store.slots["slot-1"] = futureSlot("slot-1", 5)
	svc, _ := setupBookingService(store)
	ctx := context.Background()

	booking, err := svc.Reserve(ctx, ReserveParams{UserID: "user-1", SlotID: "slot-1"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, booking.ID, Actor{ID: "user-2"})
	assert.ErrorIs(t, err, status.ErrUnauthorized)

	got, err := svc.Get(ctx, booking.ID, Actor{ID: "user-2", Admin: true})
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)
}

func TestBookingService_List_ScopesNonAdmins(t *testing.T) {
	store := newMemStore()
	store.slots["slot-1"] = futureSlot("slot-1", 5)
	svc, _ := setupBookingService(store)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, ReserveParams{UserID: "user-1", SlotID: "slot-1"})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, ReserveParams{UserID: "user-2", SlotID: "slot-1"})
	require.NoError(t, err)

	mine, err := svc.List(ctx, BookingFilter{}, Actor{ID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := svc.List(ctx, BookingFilter{}, Actor{ID: "admin", Admin: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
