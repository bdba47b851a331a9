package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"booking-system/internal/status"
	"booking-system/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/security"
)

// PBStore is the PocketBase-backed implementation of the Store, SlotStore,
// WaitlistStore and CatalogStore interfaces. All capacity mutations go through
// conditional UPDATEs so the check-and-increment is evaluated by SQLite, not
// in application code.
type PBStore struct {
	app core.App
}

func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

type txKey struct{}

func txFromContext(ctx context.Context) core.App {
	if app, ok := ctx.Value(txKey{}).(core.App); ok {
		return app
	}
	return nil
}

func (s *PBStore) db(ctx context.Context) dbx.Builder {
	if app := txFromContext(ctx); app != nil {
		return app.DB()
	}
	return s.app.DB()
}

// WithTx runs fn inside a single database transaction. Nested calls reuse the
// transaction already stashed in ctx.
func (s *PBStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(context.WithValue(ctx, txKey{}, txApp))
	})
}

// dateLayout is the text format PocketBase uses for datetime columns.
const dateLayout = "2006-01-02 15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	return &t
}

func newID() string {
	return security.RandomString(15)
}

func translateErr(err error, op string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "idx_bookings_active"):
		return status.ErrDuplicateBooking
	case strings.Contains(msg, "idx_bookings_payment_ref"):
		return status.ErrDuplicatePaymentRef
	case strings.Contains(msg, "idx_waitlist_waiting"):
		return status.ErrAlreadyOnWaitlist
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "SQLITE_BUSY"):
		return status.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

// --- slots ---

type slotRow struct {
	ID          string `db:"id"`
	Service     string `db:"service"`
	StartTime   string `db:"start_time"`
	EndTime     string `db:"end_time"`
	Capacity    int    `db:"capacity"`
	BookedCount int    `db:"booked_count"`
	Status      string `db:"status"`
	Available   bool   `db:"available"`
}

func (r *slotRow) toModel() *models.Slot {
	return &models.Slot{
		ID:          r.ID,
		ServiceID:   r.Service,
		StartTime:   parseTime(r.StartTime),
		EndTime:     parseTime(r.EndTime),
		Capacity:    r.Capacity,
		BookedCount: r.BookedCount,
		Status:      r.Status,
		Available:   r.Available,
	}
}

func (s *PBStore) GetSlot(ctx context.Context, slotID string) (*models.Slot, error) {
	var row slotRow
	err := s.db(ctx).
		Select("id", "service", "start_time", "end_time", "capacity", "booked_count", "status", "available").
		From("slots").
		Where(dbx.HashExp{"id": slotID}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrSlotNotFound
		}
		return nil, translateErr(err, "get slot")
	}
	return row.toModel(), nil
}

// IncrementSlotBooked performs the atomic check-and-increment. It reports
// false when the slot had no spot left (or was admin-closed) at the moment
// the statement ran, which is how a lost race surfaces.
func (s *PBStore) IncrementSlotBooked(ctx context.Context, slotID string) (bool, error) {
	res, err := s.db(ctx).NewQuery(`
		UPDATE slots
		SET booked_count = booked_count + 1,
		    status = CASE WHEN booked_count + 1 >= capacity THEN 'closed' ELSE 'open' END,
		    updated = {:now}
		WHERE id = {:id} AND available = TRUE AND booked_count < capacity
	`).Bind(dbx.Params{"id": slotID, "now": formatTime(time.Now())}).Execute()
	if err != nil {
		return false, translateErr(err, "increment slot")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, translateErr(err, "increment slot")
	}
	return n == 1, nil
}

// DecrementSlotBooked frees one spot, floored at zero, and re-derives status.
func (s *PBStore) DecrementSlotBooked(ctx context.Context, slotID string) error {
	_, err := s.db(ctx).NewQuery(`
		UPDATE slots
		SET booked_count = MAX(booked_count - 1, 0),
		    status = CASE WHEN MAX(booked_count - 1, 0) >= capacity THEN 'closed' ELSE 'open' END,
		    updated = {:now}
		WHERE id = {:id}
	`).Bind(dbx.Params{"id": slotID, "now": formatTime(time.Now())}).Execute()
	return translateErr(err, "decrement slot")
}

func (s *PBStore) CreateSlot(ctx context.Context, slot *models.Slot) error {
	if slot.ID == "" {
		slot.ID = newID()
	}
	slot.Status = slot.DeriveStatus()
	now := formatTime(time.Now())
	_, err := s.db(ctx).Insert("slots", dbx.Params{
		"id":           slot.ID,
		"service":      slot.ServiceID,
		"start_time":   formatTime(slot.StartTime),
		"end_time":     formatTime(slot.EndTime),
		"capacity":     slot.Capacity,
		"booked_count": slot.BookedCount,
		"status":       slot.Status,
		"available":    slot.Available,
		"created":      now,
		"updated":      now,
	}).Execute()
	return translateErr(err, "create slot")
}

func (s *PBStore) CountOverlappingSlots(ctx context.Context, serviceID string, start, end time.Time) (int, error) {
	var n int
	err := s.db(ctx).NewQuery(`
		SELECT COUNT(*) FROM slots
		WHERE service = {:service} AND start_time < {:end} AND end_time > {:start}
	`).Bind(dbx.Params{
		"service": serviceID,
		"start":   formatTime(start),
		"end":     formatTime(end),
	}).Row(&n)
	if err != nil {
		return 0, translateErr(err, "count overlapping slots")
	}
	return n, nil
}

func (s *PBStore) CountActiveBookingsForSlot(ctx context.Context, slotID string) (int, error) {
	var n int
	err := s.db(ctx).NewQuery(`
		SELECT COUNT(*) FROM bookings WHERE slot = {:slot} AND status != 'cancelled'
	`).Bind(dbx.Params{"slot": slotID}).Row(&n)
	if err != nil {
		return 0, translateErr(err, "count active bookings")
	}
	return n, nil
}

func (s *PBStore) DeleteSlot(ctx context.Context, slotID string) error {
	res, err := s.db(ctx).Delete("slots", dbx.HashExp{"id": slotID}).Execute()
	if err != nil {
		return translateErr(err, "delete slot")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.ErrSlotNotFound
	}
	return nil
}

// SetSlotAvailable flips the admin switch; derived status is left alone.
func (s *PBStore) SetSlotAvailable(ctx context.Context, slotID string, available bool) error {
	res, err := s.db(ctx).NewQuery(`
		UPDATE slots SET available = {:avail}, updated = {:now} WHERE id = {:id}
	`).Bind(dbx.Params{"id": slotID, "avail": available, "now": formatTime(time.Now())}).Execute()
	if err != nil {
		return translateErr(err, "set slot available")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.ErrSlotNotFound
	}
	return nil
}

func (s *PBStore) ListSlots(ctx context.Context, serviceID string, from time.Time) ([]*models.Slot, error) {
	var rows []slotRow
	err := s.db(ctx).
		Select("id", "service", "start_time", "end_time", "capacity", "booked_count", "status", "available").
		From("slots").
		Where(dbx.And(
			dbx.HashExp{"service": serviceID},
			dbx.NewExp("start_time >= {:from}", dbx.Params{"from": formatTime(from)}),
		)).
		OrderBy("start_time ASC").
		All(&rows)
	if err != nil {
		return nil, translateErr(err, "list slots")
	}
	slots := make([]*models.Slot, len(rows))
	for i := range rows {
		slots[i] = rows[i].toModel()
	}
	return slots, nil
}

// --- bookings ---

type bookingRow struct {
	ID          string  `db:"id"`
	User        string  `db:"user"`
	Service     string  `db:"service"`
	Slot        string  `db:"slot"`
	Amount      float64 `db:"amount"`
	Status      string  `db:"status"`
	Notes       string  `db:"notes"`
	PaymentRef  string  `db:"payment_ref"`
	Reference   string  `db:"reference"`
	Created     string  `db:"created"`
	CancelledAt string  `db:"cancelled_at"`
}

func (r *bookingRow) toModel() *models.Booking {
	return &models.Booking{
		ID:          r.ID,
		UserID:      r.User,
		ServiceID:   r.Service,
		SlotID:      r.Slot,
		Amount:      r.Amount,
		Status:      r.Status,
		Notes:       r.Notes,
		PaymentRef:  r.PaymentRef,
		Reference:   r.Reference,
		CreatedAt:   parseTime(r.Created),
		CancelledAt: parseTimePtr(r.CancelledAt),
	}
}

var bookingCols = []string{
	"id", "user", "service", "slot", "amount", "status",
	"notes", "payment_ref", "reference", "created", "cancelled_at",
}

func (s *PBStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = newID()
	}
	now := time.Now()
	b.CreatedAt = now
	_, err := s.db(ctx).Insert("bookings", dbx.Params{
		"id":           b.ID,
		"user":         b.UserID,
		"service":      b.ServiceID,
		"slot":         b.SlotID,
		"amount":       b.Amount,
		"status":       b.Status,
		"notes":        b.Notes,
		"payment_ref":  b.PaymentRef,
		"reference":    b.Reference,
		"cancelled_at": "",
		"created":      formatTime(now),
		"updated":      formatTime(now),
	}).Execute()
	return translateErr(err, "create booking")
}

func (s *PBStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var row bookingRow
	err := s.db(ctx).
		Select(bookingCols...).
		From("bookings").
		Where(dbx.HashExp{"id": bookingID}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrBookingNotFound
		}
		return nil, translateErr(err, "get booking")
	}
	return row.toModel(), nil
}

func (s *PBStore) FindBookingByPaymentRef(ctx context.Context, ref string) (*models.Booking, error) {
	var row bookingRow
	err := s.db(ctx).
		Select(bookingCols...).
		From("bookings").
		Where(dbx.HashExp{"payment_ref": ref}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, translateErr(err, "find booking by payment ref")
	}
	return row.toModel(), nil
}

func (s *PBStore) MarkBookingCancelled(ctx context.Context, bookingID string, at time.Time) error {
	_, err := s.db(ctx).NewQuery(`
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = {:at}, updated = {:at}
		WHERE id = {:id}
	`).Bind(dbx.Params{"id": bookingID, "at": formatTime(at)}).Execute()
	return translateErr(err, "mark booking cancelled")
}

func (s *PBStore) SetBookingStatus(ctx context.Context, bookingID, bookingStatus string) error {
	_, err := s.db(ctx).NewQuery(`
		UPDATE bookings SET status = {:status}, updated = {:now} WHERE id = {:id}
	`).Bind(dbx.Params{
		"id":     bookingID,
		"status": bookingStatus,
		"now":    formatTime(time.Now()),
	}).Execute()
	return translateErr(err, "set booking status")
}

// BookingFilter narrows ListBookings; an empty UserID means all users.
type BookingFilter struct {
	UserID string
	SlotID string
	Limit  int
	Offset int
}

func (s *PBStore) ListBookings(ctx context.Context, f BookingFilter) ([]*models.Booking, error) {
	conds := dbx.HashExp{}
	if f.UserID != "" {
		conds["user"] = f.UserID
	}
	if f.SlotID != "" {
		conds["slot"] = f.SlotID
	}
	limit := int64(f.Limit)
	if limit <= 0 {
		limit = 50
	}

	var rows []bookingRow
	err := s.db(ctx).
		Select(bookingCols...).
		From("bookings").
		Where(conds).
		OrderBy("created DESC").
		Limit(limit).
		Offset(int64(f.Offset)).
		All(&rows)
	if err != nil {
		return nil, translateErr(err, "list bookings")
	}
	bookings := make([]*models.Booking, len(rows))
	for i := range rows {
		bookings[i] = rows[i].toModel()
	}
	return bookings, nil
}

// --- waitlist ---

type waitlistRow struct {
	ID         string `db:"id"`
	User       string `db:"user"`
	Service    string `db:"service"`
	Email      string `db:"email"`
	Phone      string `db:"phone"`
	Position   int    `db:"position"`
	Status     string `db:"status"`
	NotifiedAt string `db:"notified_at"`
	ExpiresAt  string `db:"expires_at"`
	Created    string `db:"created"`
}

func (r *waitlistRow) toModel() *models.WaitlistEntry {
	return &models.WaitlistEntry{
		ID:         r.ID,
		UserID:     r.User,
		ServiceID:  r.Service,
		Email:      r.Email,
		Phone:      r.Phone,
		Position:   r.Position,
		Status:     r.Status,
		NotifiedAt: parseTimePtr(r.NotifiedAt),
		ExpiresAt:  parseTimePtr(r.ExpiresAt),
		CreatedAt:  parseTime(r.Created),
	}
}

var waitlistCols = []string{
	"id", "user", "service", "email", "phone",
	"position", "status", "notified_at", "expires_at", "created",
}

func (s *PBStore) MaxWaitlistPosition(ctx context.Context, serviceID string) (int, error) {
	var n int
	err := s.db(ctx).NewQuery(`
		SELECT COALESCE(MAX(position), 0) FROM waitlist_entries
		WHERE service = {:service} AND status = 'waiting'
	`).Bind(dbx.Params{"service": serviceID}).Row(&n)
	if err != nil {
		return 0, translateErr(err, "max waitlist position")
	}
	return n, nil
}

func (s *PBStore) CreateWaitlistEntry(ctx context.Context, e *models.WaitlistEntry) error {
	if e.ID == "" {
		e.ID = newID()
	}
	now := time.Now()
	e.CreatedAt = now
	_, err := s.db(ctx).Insert("waitlist_entries", dbx.Params{
		"id":          e.ID,
		"user":        e.UserID,
		"service":     e.ServiceID,
		"email":       e.Email,
		"phone":       e.Phone,
		"position":    e.Position,
		"status":      e.Status,
		"notified_at": "",
		"expires_at":  "",
		"created":     formatTime(now),
		"updated":     formatTime(now),
	}).Execute()
	return translateErr(err, "create waitlist entry")
}

func (s *PBStore) GetWaitlistEntry(ctx context.Context, entryID string) (*models.WaitlistEntry, error) {
	var row waitlistRow
	err := s.db(ctx).
		Select(waitlistCols...).
		From("waitlist_entries").
		Where(dbx.HashExp{"id": entryID}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrWaitlistEntryNotFound
		}
		return nil, translateErr(err, "get waitlist entry")
	}
	return row.toModel(), nil
}

func (s *PBStore) DeleteWaitlistEntry(ctx context.Context, entryID string) error {
	_, err := s.db(ctx).Delete("waitlist_entries", dbx.HashExp{"id": entryID}).Execute()
	return translateErr(err, "delete waitlist entry")
}

// ShiftWaitlistPositions closes the gap left by a removed entry: every waiting
// entry behind it moves up one place.
func (s *PBStore) ShiftWaitlistPositions(ctx context.Context, serviceID string, above int) error {
	_, err := s.db(ctx).NewQuery(`
		UPDATE waitlist_entries
		SET position = position - 1, updated = {:now}
		WHERE service = {:service} AND status = 'waiting' AND position > {:above}
	`).Bind(dbx.Params{
		"service": serviceID,
		"above":   above,
		"now":     formatTime(time.Now()),
	}).Execute()
	return translateErr(err, "shift waitlist positions")
}

func (s *PBStore) NextWaiting(ctx context.Context, serviceID string) (*models.WaitlistEntry, error) {
	var row waitlistRow
	err := s.db(ctx).
		Select(waitlistCols...).
		From("waitlist_entries").
		Where(dbx.HashExp{"service": serviceID, "status": models.WaitlistStatusWaiting}).
		OrderBy("position ASC").
		Limit(1).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, translateErr(err, "next waiting")
	}
	return row.toModel(), nil
}

func (s *PBStore) UpdateWaitlistEntry(ctx context.Context, e *models.WaitlistEntry) error {
	notifiedAt := ""
	if e.NotifiedAt != nil {
		notifiedAt = formatTime(*e.NotifiedAt)
	}
	expiresAt := ""
	if e.ExpiresAt != nil {
		expiresAt = formatTime(*e.ExpiresAt)
	}
	_, err := s.db(ctx).Update("waitlist_entries", dbx.Params{
		"position":    e.Position,
		"status":      e.Status,
		"notified_at": notifiedAt,
		"expires_at":  expiresAt,
		"updated":     formatTime(time.Now()),
	}, dbx.HashExp{"id": e.ID}).Execute()
	return translateErr(err, "update waitlist entry")
}

// ExpireOverdueNotifications flips notified entries whose window has lapsed.
// Invoked by the admin sweep endpoint, never by a background timer.
func (s *PBStore) ExpireOverdueNotifications(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db(ctx).NewQuery(`
		UPDATE waitlist_entries
		SET status = 'expired', updated = {:now}
		WHERE status = 'notified' AND expires_at != '' AND expires_at < {:now}
	`).Bind(dbx.Params{"now": formatTime(now)}).Execute()
	if err != nil {
		return 0, translateErr(err, "expire overdue notifications")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PBStore) MarkWaitlistBooked(ctx context.Context, userID, serviceID string) error {
	_, err := s.db(ctx).NewQuery(`
		UPDATE waitlist_entries
		SET status = 'booked', updated = {:now}
		WHERE user = {:user} AND service = {:service} AND status = 'notified'
	`).Bind(dbx.Params{
		"user":    userID,
		"service": serviceID,
		"now":     formatTime(time.Now()),
	}).Execute()
	return translateErr(err, "mark waitlist booked")
}

func (s *PBStore) ListWaitlist(ctx context.Context, serviceID string) ([]*models.WaitlistEntry, error) {
	var rows []waitlistRow
	err := s.db(ctx).
		Select(waitlistCols...).
		From("waitlist_entries").
		Where(dbx.HashExp{"service": serviceID}).
		OrderBy("position ASC").
		All(&rows)
	if err != nil {
		return nil, translateErr(err, "list waitlist")
	}
	entries := make([]*models.WaitlistEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].toModel()
	}
	return entries, nil
}

// --- catalog ---

type serviceRow struct {
	ID              string  `db:"id"`
	Name            string  `db:"name"`
	Description     string  `db:"description"`
	Price           float64 `db:"price"`
	DurationMinutes int     `db:"duration_minutes"`
	Active          bool    `db:"active"`
}

func (s *PBStore) GetService(ctx context.Context, serviceID string) (*models.Service, error) {
	var row serviceRow
	err := s.db(ctx).
		Select("id", "name", "description", "price", "duration_minutes", "active").
		From("services").
		Where(dbx.HashExp{"id": serviceID}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrServiceNotFound
		}
		return nil, translateErr(err, "get service")
	}
	return &models.Service{
		ID:              row.ID,
		Name:            row.Name,
		Description:     row.Description,
		Price:           row.Price,
		DurationMinutes: row.DurationMinutes,
		Active:          row.Active,
	}, nil
}

func (s *PBStore) ListServices(ctx context.Context) ([]*models.Service, error) {
	var rows []serviceRow
	err := s.db(ctx).
		Select("id", "name", "description", "price", "duration_minutes", "active").
		From("services").
		Where(dbx.HashExp{"active": true}).
		OrderBy("name ASC").
		All(&rows)
	if err != nil {
		return nil, translateErr(err, "list services")
	}
	services := make([]*models.Service, len(rows))
	for i, row := range rows {
		services[i] = &models.Service{
			ID:              row.ID,
			Name:            row.Name,
			Description:     row.Description,
			Price:           row.Price,
			DurationMinutes: row.DurationMinutes,
			Active:          row.Active,
		}
	}
	return services, nil
}

type couponRow struct {
	ID        string  `db:"id"`
	Code      string  `db:"code"`
	Kind      string  `db:"kind"`
	Value     float64 `db:"value"`
	Active    bool    `db:"active"`
	ExpiresAt string  `db:"expires_at"`
}

func (s *PBStore) FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var row couponRow
	err := s.db(ctx).
		Select("id", "code", "kind", "value", "active", "expires_at").
		From("coupons").
		Where(dbx.HashExp{"code": code}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, translateErr(err, "find coupon")
	}
	return &models.Coupon{
		ID:        row.ID,
		Code:      row.Code,
		Kind:      row.Kind,
		Value:     row.Value,
		Active:    row.Active,
		ExpiresAt: parseTimePtr(row.ExpiresAt),
	}, nil
}
