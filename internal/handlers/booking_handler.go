package handlers

import (
	"net/http"
	"strconv"

	"booking-system/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type BookingHandler struct {
	app      *pocketbase.PocketBase
	bookings *services.BookingService
}

func NewBookingHandler(app *pocketbase.PocketBase, bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{app: app, bookings: bookings}
}

// CreateBooking reserves a spot on a slot for the authenticated user.
func (h *BookingHandler) CreateBooking(e *core.RequestEvent) error {
	if err := requireAuth(e); err != nil {
		return err
	}

	var req struct {
		SlotID string `json:"slot_id"`
		Notes  string `json:"notes"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.SlotID == "" {
		return apis.NewBadRequestError("slot_id is required", nil)
	}

	booking, err := h.bookings.Reserve(e.Request.Context(), services.ReserveParams{
		UserID: e.Auth.Id,
		SlotID: req.SlotID,
		Notes:  req.Notes,
	})
	if err != nil {
		return respondErr(err)
	}

	return e.JSON(http.StatusCreated, booking)
}

// GetBooking returns one booking to its owner or an admin.
func (h *BookingHandler) GetBooking(e *core.RequestEvent) error {
	if err := requireAuth(e); err != nil {
		return err
	}

	booking, err := h.bookings.Get(e.Request.Context(), e.Request.PathValue("bookingId"), actorFrom(e))
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusOK, booking)
}

// ListBookings returns the caller's bookings; admins see everyone's.
func (h *BookingHandler) ListBookings(e *core.RequestEvent) error {
	if err := requireAuth(e); err != nil {
		return err
	}

	q := e.Request.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	filter := services.BookingFilter{
		UserID: q.Get("user_id"),
		SlotID: q.Get("slot_id"),
		Limit:  limit,
		Offset: offset,
	}

	bookings, err := h.bookings.List(e.Request.Context(), filter, actorFrom(e))
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusOK, bookings)
}

// CancelBooking releases the booking's spot, subject to the 24h deadline.
func (h *BookingHandler) CancelBooking(e *core.RequestEvent) error {
	if err := requireAuth(e); err != nil {
		return err
	}

	booking, err := h.bookings.Cancel(e.Request.Context(), e.Request.PathValue("bookingId"), actorFrom(e))
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusOK, booking)
}

// CompleteBooking marks a booking completed after the service took place.
func (h *BookingHandler) CompleteBooking(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	booking, err := h.bookings.Complete(e.Request.Context(), e.Request.PathValue("bookingId"), actorFrom(e))
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusOK, booking)
}
