package handlers

import (
	"net/http"
	"time"

	"booking-system/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type SlotHandler struct {
	app   *pocketbase.PocketBase
	slots *services.SlotService
}

func NewSlotHandler(app *pocketbase.PocketBase, slots *services.SlotService) *SlotHandler {
	return &SlotHandler{app: app, slots: slots}
}

// ListSlots returns upcoming slots for a service.
func (h *SlotHandler) ListSlots(e *core.RequestEvent) error {
	serviceID := e.Request.PathValue("serviceId")
	if serviceID == "" {
		return apis.NewBadRequestError("Service ID is required", nil)
	}

	slots, err := h.slots.List(e.Request.Context(), serviceID, time.Now())
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"slots": slots,
		"total": len(slots),
	})
}

// GetSlot returns one slot with its live occupancy.
func (h *SlotHandler) GetSlot(e *core.RequestEvent) error {
	slot, err := h.slots.Get(e.Request.Context(), e.Request.PathValue("slotId"))
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusOK, slot)
}

// CreateSlot adds a single slot for a service.
func (h *SlotHandler) CreateSlot(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	var req struct {
		ServiceID string    `json:"service_id"`
		StartTime time.Time `json:"start_time"`
		Capacity  int       `json:"capacity"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Capacity < 1 {
		return apis.NewBadRequestError("capacity must be positive", nil)
	}

	slot, err := h.slots.Create(e.Request.Context(), req.ServiceID, req.StartTime, req.Capacity)
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusCreated, slot)
}

// CreateSlotsBulk adds evenly spaced slots over a date range, skipping
// windows already occupied.
func (h *SlotHandler) CreateSlotsBulk(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	var req struct {
		ServiceID       string    `json:"service_id"`
		From            time.Time `json:"from"`
		Until           time.Time `json:"until"`
		IntervalMinutes int       `json:"interval_minutes"`
		Capacity        int       `json:"capacity"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Capacity < 1 {
		return apis.NewBadRequestError("capacity must be positive", nil)
	}
	if !req.Until.After(req.From) {
		return apis.NewBadRequestError("until must be after from", nil)
	}

	created, err := h.slots.CreateBulk(
		e.Request.Context(),
		req.ServiceID,
		req.From,
		req.Until,
		time.Duration(req.IntervalMinutes)*time.Minute,
		req.Capacity,
	)
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusCreated, map[string]any{
		"created": created,
		"total":   len(created),
	})
}

// DeleteSlot removes a slot; refused while non-cancelled bookings reference it.
func (h *SlotHandler) DeleteSlot(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	if err := h.slots.Delete(e.Request.Context(), e.Request.PathValue("slotId")); err != nil {
		return respondErr(err)
	}
	return e.NoContent(http.StatusNoContent)
}

// SetSlotAvailability flips the admin open/close switch on a slot.
func (h *SlotHandler) SetSlotAvailability(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	var req struct {
		Available bool `json:"available"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.slots.SetAvailable(e.Request.Context(), e.Request.PathValue("slotId"), req.Available); err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"available": req.Available})
}
