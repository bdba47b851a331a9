package handlers

import (
	"net/http"

	"booking-system/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type WaitlistHandler struct {
	app      *pocketbase.PocketBase
	waitlist *services.WaitlistService
}

func NewWaitlistHandler(app *pocketbase.PocketBase, waitlist *services.WaitlistService) *WaitlistHandler {
	return &WaitlistHandler{app: app, waitlist: waitlist}
}

// JoinWaitlist appends the user to a full service's waitlist.
func (h *WaitlistHandler) JoinWaitlist(e *core.RequestEvent) error {
	if err := requireAuth(e); err != nil {
		return err
	}

	var req struct {
		ServiceID string `json:"service_id"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ServiceID == "" {
		return apis.NewBadRequestError("service_id is required", nil)
	}

	entry, err := h.waitlist.Join(e.Request.Context(), e.Auth.Id, req.ServiceID, req.Email, req.Phone)
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusCreated, entry)
}

// LeaveWaitlist removes the caller's own entry.
func (h *WaitlistHandler) LeaveWaitlist(e *core.RequestEvent) error {
	if err := requireAuth(e); err != nil {
		return err
	}

	if err := h.waitlist.Leave(e.Request.Context(), e.Request.PathValue("entryId"), actorFrom(e)); err != nil {
		return respondErr(err)
	}
	return e.NoContent(http.StatusNoContent)
}

// AdvanceWaitlist lets an admin promote the next waiting user manually.
func (h *WaitlistHandler) AdvanceWaitlist(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	entry, err := h.waitlist.AdvanceNext(e.Request.Context(), e.Request.PathValue("serviceId"))
	if err != nil {
		return respondErr(err)
	}
	if entry == nil {
		return e.JSON(http.StatusOK, map[string]any{"advanced": false})
	}
	return e.JSON(http.StatusOK, map[string]any{"advanced": true, "entry": entry})
}

// ExpireWaitlist is the sweep entry point for the external scheduler: flips
// overdue notified entries to expired.
func (h *WaitlistHandler) ExpireWaitlist(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	n, err := h.waitlist.ExpireOverdue(e.Request.Context())
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"expired": n})
}

// ListWaitlist shows a service's queue to admins.
func (h *WaitlistHandler) ListWaitlist(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	entries, err := h.waitlist.List(e.Request.Context(), e.Request.PathValue("serviceId"))
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusOK, entries)
}
