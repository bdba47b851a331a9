package handlers

import (
	"log/slog"
	"net/http"

	"booking-system/internal/services"
	"booking-system/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// respondErr turns service errors into the stable envelope the UI branches
// on. Business rejections pass through with their code; anything else is a
// system fault, logged and masked.
func respondErr(err error) error {
	if code := status.Code(err); code != "" {
		return apis.NewApiError(status.HTTPStatus(err), err.Error(), map[string]any{
			"code": code,
		})
	}
	slog.Error("request failed", "error", err)
	return apis.NewApiError(http.StatusInternalServerError, "Something went wrong", nil)
}

func actorFrom(e *core.RequestEvent) services.Actor {
	actor := services.Actor{Admin: e.HasSuperuserAuth()}
	if e.Auth != nil {
		actor.ID = e.Auth.Id
	}
	return actor
}

func requireAuth(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	return nil
}

func requireAdmin(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Admin only", nil)
	}
	return nil
}
