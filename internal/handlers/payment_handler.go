package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"booking-system/config"
	"booking-system/internal/services"
	"booking-system/models"
	"booking-system/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

// PaymentHandler is the webhook counterpart of the realtime payment feed.
// Processors that cannot hold a PubNub subscription POST confirmations here
// instead; both paths end in ConfirmFromPayment.
type PaymentHandler struct {
	app      *pocketbase.PocketBase
	bookings *services.BookingService
	cfg      *config.Config
}

func NewPaymentHandler(app *pocketbase.PocketBase, bookings *services.BookingService, cfg *config.Config) *PaymentHandler {
	return &PaymentHandler{app: app, bookings: bookings, cfg: cfg}
}

// Webhook verifies and applies a payment confirmation. The caller signs the
// raw body with HMAC-SHA256 in X-Signature and sends its shared secret in
// X-Webhook-Secret; the secret is checked against a bcrypt hash so the plain
// value never lives in our config.
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Unreadable body", err)
	}

	secret := e.Request.Header.Get("X-Webhook-Secret")
	if bcrypt.CompareHashAndPassword([]byte(h.cfg.WebhookSecretHash), []byte(secret)) != nil {
		return apis.NewUnauthorizedError("Invalid webhook secret", nil)
	}

	signature := e.Request.Header.Get("X-Signature")
	if !utils.VerifyHmac256(body, []byte(h.cfg.WebhookHMACKey), signature) {
		return apis.NewUnauthorizedError("Invalid signature", nil)
	}

	var confirmation models.PaymentConfirmation
	if err := json.Unmarshal(body, &confirmation); err != nil {
		return apis.NewBadRequestError("Invalid payload", err)
	}
	if confirmation.PaymentRef == "" || confirmation.SlotID == "" || confirmation.UserID == "" {
		return apis.NewBadRequestError("payment_ref, user_id and slot_id are required", nil)
	}

	if confirmation.Status != "success" {
		slog.Info("ignoring non-success payment confirmation",
			"payment_ref", confirmation.PaymentRef, "status", confirmation.Status)
		return e.JSON(http.StatusOK, map[string]any{"accepted": false})
	}

	booking, err := h.bookings.ConfirmFromPayment(e.Request.Context(), &confirmation)
	if err != nil {
		return respondErr(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"accepted": true, "booking": booking})
}
