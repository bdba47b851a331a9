package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"booking-system/config"
	"booking-system/models"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

// PaymentFeed subscribes to the payment processor's realtime channel and
// turns settled-charge messages into PaymentConfirmation values. It is the
// event-source half of the payment-confirmed booking path; the webhook
// handler is the HTTP half. Both feed the same idempotent coordinator call.
type PaymentFeed struct {
	pn       *pubnub.PubNub
	listener *pubnub.Listener
	channel  string
	out      chan *models.PaymentConfirmation
}

func NewPaymentFeed(cfg *config.Config) *PaymentFeed {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PaymentFeedUUID))
	pnCfg.SubscribeKey = cfg.PaymentFeedSubKey
	if cfg.PaymentFeedCipherKey != "" {
		pnCfg.CipherKey = cfg.PaymentFeedCipherKey
	}

	return &PaymentFeed{
		pn:       pubnub.NewPubNub(pnCfg),
		listener: pubnub.NewListener(),
		channel:  cfg.PaymentFeedChannel,
		out:      make(chan *models.PaymentConfirmation, 16),
	}
}

// Confirmations is the stream of settled payments the wiring layer consumes.
func (f *PaymentFeed) Confirmations() <-chan *models.PaymentConfirmation {
	return f.out
}

// Run subscribes and pumps messages until ctx is cancelled.
func (f *PaymentFeed) Run(ctx context.Context) {
	f.pn.AddListener(f.listener)
	f.pn.Subscribe().Channels([]string{f.channel}).Execute()

	for {
		select {
		case st := <-f.listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				slog.Info("payment feed connected", "channel", f.channel)
			case pubnub.PNReconnectedCategory:
				slog.Info("payment feed reconnected", "channel", f.channel)
			case pubnub.PNDisconnectedCategory:
				slog.Warn("payment feed disconnected", "channel", f.channel)
			}

		case message := <-f.listener.Message:
			confirmation, err := decodeConfirmation(message.Message)
			if err != nil {
				slog.Error("undecodable payment message", "error", err)
				continue
			}
			if confirmation.Status != "success" {
				continue
			}
			f.out <- confirmation

		case <-ctx.Done():
			f.pn.Unsubscribe().Channels([]string{f.channel}).Execute()
			return
		}
	}
}

type confirmationPayload struct {
	PaymentRef string      `json:"payment_ref"`
	UserID     string      `json:"user_id"`
	ServiceID  string      `json:"service_id"`
	SlotID     string      `json:"slot_id"`
	Amount     json.Number `json:"amount"`
	Status     string      `json:"status"`
	Notes      string      `json:"notes"`
	Timestamp  string      `json:"timestamp"`
}

func decimalFromNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

func decodeConfirmation(raw any) (*models.PaymentConfirmation, error) {
	var p confirmationPayload

	switch m := raw.(type) {
	case string:
		dec := json.NewDecoder(strings.NewReader(m))
		dec.UseNumber()
		if err := dec.Decode(&p); err != nil {
			return nil, err
		}
	default:
		data, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
	}

	return p.toModel()
}

func (p *confirmationPayload) toModel() (*models.PaymentConfirmation, error) {
	amount, err := decimalFromNumber(p.Amount)
	if err != nil {
		return nil, err
	}

	ts := time.Now()
	if p.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
			ts = parsed
		}
	}

	return &models.PaymentConfirmation{
		PaymentRef: p.PaymentRef,
		UserID:     p.UserID,
		ServiceID:  p.ServiceID,
		SlotID:     p.SlotID,
		Amount:     amount,
		Status:     p.Status,
		Notes:      p.Notes,
		Timestamp:  ts,
	}, nil
}
