package payment

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/maison-living/backend-maison/internal/common"
	"github.com/maison-living/backend-maison/internal/obs"
	"github.com/maison-living/backend-maison/internal/order"
)

// Webhook handles payment provider callbacks: signature verification, replay
// protection and the payment-axis transition on the order.
type Webhook struct {
	Orders    *order.Service
	Provider  Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
}

// statusFor translates provider vocabulary onto the payment axis.
func statusFor(raw string) (order.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "settlement", "capture", "paid":
		return order.PaymentPaid, true
	case "refund", "refunded":
		return order.PaymentRefunded, true
	case "overdue":
		return order.PaymentOverdue, true
	default:
		return "", false
	}
}

// Handle processes POST /api/v1/webhooks/payment. Replayed callbacks are
// rejected with 409 before any order state is touched; replaying the same
// payment status through a fresh callback is a harmless no-op at the service
// level.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil || h.Provider == nil {
		h.count("not_configured")
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.count("invalid_body")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	result, err := h.Provider.VerifyWebhook(r, body)
	if err != nil {
		h.count("invalid")
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !result.Valid {
		h.count("bad_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:payment:%s", common.Sha256Hex(string(body)))
		ok, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			h.count("replay_store_error")
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			h.count("replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}

	orderID, err := uuid.Parse(result.OrderID)
	if err != nil {
		h.count("invalid")
		common.JSONError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "order id is not a UUID", nil)
		return
	}
	target, known := statusFor(result.Status)
	if !known {
		h.count("unknown_status")
		common.JSONError(w, http.StatusUnprocessableEntity, "UNKNOWN_STATUS", "unrecognised payment status", nil)
		return
	}

	o, err := h.Orders.ApplyPayment(r.Context(), orderID, target)
	switch {
	case err == nil:
		h.count("ok")
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"orderId":       o.ID,
			"paymentStatus": o.Payment,
		}})
	case errors.Is(err, order.ErrNotFound):
		h.count("order_not_found")
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
	case errors.Is(err, order.ErrInvalidTransition):
		h.count("invalid_transition")
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_TRANSITION", err.Error(), nil)
	default:
		h.count("error")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}

func (h Webhook) count(result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(result).Inc()
	}
}
