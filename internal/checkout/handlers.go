package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/maison-living/backend-maison/internal/cart"
	"github.com/maison-living/backend-maison/internal/common"
	"github.com/maison-living/backend-maison/internal/coupon"
	"github.com/maison-living/backend-maison/internal/obs"
	"github.com/maison-living/backend-maison/internal/order"
	"github.com/maison-living/backend-maison/internal/pricing"
)

// Handler exposes the checkout confirmation endpoint.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

type confirmRequest struct {
	CartID  string        `json:"cartId"`
	Channel string        `json:"channel"`
	Address order.Address `json:"address"`
}

// Confirm handles POST /api/v1/checkout. The route is wrapped in the
// Idempotency-Key middleware so retried submissions cannot double-order.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	channel := order.Channel(req.Channel)
	if channel == "" {
		channel = order.ChannelRetail
	}
	if channel != order.ChannelRetail && channel != order.ChannelWholesale {
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_CHANNEL", "channel must be retail or wholesale", nil)
		return
	}
	customerID := uuid.Nil
	if id, ok := common.CustomerID(r.Context()); ok {
		parsed, err := uuid.Parse(id)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
			return
		}
		customerID = parsed
	}

	o, err := h.service.Confirm(r.Context(), Input{
		CartID:     req.CartID,
		CustomerID: customerID,
		Channel:    channel,
		Address:    req.Address,
	})
	h.countCheckout(channel, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

func (h *Handler) countCheckout(channel order.Channel, err error) {
	if obs.CheckoutTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	obs.CheckoutTotal.WithLabelValues(string(channel), result).Inc()
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "CART_NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart has no lines", nil)
	case errors.Is(err, ErrShippingRequired):
		common.JSONError(w, http.StatusUnprocessableEntity, "SHIPPING_REQUIRED", "select a shipping option before checkout", nil)
	case errors.Is(err, ErrAddressRequired):
		common.JSONError(w, http.StatusUnprocessableEntity, "ADDRESS_REQUIRED", "shipping address is incomplete", nil)
	case errors.Is(err, pricing.ErrShippingOptionUnavailable):
		common.JSONError(w, http.StatusConflict, "SHIPPING_OPTION_UNAVAILABLE", "selected shipping option is no longer available", nil)
	case errors.Is(err, coupon.ErrNotFound), errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrMinimumNotMet), errors.Is(err, coupon.ErrInvalidInput):
		common.JSONError(w, http.StatusUnprocessableEntity, "COUPON_REJECTED", "applied coupon is no longer valid", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}
