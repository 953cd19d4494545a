package pricing

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maison-living/backend-maison/internal/cart"
	"github.com/maison-living/backend-maison/internal/common"
	"github.com/maison-living/backend-maison/internal/coupon"
	"github.com/maison-living/backend-maison/internal/obs"
)

// Handler exposes the cart quote endpoint.
type Handler struct {
	carts  *cart.Service
	engine *Engine
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Carts  *cart.Service
	Engine *Engine
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{carts: cfg.Carts, engine: cfg.Engine}
}

// Quote handles GET /api/v1/carts/{id}/quote. The quote is recomputed from
// current configuration on every call; nothing is cached or persisted.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil || h.engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing not configured", nil)
		return
	}
	c, err := h.carts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "CART_NOT_FOUND", "cart not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
		return
	}

	start := time.Now()
	quote, err := h.engine.Quote(r.Context(), c)
	if obs.PricingQuoteDuration != nil {
		obs.PricingQuoteDuration.Observe(float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		h.writeQuoteError(w, err)
		return
	}
	if obs.CouponResolutionsTotal != nil && quote.CouponCode != "" {
		obs.CouponResolutionsTotal.WithLabelValues("ok").Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

func (h *Handler) writeQuoteError(w http.ResponseWriter, err error) {
	couponResult := ""
	defer func() {
		if obs.CouponResolutionsTotal != nil && couponResult != "" {
			obs.CouponResolutionsTotal.WithLabelValues(couponResult).Inc()
		}
	}()
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		couponResult = "not_found"
		common.JSONError(w, http.StatusUnprocessableEntity, "COUPON_NOT_FOUND", "coupon not found", nil)
	case errors.Is(err, coupon.ErrExpired):
		couponResult = "expired"
		common.JSONError(w, http.StatusUnprocessableEntity, "COUPON_EXPIRED", "coupon expired", nil)
	case errors.Is(err, coupon.ErrMinimumNotMet):
		couponResult = "minimum_not_met"
		common.JSONError(w, http.StatusUnprocessableEntity, "COUPON_MINIMUM_NOT_MET", "cart total below coupon minimum", nil)
	case errors.Is(err, coupon.ErrInvalidInput):
		couponResult = "invalid"
		common.JSONError(w, http.StatusUnprocessableEntity, "COUPON_INVALID", "invalid coupon code", nil)
	case errors.Is(err, ErrShippingOptionUnavailable):
		common.JSONError(w, http.StatusConflict, "SHIPPING_OPTION_UNAVAILABLE", "selected shipping option is no longer available", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}
