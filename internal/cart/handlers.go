package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maison-living/backend-maison/internal/common"
	"github.com/maison-living/backend-maison/internal/money"
)

// Handler exposes the cart session endpoints.
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

type addLineRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	SKU       string `json:"sku"`
	Material  string `json:"material"`
	UnitPrice int64  `json:"unitPrice"`
	Qty       int    `json:"qty"`
}

type updateQtyRequest struct {
	Qty int `json:"qty"`
}

type couponRequest struct {
	Code string `json:"code"`
}

type destinationRequest struct {
	Country  string `json:"country"`
	RegionID string `json:"regionId"`
}

type selectShippingRequest struct {
	OptionID string `json:"optionId"`
}

// Create handles POST /api/v1/carts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	customerID, _ := common.CustomerID(r.Context())
	c, err := h.service.Create(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// Get handles GET /api/v1/carts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// AddLine handles POST /api/v1/carts/{id}/lines.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	c, err := h.service.AddLine(r.Context(), chi.URLParam(r, "id"), Line{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		SKU:       req.SKU,
		Material:  req.Material,
		UnitPrice: money.Cents(req.UnitPrice, h.service.Currency),
		Qty:       req.Qty,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// UpdateLineQty handles PATCH /api/v1/carts/{id}/lines/{variantId}.
func (h *Handler) UpdateLineQty(w http.ResponseWriter, r *http.Request) {
	var req updateQtyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	c, err := h.service.UpdateLineQty(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "variantId"), req.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// RemoveLine handles DELETE /api/v1/carts/{id}/lines/{variantId}.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.RemoveLine(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "variantId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// ApplyCoupon handles POST /api/v1/carts/{id}/coupon.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	c, err := h.service.ApplyCoupon(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// RemoveCoupon handles DELETE /api/v1/carts/{id}/coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.RemoveCoupon(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// SetDestination handles PUT /api/v1/carts/{id}/destination.
func (h *Handler) SetDestination(w http.ResponseWriter, r *http.Request) {
	var req destinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	c, err := h.service.SetDestination(r.Context(), chi.URLParam(r, "id"), Destination{
		Country:  req.Country,
		RegionID: req.RegionID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// SelectShipping handles PUT /api/v1/carts/{id}/shipping.
func (h *Handler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	var req selectShippingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	c, err := h.service.SelectShipping(r.Context(), chi.URLParam(r, "id"), req.OptionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Clear handles DELETE /api/v1/carts/{id}.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "CART_NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}
