package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maison-living/backend-maison/internal/common"
	"github.com/maison-living/backend-maison/internal/obs"
)

// Lister is the optional listing capability of the order store.
type Lister interface {
	ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int32) ([]Order, error)
}

// Handler exposes customer-facing order endpoints plus the admin lifecycle
// operations.
type Handler struct {
	service *Service
	lister  Lister
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	Lister  Lister
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, lister: cfg.Lister}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type trackingRequest struct {
	Number  string `json:"number"`
	Carrier string `json:"carrier"`
	Link    string `json:"link"`
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// List handles GET /api/v1/orders for the acting customer.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order listing not configured", nil)
		return
	}
	raw, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "customer id is required", nil)
		return
	}
	customerID, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	orders, err := h.lister.ListOrdersByCustomer(r.Context(), customerID, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orders})
}

// Cancel handles POST /api/v1/orders/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	o, err := h.service.Cancel(r.Context(), id, req.Reason)
	h.countTransition("status", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// PatchStatus handles PATCH /api/v1/admin/orders/{id}/status. The request
// names the target state; the service validates the edge.
func (h *Handler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	target, valid := ParseStatus(req.Status)
	if !valid {
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_STATUS", "unknown order status", nil)
		return
	}
	o, err := h.service.UpdateStatus(r.Context(), id, target)
	h.countTransition("status", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// AddTracking handles POST /api/v1/admin/orders/{id}/tracking.
func (h *Handler) AddTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	o, err := h.service.AddTracking(r.Context(), id, Tracking{
		Number:  req.Number,
		Carrier: req.Carrier,
		Link:    req.Link,
	})
	h.countTransition("fulfillment", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Refund handles POST /api/v1/admin/orders/{id}/refund for retail orders.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	o, err := h.service.ApplyPayment(r.Context(), id, PaymentRefunded)
	h.countTransition("payment", err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) countTransition(axis string, err error) {
	if obs.OrderTransitionsTotal == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrInvalidTransition):
		result = "invalid_transition"
	case errors.Is(err, ErrConflict):
		result = "conflict"
	case err != nil:
		result = "error"
	}
	obs.OrderTransitionsTotal.WithLabelValues(axis, result).Inc()
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, ErrTrackingRequired):
		common.JSONError(w, http.StatusUnprocessableEntity, "TRACKING_REQUIRED", "tracking number is required", nil)
	case errors.Is(err, ErrConflict):
		common.JSONError(w, http.StatusConflict, "CONFLICT", "order was modified concurrently, retry", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}
