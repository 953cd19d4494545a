package wholesale

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maison-living/backend-maison/internal/common"
)

// Admin is the tier assignment capability of the store.
type Admin interface {
	Store
	SetCustomerTier(ctx context.Context, customerID uuid.UUID, tier Tier) error
	RemoveCustomerTier(ctx context.Context, customerID uuid.UUID) error
}

// Handler exposes the admin tier assignment endpoints. Tier changes only
// affect future price computations; existing orders keep their frozen prices.
type Handler struct {
	store Admin
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Store Admin
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{store: cfg.Store}
}

type assignRequest struct {
	Tier string `json:"tier"`
}

// GetTier handles GET /api/v1/admin/customers/{id}/tier.
func (h *Handler) GetTier(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customerID(w, r)
	if !ok {
		return
	}
	tier, err := h.store.GetCustomerTier(r.Context(), customerID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"tier": tier}})
}

// AssignTier handles PUT /api/v1/admin/customers/{id}/tier.
func (h *Handler) AssignTier(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customerID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	tier, err := ParseTier(req.Tier)
	if err != nil {
		if errors.Is(err, ErrUnknownTier) {
			common.JSONError(w, http.StatusUnprocessableEntity, "UNKNOWN_TIER", "tier must be starter, growth or enterprise", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
		return
	}
	if err := h.store.SetCustomerTier(r.Context(), customerID, tier); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"tier": tier}})
}

// RemoveTier handles DELETE /api/v1/admin/customers/{id}/tier.
func (h *Handler) RemoveTier(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customerID(w, r)
	if !ok {
		return
	}
	if err := h.store.RemoveCustomerTier(r.Context(), customerID); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) customerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "wholesale store not configured", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return uuid.Nil, false
	}
	return id, true
}
