package shipping

import (
	"net/http"

	"github.com/maison-living/backend-maison/internal/common"
)

// Handler exposes the shipping option listing.
type Handler struct {
	resolver *Resolver
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Resolver *Resolver
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{resolver: cfg.Resolver}
}

// Options handles GET /api/v1/shipping/options?country=US&region=CA. An
// unsupported destination returns an empty list, not an error.
func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "shipping resolver not configured", nil)
		return
	}
	country := r.URL.Query().Get("country")
	region := r.URL.Query().Get("region")
	if country == "" || region == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "country and region are required", nil)
		return
	}
	options, err := h.resolver.OptionsFor(r.Context(), country, region)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
		return
	}
	if options == nil {
		options = []Option{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": options})
}
