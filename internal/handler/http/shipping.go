package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soukly/storefront-checkout/internal/shipping"
	"github.com/soukly/storefront-checkout/pkg/httputil"
)

// ShippingHandler serves the static shipping reference data.
type ShippingHandler struct {
	logger *slog.Logger
}

// NewShippingHandler creates a new shipping HTTP handler.
func NewShippingHandler(logger *slog.Logger) *ShippingHandler {
	return &ShippingHandler{logger: logger}
}

// ListGovernorates handles GET /api/v1/shipping
func (h *ShippingHandler) ListGovernorates(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"governorates": shipping.Governorates(),
	}})
}

// Quote handles GET /api/v1/shipping/{governorate}
func (h *ShippingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	quote, err := shipping.QuoteFor(chi.URLParam(r, "governorate"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()},
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: quote})
}
