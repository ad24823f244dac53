package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soukly/storefront-checkout/internal/service"
	"github.com/soukly/storefront-checkout/pkg/httputil"
	"github.com/soukly/storefront-checkout/pkg/middleware"
	"github.com/soukly/storefront-checkout/pkg/validator"
)

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// UpdateFormRequest is the JSON request body for updating the shipping form.
// Field-format validation is deliberately deferred to the continue step so
// a partially filled form can always be saved.
type UpdateFormRequest struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Street            string `json:"street"`
	City              string `json:"city"`
	Governorate       string `json:"governorate"`
	PostalCode        string `json:"postal_code"`
	Notes             string `json:"notes"`
	PersistNewAddress bool   `json:"persist_new_address"`
}

// SelectAddressRequest is the JSON request body for selecting a saved address.
type SelectAddressRequest struct {
	AddressID string `json:"address_id" validate:"required"`
}

// --- Handlers ---

// Start handles POST /api/v1/checkout
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Start(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: session, Warning: session.Warning})
}

// Get handles GET /api/v1/checkout/{id}
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Get(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session, Warning: session.Warning})
}

// UpdateForm handles PUT /api/v1/checkout/{id}/form
func (h *CheckoutHandler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	var req UpdateFormRequest
	if !decodeBody(w, r, &req) {
		return
	}

	update := service.FormUpdate{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Email:             req.Email,
		Phone:             req.Phone,
		Street:            req.Street,
		City:              req.City,
		Governorate:       req.Governorate,
		PostalCode:        req.PostalCode,
		Notes:             req.Notes,
		PersistNewAddress: req.PersistNewAddress,
	}

	session, err := h.service.UpdateForm(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), update)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session, Warning: session.Warning})
}

// SelectAddress handles POST /api/v1/checkout/{id}/select-address
func (h *CheckoutHandler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	var req SelectAddressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	session, err := h.service.SelectAddress(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.AddressID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session, Warning: session.Warning})
}

// SelectNew handles POST /api/v1/checkout/{id}/select-new
func (h *CheckoutHandler) SelectNew(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.SelectNew(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session, Warning: session.Warning})
}

// Continue handles POST /api/v1/checkout/{id}/continue
func (h *CheckoutHandler) Continue(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.ContinueToReview(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session, Warning: session.Warning})
}

// Back handles POST /api/v1/checkout/{id}/back
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Back(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session, Warning: session.Warning})
}

// PlaceOrder handles POST /api/v1/checkout/{id}/place-order
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.PlaceOrder(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session, Warning: session.Warning})
}

// Retry handles POST /api/v1/checkout/{id}/retry
func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Retry(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session, Warning: session.Warning})
}

// decodeBody reads a JSON request body into v, writing the error response
// itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}
	return true
}
