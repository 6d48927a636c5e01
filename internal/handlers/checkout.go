package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"event-sales-platform/internal/models"
	"event-sales-platform/internal/services"
)

// CheckoutHandler exposes draft checkout session endpoints
type CheckoutHandler struct {
	registrations *services.RegistrationService
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(registrations *services.RegistrationService) *CheckoutHandler {
	return &CheckoutHandler{registrations: registrations}
}

// Create opens a checkout session at POST /checkout/sessions
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.TempRegistrationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reg, err := h.registrations.CreateSession(r.Context(), &req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("checkout session creation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create checkout session")
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// Update applies a partial update at PATCH /checkout/sessions/{sessionID}
func (h *CheckoutHandler) Update(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var update models.TempRegistrationUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reg, err := h.registrations.UpdateSession(r.Context(), sessionID, &update)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "checkout session not found")
		case errors.Is(err, models.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("checkout session update failed: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to update checkout session")
		}
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// Get retrieves a session at GET /checkout/sessions/{sessionID}
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	reg, err := h.registrations.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "checkout session not found")
			return
		}
		log.Printf("checkout session lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load checkout session")
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// InitiatePayment starts a gateway payment at POST /checkout/sessions/{sessionID}/pay.
// The response carries the redirect URL the buyer continues to.
func (h *CheckoutHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Gateway       string `json:"gateway"`
		PaymentMethod string `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Gateway == "" {
		writeError(w, http.StatusBadRequest, "gateway is required")
		return
	}

	reg, initiation, err := h.registrations.InitiatePayment(r.Context(), sessionID, req.Gateway, req.PaymentMethod)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "checkout session not found")
		case errors.Is(err, models.ErrUnsupportedGateway):
			writeError(w, http.StatusBadRequest, "unsupported gateway")
		case errors.Is(err, models.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, models.ErrPaymentInitiation):
			log.Printf("payment initiation failed for session %s: %v", sessionID, err)
			writeError(w, http.StatusBadGateway, "payment initiation failed")
		default:
			log.Printf("payment initiation failed for session %s: %v", sessionID, err)
			writeError(w, http.StatusInternalServerError, "payment initiation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":     reg.SessionID,
		"gateway":        reg.Gateway,
		"redirect_url":   initiation.RedirectURL,
		"transaction_id": initiation.TransactionID,
	})
}

// Delete abandons a session at DELETE /checkout/sessions/{sessionID}
func (h *CheckoutHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.registrations.AbandonSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "checkout session not found")
			return
		}
		log.Printf("checkout session deletion failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete checkout session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
