package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"event-sales-platform/internal/models"
	"event-sales-platform/internal/services"
)

// PaymentProcessor defines the payment service operations the HTTP surface needs
type PaymentProcessor interface {
	HandleWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) (*models.Order, error)
	VerifyAndFinalize(ctx context.Context, gateway, transactionID string) (*models.Order, *services.PaymentOutcome, error)
	VerifySession(ctx context.Context, sessionID string) (*models.Order, *services.PaymentOutcome, error)
	CheckStatusBySession(ctx context.Context, sessionID string) (*models.Order, services.PaymentState, error)
}

// PaymentHandler exposes webhook, callback and status endpoints
type PaymentHandler struct {
	payments PaymentProcessor
	// webhookRetryDelay is how long to wait before retrying a webhook whose
	// session was not found yet. Payment initiation and the gateway's first
	// notification can race by a moment.
	webhookRetryDelay time.Duration
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentProcessor) *PaymentHandler {
	return &PaymentHandler{
		payments:          payments,
		webhookRetryDelay: 2 * time.Second,
	}
}

// Webhook receives gateway notifications at POST /payment/webhook/{gateway}.
// It always acknowledges with 200 once the gateway is known: gateways retry
// on non-2xx, and a retry storm cannot fix a payload we could not process.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	order, err := h.payments.HandleWebhook(r.Context(), gateway, payload, r.Header)
	if err != nil && errors.Is(err, models.ErrSessionNotFound) {
		// The session may still be mid-write; one short retry covers the race
		select {
		case <-time.After(h.webhookRetryDelay):
			order, err = h.payments.HandleWebhook(r.Context(), gateway, payload, r.Header)
		case <-r.Context().Done():
		}
	}

	if err != nil {
		if errors.Is(err, models.ErrUnsupportedGateway) {
			writeError(w, http.StatusNotFound, "unknown gateway")
			return
		}
		log.Printf("webhook processing failed for gateway %s: %v", gateway, err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		return
	}

	response := map[string]string{"status": "acknowledged"}
	if order != nil {
		response["order_number"] = order.OrderNumber
	}
	writeJSON(w, http.StatusOK, response)
}

// Verify actively reconciles a transaction at POST /payment/verify. The buyer
// redirect lands here with the gateway and transaction reference.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	gateway := r.URL.Query().Get("gateway")
	transactionID := r.URL.Query().Get("transaction_id")

	if gateway == "" || transactionID == "" {
		writeError(w, http.StatusBadRequest, "gateway and transaction_id are required")
		return
	}

	order, outcome, err := h.payments.VerifyAndFinalize(r.Context(), gateway, transactionID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnsupportedGateway):
			writeError(w, http.StatusNotFound, "unknown gateway")
		case errors.Is(err, models.ErrGatewayVerification):
			writeError(w, http.StatusBadGateway, "gateway verification failed")
		case errors.Is(err, models.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "checkout session not found")
		default:
			log.Printf("verification failed for %s/%s: %v", gateway, transactionID, err)
			writeError(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}

	response := map[string]interface{}{}
	if outcome != nil {
		response["payment_status"] = outcome.Status
	}
	addOrderContext(response, order)
	writeJSON(w, http.StatusOK, response)
}

// VerifySession reconciles one session at POST /payment/sessions/{sessionID}/verify.
// The buyer's return-from-gateway page calls this when it only knows the
// session id.
func (h *PaymentHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	order, outcome, err := h.payments.VerifySession(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "checkout session expired or invalid")
		case errors.Is(err, models.ErrGatewayVerification):
			// Retryable: the gateway could not answer, the poller will catch up
			writeJSON(w, http.StatusOK, map[string]interface{}{"payment_status": services.StatePending})
		default:
			log.Printf("session verification failed for %s: %v", sessionID, err)
			writeError(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}

	response := map[string]interface{}{}
	if outcome != nil {
		response["payment_status"] = outcome.Status
	}
	addOrderContext(response, order)
	writeJSON(w, http.StatusOK, response)
}

// addOrderContext fills in the order fields a client needs to navigate after
// verification: the order itself, the originating checkout session and the
// event it belongs to.
func addOrderContext(response map[string]interface{}, order *models.Order) {
	if order == nil {
		return
	}
	response["order_number"] = order.OrderNumber
	response["order_id"] = order.ID
	response["event_id"] = order.EventID
	if order.RegistrationSessionID != "" {
		response["session_id"] = order.RegistrationSessionID
	}
}

// Status reports where a checkout session stands at GET /payment/status/{sessionID}
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	order, state, err := h.payments.CheckStatusBySession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "checkout session not found")
			return
		}
		log.Printf("status check failed for session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "status check failed")
		return
	}

	response := map[string]interface{}{"payment_status": state}
	if order != nil {
		response["order_number"] = order.OrderNumber
		response["order_id"] = order.ID
	}
	writeJSON(w, http.StatusOK, response)
}
