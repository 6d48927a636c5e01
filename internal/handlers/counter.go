package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"event-sales-platform/internal/models"
	"event-sales-platform/internal/services"
)

const counterSessionName = "counter_session"

// CounterHandler exposes the cashier-facing counter endpoints. The cashier's
// open cash session id rides in a cookie session so counter sale requests
// don't need to repeat it.
type CounterHandler struct {
	cashSessions *services.CashSessionService
	store        sessions.Store
}

// NewCounterHandler creates a new counter handler
func NewCounterHandler(cashSessions *services.CashSessionService, store sessions.Store) *CounterHandler {
	return &CounterHandler{cashSessions: cashSessions, store: store}
}

// StartSession opens a cash session at POST /counter/sessions
func (h *CounterHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req models.CashSessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.cashSessions.StartSession(r.Context(), &req)
	if err != nil {
		if errors.Is(err, models.ErrCashSessionConflict) {
			writeError(w, http.StatusConflict, "cashier or counter already has an open session")
			return
		}
		log.Printf("cash session start failed: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if cookie, cookieErr := h.store.Get(r, counterSessionName); cookieErr == nil {
		cookie.Values["cash_session_id"] = session.ID
		cookie.Values["cashier_id"] = session.CashierID
		if saveErr := cookie.Save(r, w); saveErr != nil {
			log.Printf("failed to save counter cookie session: %v", saveErr)
		}
	}

	writeJSON(w, http.StatusCreated, session)
}

// CloseSession closes a session at POST /counter/sessions/{id}/close
func (h *CounterHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req struct {
		ClosingCash int `json:"closing_cash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.cashSessions.CloseSession(r.Context(), id, req.ClosingCash)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrCashSessionNotFound):
			writeError(w, http.StatusNotFound, "cash session not found")
		case errors.Is(err, models.ErrCashSessionConflict):
			writeError(w, http.StatusConflict, "cash session is already closed")
		case errors.Is(err, models.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("cash session close failed: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to close cash session")
		}
		return
	}

	if cookie, cookieErr := h.store.Get(r, counterSessionName); cookieErr == nil {
		delete(cookie.Values, "cash_session_id")
		if saveErr := cookie.Save(r, w); saveErr != nil {
			log.Printf("failed to save counter cookie session: %v", saveErr)
		}
	}

	writeJSON(w, http.StatusOK, session)
}

// SessionReport returns the audit report at GET /counter/sessions/{id}/report
func (h *CounterHandler) SessionReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	report, err := h.cashSessions.GetSessionReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrCashSessionNotFound) {
			writeError(w, http.StatusNotFound, "cash session not found")
			return
		}
		log.Printf("cash session report failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to build session report")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// RecordSale records a counter sale at POST /counter/sales. The cash session
// comes from the request body, falling back to the cashier's cookie session.
func (h *CounterHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req models.OrderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.SalesChannel = models.ChannelCounter

	if req.CashSessionID == nil {
		if cookie, cookieErr := h.store.Get(r, counterSessionName); cookieErr == nil {
			if id, ok := cookie.Values["cash_session_id"].(int); ok && id > 0 {
				req.CashSessionID = &id
			}
		}
	}

	order, err := h.cashSessions.RecordCounterSale(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrCashSessionNotFound):
			writeError(w, http.StatusNotFound, "cash session not found")
		case errors.Is(err, models.ErrCashSessionConflict):
			writeError(w, http.StatusConflict, "cash session is not open")
		case errors.Is(err, models.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("counter sale failed: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to record sale")
		}
		return
	}

	writeJSON(w, http.StatusCreated, order)
}
