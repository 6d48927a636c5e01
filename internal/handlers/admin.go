package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"event-sales-platform/internal/scheduler"
)

// EventSettingsStore persists per-event configuration
type EventSettingsStore interface {
	RemindersEnabled(ctx context.Context, eventID int) (bool, error)
	SetRemindersEnabled(ctx context.Context, eventID int, enabled bool) error
}

// AdminHandler exposes operational endpoints
type AdminHandler struct {
	scheduler *scheduler.Scheduler
	settings  EventSettingsStore
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sched *scheduler.Scheduler, settings EventSettingsStore) *AdminHandler {
	return &AdminHandler{scheduler: sched, settings: settings}
}

// Jobs reports background job status at GET /admin/jobs
func (h *AdminHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// Health is a liveness probe at GET /health
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetEventSettings reports per-event settings at GET /admin/events/{eventID}/settings
func (h *AdminHandler) GetEventSettings(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.Atoi(chi.URLParam(r, "eventID"))
	if err != nil || eventID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	enabled, err := h.settings.RemindersEnabled(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load event settings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id":                 eventID,
		"abandoned_cart_reminders": enabled,
	})
}

// UpdateEventSettings updates per-event settings at PUT /admin/events/{eventID}/settings
func (h *AdminHandler) UpdateEventSettings(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.Atoi(chi.URLParam(r, "eventID"))
	if err != nil || eventID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req struct {
		AbandonedCartReminders *bool `json:"abandoned_cart_reminders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AbandonedCartReminders == nil {
		writeError(w, http.StatusBadRequest, "abandoned_cart_reminders is required")
		return
	}

	if err := h.settings.SetRemindersEnabled(r.Context(), eventID, *req.AbandonedCartReminders); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save event settings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id":                 eventID,
		"abandoned_cart_reminders": *req.AbandonedCartReminders,
	})
}
