package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// EventSettingsRepository reads per-event configuration. Events without a
// settings row use the defaults.
type EventSettingsRepository struct {
	db *sql.DB
}

// NewEventSettingsRepository creates a new event settings repository
func NewEventSettingsRepository(db *sql.DB) *EventSettingsRepository {
	return &EventSettingsRepository{db: db}
}

// RemindersEnabled reports whether abandoned-cart reminders are enabled for an
// event. Absence of a settings row means enabled.
func (r *EventSettingsRepository) RemindersEnabled(ctx context.Context, eventID int) (bool, error) {
	var enabled bool
	err := r.db.QueryRowContext(ctx, `
		SELECT abandoned_cart_reminders
		FROM event_settings
		WHERE event_id = $1`, eventID).Scan(&enabled)

	if err != nil {
		if err == sql.ErrNoRows {
			return true, nil
		}
		return false, fmt.Errorf("failed to load event settings: %w", err)
	}

	return enabled, nil
}

// SetRemindersEnabled upserts the reminder opt-out for an event
func (r *EventSettingsRepository) SetRemindersEnabled(ctx context.Context, eventID int, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_settings (event_id, abandoned_cart_reminders)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO UPDATE SET abandoned_cart_reminders = $2`,
		eventID, enabled)

	if err != nil {
		return fmt.Errorf("failed to save event settings: %w", err)
	}

	return nil
}
