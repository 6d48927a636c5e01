package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"event-sales-platform/internal/models"
)

// TempRegistrationRepository handles draft checkout session data operations
type TempRegistrationRepository struct {
	db *sql.DB
}

// NewTempRegistrationRepository creates a new temp registration repository
func NewTempRegistrationRepository(db *sql.DB) *TempRegistrationRepository {
	return &TempRegistrationRepository{db: db}
}

const tempRegistrationColumns = `id, session_id, event_id, selected_tickets, selected_products,
		total_amount, currency, payment_method, gateway, pay_token, notification_token,
		gateway_transaction_id, shipping, promo_code, billing_email, billing_name,
		created_at, expires_at, reminder_email_sent_at`

// Create inserts a new checkout session together with its attendee rows
func (r *TempRegistrationRepository) Create(ctx context.Context, reg *models.TempRegistration) (*models.TempRegistration, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tickets, err := json.Marshal(reg.SelectedTickets)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selected tickets: %w", err)
	}

	products, err := json.Marshal(reg.SelectedProducts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selected products: %w", err)
	}

	shipping, err := marshalShipping(reg.Shipping)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO temp_registrations (session_id, event_id, selected_tickets, selected_products,
			total_amount, currency, payment_method, gateway, pay_token, notification_token,
			gateway_transaction_id, shipping, promo_code, billing_email, billing_name,
			created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at`

	err = tx.QueryRowContext(
		ctx,
		query,
		reg.SessionID,
		reg.EventID,
		tickets,
		products,
		reg.TotalAmount,
		reg.Currency,
		reg.PaymentMethod,
		reg.Gateway,
		reg.PayToken,
		reg.NotificationToken,
		reg.GatewayTransactionID,
		shipping,
		reg.PromoCode,
		reg.BillingEmail,
		reg.BillingName,
		reg.CreatedAt,
		reg.ExpiresAt,
	).Scan(&reg.ID, &reg.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create temp registration: %w", err)
	}

	for i := range reg.Attendees {
		attendee := &reg.Attendees[i]
		attendee.SessionID = &reg.SessionID
		attendee.EventID = reg.EventID

		err = tx.QueryRowContext(ctx, `
			INSERT INTO attendees (session_id, event_id, email, first_name, last_name)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			reg.SessionID, reg.EventID, attendee.Email, attendee.FirstName, attendee.LastName,
		).Scan(&attendee.ID)

		if err != nil {
			return nil, fmt.Errorf("failed to create attendee: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit temp registration creation: %w", err)
	}

	return reg, nil
}

// Update applies a partial update to a checkout session, keyed by session id.
// Nil fields in the update are left untouched.
func (r *TempRegistrationRepository) Update(ctx context.Context, sessionID string, update *models.TempRegistrationUpdate) (*models.TempRegistration, error) {
	if err := update.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	setClauses := []string{}
	args := []interface{}{}
	argIndex := 1

	addSet := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if update.SelectedTickets != nil {
		data, err := json.Marshal(*update.SelectedTickets)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal selected tickets: %w", err)
		}
		addSet("selected_tickets", data)
	}

	if update.SelectedProducts != nil {
		data, err := json.Marshal(*update.SelectedProducts)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal selected products: %w", err)
		}
		addSet("selected_products", data)
	}

	if update.TotalAmount != nil {
		addSet("total_amount", *update.TotalAmount)
	}

	if update.PaymentMethod != nil {
		addSet("payment_method", *update.PaymentMethod)
	}

	if update.Gateway != nil {
		addSet("gateway", *update.Gateway)
	}

	if update.PayToken != nil {
		addSet("pay_token", *update.PayToken)
	}

	if update.NotificationToken != nil {
		addSet("notification_token", *update.NotificationToken)
	}

	if update.GatewayTransactionID != nil {
		addSet("gateway_transaction_id", *update.GatewayTransactionID)
	}

	if update.Shipping != nil {
		data, err := marshalShipping(update.Shipping)
		if err != nil {
			return nil, err
		}
		addSet("shipping", data)
	}

	if update.PromoCode != nil {
		addSet("promo_code", *update.PromoCode)
	}

	if update.BillingEmail != nil {
		addSet("billing_email", *update.BillingEmail)
	}

	if update.BillingName != nil {
		addSet("billing_name", *update.BillingName)
	}

	if update.ExpiresAt != nil {
		addSet("expires_at", *update.ExpiresAt)
	}

	if len(setClauses) == 0 {
		return r.GetBySessionID(ctx, sessionID)
	}

	query := fmt.Sprintf(`
		UPDATE temp_registrations
		SET %s
		WHERE session_id = $%d
		RETURNING %s`,
		strings.Join(setClauses, ", "), argIndex, tempRegistrationColumns)

	args = append(args, sessionID)

	reg, err := r.scanRegistration(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to update temp registration: %w", err)
	}

	if err := r.loadAttendees(ctx, reg); err != nil {
		return nil, err
	}

	return reg, nil
}

// GetBySessionID retrieves a checkout session by its client-visible session id
func (r *TempRegistrationRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.TempRegistration, error) {
	return r.getByColumn(ctx, "session_id", sessionID)
}

// GetByNotificationToken retrieves a checkout session by its gateway notification token
func (r *TempRegistrationRepository) GetByNotificationToken(ctx context.Context, token string) (*models.TempRegistration, error) {
	if token == "" {
		return nil, models.ErrSessionNotFound
	}
	return r.getByColumn(ctx, "notification_token", token)
}

// GetByTransactionID retrieves a checkout session by the gateway transaction id
// recorded when payment was initiated
func (r *TempRegistrationRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.TempRegistration, error) {
	if transactionID == "" {
		return nil, models.ErrSessionNotFound
	}
	return r.getByColumn(ctx, "gateway_transaction_id", transactionID)
}

// Delete removes a checkout session after clearing attendee back-references
func (r *TempRegistrationRepository) Delete(ctx context.Context, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Attendee rows reference temp_registrations.session_id; clear first.
	_, err = tx.ExecContext(ctx, `UPDATE attendees SET session_id = NULL WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear attendee references: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM temp_registrations WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete temp registration: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrSessionNotFound
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit temp registration deletion: %w", err)
	}

	return nil
}

// ReminderCandidates selects sessions eligible for an abandoned-cart reminder:
// older than the cutoff, no reminder sent, and a billing or attendee email on
// file. The batch size bounds one job run.
func (r *TempRegistrationRepository) ReminderCandidates(ctx context.Context, createdBefore time.Time, limit int) ([]*models.TempRegistration, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM temp_registrations
		WHERE created_at < $1
		  AND reminder_email_sent_at IS NULL
		  AND (billing_email <> '' OR EXISTS (
			SELECT 1 FROM attendees a
			WHERE a.session_id = temp_registrations.session_id AND a.email <> ''))
		ORDER BY created_at ASC
		LIMIT $2`, tempRegistrationColumns)

	return r.queryRegistrations(ctx, query, createdBefore, limit)
}

// MarkReminderSent stamps the reminder time and extends the session expiry so
// the buyer can still complete checkout after the reminder.
func (r *TempRegistrationRepository) MarkReminderSent(ctx context.Context, sessionID string, sentAt, newExpiry time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE temp_registrations
		SET reminder_email_sent_at = $2, expires_at = $3
		WHERE session_id = $1`,
		sessionID, sentAt, newExpiry)

	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

// CleanupExpired removes all sessions past their expiry. Attendee
// back-references are cleared before the rows are deleted; the ordering is a
// correctness requirement imposed by the foreign key, not an optimization.
func (r *TempRegistrationRepository) CleanupExpired(ctx context.Context, now time.Time) (attendeesDetached, sessionsDeleted int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	detached, err := tx.ExecContext(ctx, `
		UPDATE attendees
		SET session_id = NULL
		WHERE session_id IN (
			SELECT session_id FROM temp_registrations WHERE expires_at < $1
		)`, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clear attendee references: %w", err)
	}

	deleted, err := tx.ExecContext(ctx, `DELETE FROM temp_registrations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete expired registrations: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit expired session cleanup: %w", err)
	}

	detachedCount, _ := detached.RowsAffected()
	deletedCount, _ := deleted.RowsAffected()

	return int(detachedCount), int(deletedCount), nil
}

// PendingByGateway selects sessions that initiated payment on the given
// gateway and are still awaiting confirmation. Used by the pending-payment
// poller to compensate for missed webhooks.
func (r *TempRegistrationRepository) PendingByGateway(ctx context.Context, gateway string, limit int) ([]*models.TempRegistration, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM temp_registrations
		WHERE gateway = $1
		  AND gateway_transaction_id <> ''
		  AND expires_at > NOW()
		ORDER BY created_at ASC
		LIMIT $2`, tempRegistrationColumns)

	return r.queryRegistrations(ctx, query, gateway, limit)
}

func (r *TempRegistrationRepository) getByColumn(ctx context.Context, column, value string) (*models.TempRegistration, error) {
	query := fmt.Sprintf(`SELECT %s FROM temp_registrations WHERE %s = $1`, tempRegistrationColumns, column)

	reg, err := r.scanRegistration(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get temp registration by %s: %w", column, err)
	}

	if err := r.loadAttendees(ctx, reg); err != nil {
		return nil, err
	}

	return reg, nil
}

func (r *TempRegistrationRepository) queryRegistrations(ctx context.Context, query string, args ...interface{}) ([]*models.TempRegistration, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query temp registrations: %w", err)
	}
	defer rows.Close()

	var registrations []*models.TempRegistration
	for rows.Next() {
		reg, err := r.scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan temp registration: %w", err)
		}
		registrations = append(registrations, reg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating temp registrations: %w", err)
	}

	for _, reg := range registrations {
		if err := r.loadAttendees(ctx, reg); err != nil {
			return nil, err
		}
	}

	return registrations, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TempRegistrationRepository) scanRegistration(row rowScanner) (*models.TempRegistration, error) {
	reg := &models.TempRegistration{}
	var tickets, products []byte
	var shipping sql.NullString

	err := row.Scan(
		&reg.ID,
		&reg.SessionID,
		&reg.EventID,
		&tickets,
		&products,
		&reg.TotalAmount,
		&reg.Currency,
		&reg.PaymentMethod,
		&reg.Gateway,
		&reg.PayToken,
		&reg.NotificationToken,
		&reg.GatewayTransactionID,
		&shipping,
		&reg.PromoCode,
		&reg.BillingEmail,
		&reg.BillingName,
		&reg.CreatedAt,
		&reg.ExpiresAt,
		&reg.ReminderEmailSentAt,
	)
	if err != nil {
		return nil, err
	}

	if len(tickets) > 0 {
		if err := json.Unmarshal(tickets, &reg.SelectedTickets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal selected tickets: %w", err)
		}
	}

	if len(products) > 0 {
		if err := json.Unmarshal(products, &reg.SelectedProducts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal selected products: %w", err)
		}
	}

	if shipping.Valid && shipping.String != "" {
		reg.Shipping = &models.ShippingInfo{}
		if err := json.Unmarshal([]byte(shipping.String), reg.Shipping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shipping info: %w", err)
		}
	}

	return reg, nil
}

func (r *TempRegistrationRepository) loadAttendees(ctx context.Context, reg *models.TempRegistration) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, order_id, event_id, email, first_name, last_name
		FROM attendees
		WHERE session_id = $1
		ORDER BY id ASC`, reg.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load attendees: %w", err)
	}
	defer rows.Close()

	reg.Attendees = nil
	for rows.Next() {
		var attendee models.Attendee
		err := rows.Scan(
			&attendee.ID,
			&attendee.SessionID,
			&attendee.OrderID,
			&attendee.EventID,
			&attendee.Email,
			&attendee.FirstName,
			&attendee.LastName,
		)
		if err != nil {
			return fmt.Errorf("failed to scan attendee: %w", err)
		}
		reg.Attendees = append(reg.Attendees, attendee)
	}

	return rows.Err()
}

func marshalShipping(shipping *models.ShippingInfo) (interface{}, error) {
	if shipping == nil {
		return nil, nil
	}

	data, err := json.Marshal(shipping)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shipping info: %w", err)
	}

	return data, nil
}
