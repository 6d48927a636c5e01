package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"event-sales-platform/internal/models"
)

// uniqueViolation is the PostgreSQL error code raised when an insert hits a
// unique index. The order table's gateway_transaction_id index turns that
// code into the system's idempotency signal.
const uniqueViolation = "23505"

// OrderRepository handles finalized sale data operations
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, event_id, registration_session_id, order_number, total_amount,
		payment_status, payment_method, gateway, gateway_transaction_id, gateway_metadata,
		sales_channel, cash_session_id, ticket_counter_id, cashier_id,
		billing_email, billing_name, created_at, updated_at`

// FinalizeRegistration promotes a draft checkout session into an Order in a
// single transaction: insert the order, point attendee rows at it, clear their
// session back-references, then delete the draft.
//
// Concurrent finalize attempts for the same payment serialize on the unique
// index over gateway_transaction_id: the loser's insert fails with a unique
// violation, which is reported as models.ErrDuplicateEntry together with the
// already-existing order. Callers treat that as idempotent success.
func (r *OrderRepository) FinalizeRegistration(ctx context.Context, reg *models.TempRegistration, details models.PaymentDetails) (*models.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	metadata, err := marshalMetadata(details.Metadata)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	status := models.PaymentPaid
	if reg.TotalAmount == 0 {
		status = models.PaymentFree
	}

	row := tx.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO orders (event_id, registration_session_id, order_number, total_amount,
			payment_status, payment_method, gateway, gateway_transaction_id, gateway_metadata,
			sales_channel, billing_email, billing_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING %s`, orderColumns),
		reg.EventID,
		reg.SessionID,
		models.GenerateOrderNumber(),
		reg.TotalAmount,
		status,
		details.PaymentMethod,
		details.Gateway,
		nullableString(details.TransactionID),
		metadata,
		models.ChannelOnline,
		reg.BillingEmail,
		reg.BillingName,
		now,
		now,
	)

	order, err := scanOrder(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			existing, lookupErr := r.GetByGatewayTransactionID(ctx, details.TransactionID)
			if lookupErr != nil {
				return nil, fmt.Errorf("duplicate finalize but existing order lookup failed: %w", lookupErr)
			}
			return existing, models.ErrDuplicateEntry
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// Attendees move from the draft to the order; the session back-reference
	// must be gone before the draft row is deleted.
	_, err = tx.ExecContext(ctx, `
		UPDATE attendees
		SET order_id = $1, session_id = NULL
		WHERE session_id = $2`,
		order.ID, reg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign attendees: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM temp_registrations WHERE session_id = $1`, reg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete promoted registration: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order finalization: %w", err)
	}

	return order, nil
}

// Create creates a counter-sale order directly, without a checkout session
func (r *OrderRepository) Create(ctx context.Context, req *models.OrderCreateRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO orders (event_id, registration_session_id, order_number, total_amount,
			payment_status, payment_method, gateway, gateway_transaction_id, gateway_metadata,
			sales_channel, cash_session_id, ticket_counter_id, cashier_id,
			billing_email, billing_name, created_at, updated_at)
		VALUES ($1, '', $2, $3, $4, $5, '', NULL, '{}', $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING %s`, orderColumns),
		req.EventID,
		models.GenerateOrderNumber(),
		req.TotalAmount,
		req.PaymentStatus,
		req.PaymentMethod,
		req.SalesChannel,
		req.CashSessionID,
		req.TicketCounterID,
		req.CashierID,
		req.BillingEmail,
		req.BillingName,
		now,
		now,
	)

	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return order, nil
}

// GetByID retrieves an order by ID
func (r *OrderRepository) GetByID(ctx context.Context, id int) (*models.Order, error) {
	return r.getByQuery(ctx, fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns), id)
}

// GetByGatewayTransactionID retrieves an order by its cross-gateway
// idempotency key
func (r *OrderRepository) GetByGatewayTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	if transactionID == "" {
		return nil, models.ErrOrderNotFound
	}
	return r.getByQuery(ctx, fmt.Sprintf(`SELECT %s FROM orders WHERE gateway_transaction_id = $1`, orderColumns), transactionID)
}

// GetBySessionID retrieves the order a checkout session was promoted into
func (r *OrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return r.getByQuery(ctx, fmt.Sprintf(`SELECT %s FROM orders WHERE registration_session_id = $1`, orderColumns), sessionID)
}

// HasPaidOrderForEmail reports whether the given email already completed a
// purchase for the event. Used to exclude converted visitors from
// abandoned-cart reminders.
func (r *OrderRepository) HasPaidOrderForEmail(ctx context.Context, eventID int, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM orders
			WHERE event_id = $1 AND billing_email = $2 AND payment_status IN ('paid', 'free')
		)`, eventID, email).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check converted visitor: %w", err)
	}

	return exists, nil
}

// SalesByPaymentMethod aggregates paid order totals for a cash session,
// grouped by payment method
func (r *OrderRepository) SalesByPaymentMethod(ctx context.Context, cashSessionID int) (map[string]int, int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM orders
		WHERE cash_session_id = $1 AND payment_status = 'paid'
		GROUP BY payment_method`, cashSessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to aggregate cash session sales: %w", err)
	}
	defer rows.Close()

	sales := make(map[string]int)
	orderCount := 0

	for rows.Next() {
		var method string
		var count, total int
		if err := rows.Scan(&method, &count, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan sales row: %w", err)
		}
		sales[method] = total
		orderCount += count
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating sales rows: %w", err)
	}

	return sales, orderCount, nil
}

func (r *OrderRepository) getByQuery(ctx context.Context, query string, arg interface{}) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

type orderRowScanner interface {
	Scan(dest ...interface{}) error
}

// scanOrder reads a row in orderColumns order. The transaction id column is
// NULL for counter sales and the metadata column holds JSONB.
func scanOrder(row orderRowScanner) (*models.Order, error) {
	order := &models.Order{}
	var transactionID sql.NullString
	var metadata []byte

	err := row.Scan(
		&order.ID,
		&order.EventID,
		&order.RegistrationSessionID,
		&order.OrderNumber,
		&order.TotalAmount,
		&order.PaymentStatus,
		&order.PaymentMethod,
		&order.Gateway,
		&transactionID,
		&metadata,
		&order.SalesChannel,
		&order.CashSessionID,
		&order.TicketCounterID,
		&order.CashierID,
		&order.BillingEmail,
		&order.BillingName,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.GatewayTransactionID = transactionID.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &order.GatewayMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal gateway metadata: %w", err)
		}
	}

	return order, nil
}

// nullableString maps the empty string to NULL so the unique index on
// gateway_transaction_id ignores orders without a gateway payment.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway metadata: %w", err)
	}

	return data, nil
}
