package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"event-sales-platform/internal/models"
)

// CashSessionRepository handles cash drawer session data operations
type CashSessionRepository struct {
	db *sql.DB
}

// NewCashSessionRepository creates a new cash session repository
func NewCashSessionRepository(db *sql.DB) *CashSessionRepository {
	return &CashSessionRepository{db: db}
}

const cashSessionColumns = `id, cashier_id, ticket_counter_id, event_id, organization_id,
		opening_cash, closing_cash, status, opening_time, closing_time`

// Create opens a new cash session. Partial unique indexes on (cashier_id) and
// (ticket_counter_id) WHERE status = 'open' enforce the one-open-session rule
// even under concurrent starts; a violation surfaces as
// models.ErrCashSessionConflict.
func (r *CashSessionRepository) Create(ctx context.Context, req *models.CashSessionCreateRequest) (*models.CashSession, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	session := &models.CashSession{}
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO cash_sessions (cashier_id, ticket_counter_id, event_id, organization_id,
			opening_cash, status, opening_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s`, cashSessionColumns),
		req.CashierID,
		req.TicketCounterID,
		req.EventID,
		req.OrganizationID,
		req.OpeningCash,
		models.CashSessionOpen,
		time.Now(),
	).Scan(
		&session.ID,
		&session.CashierID,
		&session.TicketCounterID,
		&session.EventID,
		&session.OrganizationID,
		&session.OpeningCash,
		&session.ClosingCash,
		&session.Status,
		&session.OpeningTime,
		&session.ClosingTime,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, models.ErrCashSessionConflict
		}
		return nil, fmt.Errorf("failed to create cash session: %w", err)
	}

	return session, nil
}

// GetByID retrieves a cash session by ID
func (r *CashSessionRepository) GetByID(ctx context.Context, id int) (*models.CashSession, error) {
	session := &models.CashSession{}
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM cash_sessions WHERE id = $1`, cashSessionColumns), id).Scan(
		&session.ID,
		&session.CashierID,
		&session.TicketCounterID,
		&session.EventID,
		&session.OrganizationID,
		&session.OpeningCash,
		&session.ClosingCash,
		&session.Status,
		&session.OpeningTime,
		&session.ClosingTime,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrCashSessionNotFound
		}
		return nil, fmt.Errorf("failed to get cash session: %w", err)
	}

	return session, nil
}

// Close transitions an open session to closed, stamping the counted cash and
// closing time. The status guard in the WHERE clause makes the transition
// single-shot: a second close finds zero open rows.
func (r *CashSessionRepository) Close(ctx context.Context, id int, closingCash int, closingTime time.Time) (*models.CashSession, error) {
	session := &models.CashSession{}
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE cash_sessions
		SET status = $2, closing_cash = $3, closing_time = $4
		WHERE id = $1 AND status = $5
		RETURNING %s`, cashSessionColumns),
		id,
		models.CashSessionClosed,
		closingCash,
		closingTime,
		models.CashSessionOpen,
	).Scan(
		&session.ID,
		&session.CashierID,
		&session.TicketCounterID,
		&session.EventID,
		&session.OrganizationID,
		&session.OpeningCash,
		&session.ClosingCash,
		&session.Status,
		&session.OpeningTime,
		&session.ClosingTime,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			// Distinguish "already closed" from "never existed" for the caller
			if _, getErr := r.GetByID(ctx, id); getErr == nil {
				return nil, models.ErrCashSessionConflict
			}
			return nil, models.ErrCashSessionNotFound
		}
		return nil, fmt.Errorf("failed to close cash session: %w", err)
	}

	return session, nil
}
