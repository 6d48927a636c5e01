package services

import (
	"context"
	"fmt"
	"time"

	"event-sales-platform/internal/models"
)

// CashSessionStore defines cash session persistence operations
type CashSessionStore interface {
	Create(ctx context.Context, req *models.CashSessionCreateRequest) (*models.CashSession, error)
	GetByID(ctx context.Context, id int) (*models.CashSession, error)
	Close(ctx context.Context, id int, closingCash int, closingTime time.Time) (*models.CashSession, error)
}

// CounterOrderStore covers the order operations the counter needs: creating
// counter-sale orders and aggregating them per payment method
type CounterOrderStore interface {
	Create(ctx context.Context, req *models.OrderCreateRequest) (*models.Order, error)
	SalesByPaymentMethod(ctx context.Context, cashSessionID int) (map[string]int, int, error)
}

// CashSessionService manages cashier shifts at physical ticket counters.
// The database's partial unique indexes enforce the one-open-session rule;
// this layer adds reporting and the discrepancy math.
type CashSessionService struct {
	sessions CashSessionStore
	orders   CounterOrderStore
}

// NewCashSessionService creates a new cash session service
func NewCashSessionService(sessions CashSessionStore, orders CounterOrderStore) *CashSessionService {
	return &CashSessionService{sessions: sessions, orders: orders}
}

// StartSession opens a cash session for a cashier at a counter
func (s *CashSessionService) StartSession(ctx context.Context, req *models.CashSessionCreateRequest) (*models.CashSession, error) {
	session, err := s.sessions.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	return session, nil
}

// CloseSession closes an open session with the counted drawer amount
func (s *CashSessionService) CloseSession(ctx context.Context, id int, closingCash int) (*models.CashSession, error) {
	if closingCash < 0 {
		return nil, fmt.Errorf("%w: closing cash cannot be negative", models.ErrInvalidInput)
	}

	return s.sessions.Close(ctx, id, closingCash, time.Now())
}

// GetSession retrieves a cash session by id
func (s *CashSessionService) GetSession(ctx context.Context, id int) (*models.CashSession, error) {
	return s.sessions.GetByID(ctx, id)
}

// GetSessionReport builds the audit report for a session: sales per payment
// method, the cash the drawer should hold, and the discrepancy once the
// session is closed.
func (s *CashSessionService) GetSessionReport(ctx context.Context, id int) (*models.CashSessionReport, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	salesByMethod, orderCount, err := s.orders.SalesByPaymentMethod(ctx, id)
	if err != nil {
		return nil, err
	}

	totalSales := 0
	for _, amount := range salesByMethod {
		totalSales += amount
	}

	cashSales := salesByMethod["cash"]
	expectedCash := session.OpeningCash + cashSales

	report := &models.CashSessionReport{
		Session:       session,
		OrderCount:    orderCount,
		SalesByMethod: salesByMethod,
		CashSales:     cashSales,
		TotalSales:    totalSales,
		ExpectedCash:  expectedCash,
	}

	if session.ClosingCash != nil {
		discrepancy := *session.ClosingCash - expectedCash
		report.Discrepancy = &discrepancy
	}

	return report, nil
}

// RecordCounterSale records a sale made at the counter against an open cash
// session
func (s *CashSessionService) RecordCounterSale(ctx context.Context, req *models.OrderCreateRequest) (*models.Order, error) {
	if req.CashSessionID == nil {
		return nil, fmt.Errorf("%w: counter sale requires a cash session", models.ErrInvalidInput)
	}

	session, err := s.sessions.GetByID(ctx, *req.CashSessionID)
	if err != nil {
		return nil, err
	}

	if !session.IsOpen() {
		return nil, models.ErrCashSessionConflict
	}

	return s.orders.Create(ctx, req)
}
