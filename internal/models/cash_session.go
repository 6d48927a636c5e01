package models

import (
	"errors"
	"time"
)

// CashSessionStatus represents the state of a cash drawer session
type CashSessionStatus string

const (
	CashSessionOpen   CashSessionStatus = "open"
	CashSessionClosed CashSessionStatus = "closed"
)

// CashSession represents a cashier's shift at a ticket counter. At most one
// open session may exist per cashier and per counter at any time. The
// open -> closed transition is terminal.
type CashSession struct {
	ID              int               `json:"id" db:"id"`
	CashierID       int               `json:"cashier_id" db:"cashier_id"`
	TicketCounterID int               `json:"ticket_counter_id" db:"ticket_counter_id"`
	EventID         int               `json:"event_id" db:"event_id"`
	OrganizationID  int               `json:"organization_id" db:"organization_id"`
	OpeningCash     int               `json:"opening_cash" db:"opening_cash"` // Amount in cents
	ClosingCash     *int              `json:"closing_cash,omitempty" db:"closing_cash"`
	Status          CashSessionStatus `json:"status" db:"status"`
	OpeningTime     time.Time         `json:"opening_time" db:"opening_time"`
	ClosingTime     *time.Time        `json:"closing_time,omitempty" db:"closing_time"`
}

// CashSessionCreateRequest represents the data needed to open a cash session
type CashSessionCreateRequest struct {
	CashierID       int `json:"cashier_id"`
	TicketCounterID int `json:"ticket_counter_id"`
	EventID         int `json:"event_id"`
	OrganizationID  int `json:"organization_id"`
	OpeningCash     int `json:"opening_cash"`
}

// CashSessionReport aggregates paid orders for a session and computes the
// drawer discrepancy for audit purposes.
type CashSessionReport struct {
	Session        *CashSession   `json:"session"`
	OrderCount     int            `json:"order_count"`
	SalesByMethod  map[string]int `json:"sales_by_method"` // payment method -> cents
	CashSales      int            `json:"cash_sales"`
	TotalSales     int            `json:"total_sales"`
	ExpectedCash   int            `json:"expected_cash"`
	Discrepancy    *int           `json:"discrepancy,omitempty"` // only once closed
}

// Validate validates cash session creation data
func (req *CashSessionCreateRequest) Validate() error {
	if req.CashierID <= 0 {
		return errors.New("cashier id is required")
	}

	if req.TicketCounterID <= 0 {
		return errors.New("ticket counter id is required")
	}

	if req.EventID <= 0 {
		return errors.New("event id is required")
	}

	if req.OpeningCash < 0 {
		return errors.New("opening cash cannot be negative")
	}

	return nil
}

// IsOpen returns true if the session is still open
func (s *CashSession) IsOpen() bool {
	return s.Status == CashSessionOpen
}

// CanBeClosed returns true if the session can transition to closed
func (s *CashSession) CanBeClosed() bool {
	return s.Status == CashSessionOpen
}
