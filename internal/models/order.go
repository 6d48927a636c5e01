package models

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// PaymentStatus represents the payment state of an order
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFree    PaymentStatus = "free"
	PaymentFailed  PaymentStatus = "failed"
)

// SalesChannel represents where an order was sold
type SalesChannel string

const (
	ChannelOnline  SalesChannel = "online"
	ChannelCounter SalesChannel = "counter"
)

// Order represents a finalized sale. Orders are created exactly once per real
// payment: the unique index on gateway_transaction_id is the idempotency
// contract the reconciliation engine upholds. Orders are never deleted and
// their payment status is never mutated after creation.
type Order struct {
	ID                    int               `json:"id" db:"id"`
	EventID               int               `json:"event_id" db:"event_id"`
	RegistrationSessionID string            `json:"registration_session_id" db:"registration_session_id"`
	OrderNumber           string            `json:"order_number" db:"order_number"`
	TotalAmount           int               `json:"total_amount" db:"total_amount"` // Amount in cents
	PaymentStatus         PaymentStatus     `json:"payment_status" db:"payment_status"`
	PaymentMethod         string            `json:"payment_method" db:"payment_method"`
	Gateway               string            `json:"gateway" db:"gateway"`
	GatewayTransactionID  string            `json:"gateway_transaction_id" db:"gateway_transaction_id"`
	GatewayMetadata       map[string]string `json:"gateway_metadata" db:"gateway_metadata"`
	SalesChannel          SalesChannel      `json:"sales_channel" db:"sales_channel"`
	CashSessionID         *int              `json:"cash_session_id,omitempty" db:"cash_session_id"`
	TicketCounterID       *int              `json:"ticket_counter_id,omitempty" db:"ticket_counter_id"`
	CashierID             *int              `json:"cashier_id,omitempty" db:"cashier_id"`
	BillingEmail          string            `json:"billing_email" db:"billing_email"`
	BillingName           string            `json:"billing_name" db:"billing_name"`
	CreatedAt             time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at" db:"updated_at"`
}

// PaymentDetails carries the verified gateway result an order is created from
type PaymentDetails struct {
	Gateway       string
	TransactionID string
	Amount        int
	PaymentMethod string
	Metadata      map[string]string
}

// OrderCreateRequest represents the data needed to create a counter-sale order
type OrderCreateRequest struct {
	EventID         int           `json:"event_id"`
	TotalAmount     int           `json:"total_amount"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentMethod   string        `json:"payment_method"`
	SalesChannel    SalesChannel  `json:"sales_channel"`
	CashSessionID   *int          `json:"cash_session_id,omitempty"`
	TicketCounterID *int          `json:"ticket_counter_id,omitempty"`
	CashierID       *int          `json:"cashier_id,omitempty"`
	BillingEmail    string        `json:"billing_email"`
	BillingName     string        `json:"billing_name"`
}

var (
	// Order number format: ORD-YYYYMMDD-XXXXXX (e.g., ORD-20240101-123456)
	orderNumberRegex = regexp.MustCompile(`^ORD-\d{8}-\d{6}$`)
	orderEmailRegex  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// Validate validates order creation data
func (req *OrderCreateRequest) Validate() error {
	if req.EventID <= 0 {
		return errors.New("event id is required")
	}

	if err := validateOrderTotalAmount(req.TotalAmount); err != nil {
		return err
	}

	if err := validatePaymentStatus(req.PaymentStatus); err != nil {
		return err
	}

	if err := validateSalesChannel(req.SalesChannel); err != nil {
		return err
	}

	if req.SalesChannel == ChannelCounter && req.CashSessionID == nil {
		return errors.New("counter sales require a cash session")
	}

	if req.BillingEmail != "" {
		if len(req.BillingEmail) > 255 {
			return errors.New("billing email must be less than 255 characters")
		}
		if !orderEmailRegex.MatchString(req.BillingEmail) {
			return errors.New("billing email format is invalid")
		}
	}

	if len(req.BillingName) > 255 {
		return errors.New("billing name must be less than 255 characters")
	}

	return nil
}

// validateOrderTotalAmount validates an order total amount
func validateOrderTotalAmount(totalAmount int) error {
	if totalAmount < 0 {
		return errors.New("total amount cannot be negative")
	}

	// Maximum order amount of KSh 1,000,000 (100,000,000 cents)
	if totalAmount > 100000000 {
		return errors.New("total amount exceeds maximum order value")
	}

	return nil
}

// validatePaymentStatus validates a payment status
func validatePaymentStatus(status PaymentStatus) error {
	switch status {
	case PaymentPending, PaymentPaid, PaymentFree, PaymentFailed:
		return nil
	default:
		return errors.New("invalid payment status")
	}
}

// validateSalesChannel validates a sales channel
func validateSalesChannel(channel SalesChannel) error {
	switch channel {
	case ChannelOnline, ChannelCounter:
		return nil
	default:
		return errors.New("invalid sales channel")
	}
}

// ValidateOrderNumber checks the ORD-YYYYMMDD-XXXXXX format
func ValidateOrderNumber(orderNumber string) error {
	if orderNumber == "" {
		return errors.New("order number is required")
	}

	if !orderNumberRegex.MatchString(orderNumber) {
		return errors.New("order number format is invalid")
	}

	return nil
}

// GenerateOrderNumber generates a unique order number
func GenerateOrderNumber() string {
	now := time.Now()
	dateStr := now.Format("20060102")

	// Generate a 6-digit random number using crypto/rand for better uniqueness
	max := big.NewInt(1000000)
	randomNum, err := rand.Int(rand.Reader, max)
	if err != nil {
		// Fallback to timestamp-based generation if crypto/rand fails
		timestamp := now.UnixNano()
		randomPart := timestamp % 1000000
		return fmt.Sprintf("ORD-%s-%06d", dateStr, randomPart)
	}

	return fmt.Sprintf("ORD-%s-%06d", dateStr, randomNum.Int64())
}

// IsPaid returns true if the order is paid or free
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentFree
}

// IsCounterSale returns true if the order was sold at a physical counter
func (o *Order) IsCounterSale() bool {
	return o.SalesChannel == ChannelCounter
}

// TotalAmountInCurrency returns the total amount in the main currency as a float
func (o *Order) TotalAmountInCurrency() float64 {
	return float64(o.TotalAmount) / 100.0
}

// PaymentStatusDisplayName returns a human-readable payment status
func (o *Order) PaymentStatusDisplayName() string {
	switch o.PaymentStatus {
	case PaymentPending:
		return "Pending Payment"
	case PaymentPaid:
		return "Paid"
	case PaymentFree:
		return "Free"
	case PaymentFailed:
		return "Payment Failed"
	default:
		return string(o.PaymentStatus)
	}
}

// NormalizedBillingName trims whitespace for display
func (o *Order) NormalizedBillingName() string {
	return strings.TrimSpace(o.BillingName)
}
