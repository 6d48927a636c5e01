package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// TempRegistration represents a draft checkout session. It holds everything the
// buyer has selected so far and the gateway tokens handed out when payment was
// initiated. The row lives until the session is promoted to an Order or until
// it expires and the cleanup job removes it.
type TempRegistration struct {
	ID                   int              `json:"id" db:"id"`
	SessionID            string           `json:"session_id" db:"session_id"`
	EventID              int              `json:"event_id" db:"event_id"`
	Attendees            []Attendee       `json:"attendees"`
	SelectedTickets      []LineItem       `json:"selected_tickets" db:"selected_tickets"`
	SelectedProducts     []LineItem       `json:"selected_products" db:"selected_products"`
	TotalAmount          int              `json:"total_amount" db:"total_amount"` // Amount in cents
	Currency             string           `json:"currency" db:"currency"`
	PaymentMethod        string           `json:"payment_method" db:"payment_method"`
	Gateway              string           `json:"gateway" db:"gateway"`
	PayToken             string           `json:"pay_token" db:"pay_token"`
	NotificationToken    string           `json:"notification_token" db:"notification_token"`
	GatewayTransactionID string           `json:"gateway_transaction_id" db:"gateway_transaction_id"`
	Shipping             *ShippingInfo    `json:"shipping,omitempty" db:"shipping"`
	PromoCode            string           `json:"promo_code" db:"promo_code"`
	BillingEmail         string           `json:"billing_email" db:"billing_email"`
	BillingName          string           `json:"billing_name" db:"billing_name"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	ExpiresAt            time.Time        `json:"expires_at" db:"expires_at"`
	ReminderEmailSentAt  *time.Time       `json:"reminder_email_sent_at,omitempty" db:"reminder_email_sent_at"`
}

// Attendee represents one attendee attached to a checkout session. The
// session_id back-reference must be cleared before the owning
// temp_registrations row is removed.
type Attendee struct {
	ID        int     `json:"id" db:"id"`
	SessionID *string `json:"session_id,omitempty" db:"session_id"`
	OrderID   *int    `json:"order_id,omitempty" db:"order_id"`
	EventID   int     `json:"event_id" db:"event_id"`
	Email     string  `json:"email" db:"email"`
	FirstName string  `json:"first_name" db:"first_name"`
	LastName  string  `json:"last_name" db:"last_name"`
}

// LineItem represents a ticket type or product selection in the cart
type LineItem struct {
	ItemID   int    `json:"item_id"`
	Name     string `json:"name"`
	Price    int    `json:"price"` // in cents
	Quantity int    `json:"quantity"`
}

// ShippingInfo represents shipping details for product line items
type ShippingInfo struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// TempRegistrationCreateRequest represents the data needed to open a checkout session
type TempRegistrationCreateRequest struct {
	EventID          int        `json:"event_id"`
	Attendees        []Attendee `json:"attendees"`
	SelectedTickets  []LineItem `json:"selected_tickets"`
	SelectedProducts []LineItem `json:"selected_products"`
	TotalAmount      int        `json:"total_amount"`
	Currency         string     `json:"currency"`
	BillingEmail     string     `json:"billing_email"`
	BillingName      string     `json:"billing_name"`
}

// TempRegistrationUpdate represents a partial update to a checkout session.
// Nil fields are left untouched, mirroring the checkout UI saving incremental
// state (shipping, promo code, amounts, gateway tokens).
type TempRegistrationUpdate struct {
	SelectedTickets      *[]LineItem   `json:"selected_tickets,omitempty"`
	SelectedProducts     *[]LineItem   `json:"selected_products,omitempty"`
	TotalAmount          *int          `json:"total_amount,omitempty"`
	PaymentMethod        *string       `json:"payment_method,omitempty"`
	Gateway              *string       `json:"gateway,omitempty"`
	PayToken             *string       `json:"pay_token,omitempty"`
	NotificationToken    *string       `json:"notification_token,omitempty"`
	GatewayTransactionID *string       `json:"gateway_transaction_id,omitempty"`
	Shipping             *ShippingInfo `json:"shipping,omitempty"`
	PromoCode            *string       `json:"promo_code,omitempty"`
	BillingEmail         *string       `json:"billing_email,omitempty"`
	BillingName          *string       `json:"billing_name,omitempty"`
	ExpiresAt            *time.Time    `json:"expires_at,omitempty"`
}

var registrationEmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Validate validates checkout session creation data
func (req *TempRegistrationCreateRequest) Validate() error {
	if req.EventID <= 0 {
		return errors.New("event id is required")
	}

	if req.TotalAmount < 0 {
		return errors.New("total amount cannot be negative")
	}

	if len(req.SelectedTickets) == 0 && len(req.SelectedProducts) == 0 {
		return errors.New("at least one ticket or product is required")
	}

	for _, item := range append(append([]LineItem{}, req.SelectedTickets...), req.SelectedProducts...) {
		if item.Quantity <= 0 {
			return errors.New("line item quantity must be positive")
		}
		if item.Price < 0 {
			return errors.New("line item price cannot be negative")
		}
	}

	if req.BillingEmail != "" && !registrationEmailRegex.MatchString(req.BillingEmail) {
		return errors.New("billing email format is invalid")
	}

	for _, attendee := range req.Attendees {
		if strings.TrimSpace(attendee.Email) == "" {
			continue
		}
		if !registrationEmailRegex.MatchString(attendee.Email) {
			return errors.New("attendee email format is invalid")
		}
	}

	return nil
}

// Validate validates a partial update
func (u *TempRegistrationUpdate) Validate() error {
	if u.TotalAmount != nil && *u.TotalAmount < 0 {
		return errors.New("total amount cannot be negative")
	}

	if u.BillingEmail != nil && *u.BillingEmail != "" && !registrationEmailRegex.MatchString(*u.BillingEmail) {
		return errors.New("billing email format is invalid")
	}

	return nil
}

// IsExpired returns true if the session is past its expiry time
func (r *TempRegistration) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// PrimaryEmail returns the address reminder emails go to: the billing email,
// falling back to the first attendee that has one.
func (r *TempRegistration) PrimaryEmail() string {
	if r.BillingEmail != "" {
		return r.BillingEmail
	}

	for _, attendee := range r.Attendees {
		if attendee.Email != "" {
			return attendee.Email
		}
	}

	return ""
}

// NeedsReminder returns true if the session qualifies for an abandoned-cart
// reminder: older than the given age, no reminder sent yet, and a reachable
// email address.
func (r *TempRegistration) NeedsReminder(now time.Time, minAge time.Duration) bool {
	if r.ReminderEmailSentAt != nil {
		return false
	}

	if r.PrimaryEmail() == "" {
		return false
	}

	return now.After(r.CreatedAt.Add(minAge))
}

// ItemCount returns the total number of ticket and product units in the cart
func (r *TempRegistration) ItemCount() int {
	count := 0
	for _, item := range r.SelectedTickets {
		count += item.Quantity
	}
	for _, item := range r.SelectedProducts {
		count += item.Quantity
	}
	return count
}
