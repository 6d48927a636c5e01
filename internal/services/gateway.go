package services

import (
	"context"
	"fmt"
	"net/http"

	"event-sales-platform/internal/models"
)

// PaymentState is the gateway-agnostic status of a payment
type PaymentState string

const (
	StatePaid    PaymentState = "paid"
	StatePending PaymentState = "pending"
	StateFailed  PaymentState = "failed"
)

// PaymentOutcome is the normalized result every gateway driver produces from
// its native webhook payload or polling response.
type PaymentOutcome struct {
	Status        PaymentState      `json:"status"`
	Amount        int               `json:"amount"` // in cents
	TransactionID string            `json:"transaction_id"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// VerifyContext carries the payment context a driver may need to re-verify a
// transaction: the expected amount and the authorization token retained on the
// draft checkout session.
type VerifyContext struct {
	Amount   int
	PayToken string
}

// PaymentInitiation is what a driver hands back when a payment is started: the
// URL the buyer is redirected to and the gateway references the draft retains
// so confirmations can be matched later.
type PaymentInitiation struct {
	RedirectURL   string `json:"redirect_url"`
	TransactionID string `json:"transaction_id"`
	PayToken      string `json:"pay_token,omitempty"`
}

// GatewayDriver translates one gateway's payment protocol into
// gateway-agnostic values. Drivers validate webhook authenticity themselves
// and report an unverifiable payload as a failed outcome rather than an error:
// webhook callers must always be able to acknowledge the gateway.
type GatewayDriver interface {
	Name() string
	InitiatePayment(ctx context.Context, reg *models.TempRegistration) (*PaymentInitiation, error)
	HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*PaymentOutcome, error)
	VerifyPayment(ctx context.Context, transactionID string, vc VerifyContext) (*PaymentOutcome, error)
}

// Dispatcher routes webhook and verification calls to the registered gateway
// drivers. It is pure translation: no persistence happens at this layer.
type Dispatcher struct {
	drivers map[string]GatewayDriver
}

// NewDispatcher creates a dispatcher over a fixed set of drivers
func NewDispatcher(drivers ...GatewayDriver) *Dispatcher {
	registry := make(map[string]GatewayDriver, len(drivers))
	for _, driver := range drivers {
		registry[driver.Name()] = driver
	}
	return &Dispatcher{drivers: registry}
}

// InitiatePayment starts a payment for a draft on the named gateway
func (d *Dispatcher) InitiatePayment(ctx context.Context, gateway string, reg *models.TempRegistration) (*PaymentInitiation, error) {
	driver, err := d.driver(gateway)
	if err != nil {
		return nil, err
	}
	return driver.InitiatePayment(ctx, reg)
}

// HandleWebhook passes a raw webhook payload to the named gateway's driver
func (d *Dispatcher) HandleWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) (*PaymentOutcome, error) {
	driver, err := d.driver(gateway)
	if err != nil {
		return nil, err
	}
	return driver.HandleWebhook(ctx, payload, headers)
}

// VerifyPayment asks the named gateway's driver for the current state of a
// transaction
func (d *Dispatcher) VerifyPayment(ctx context.Context, gateway, transactionID string, vc VerifyContext) (*PaymentOutcome, error) {
	driver, err := d.driver(gateway)
	if err != nil {
		return nil, err
	}
	return driver.VerifyPayment(ctx, transactionID, vc)
}

// Gateways returns the names of all registered gateways
func (d *Dispatcher) Gateways() []string {
	names := make([]string, 0, len(d.drivers))
	for name := range d.drivers {
		names = append(names, name)
	}
	return names
}

// driver looks up a gateway fail-closed: unknown names are a configuration
// error, not a reason to guess.
func (d *Dispatcher) driver(gateway string) (GatewayDriver, error) {
	driver, ok := d.drivers[gateway]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedGateway, gateway)
	}
	return driver, nil
}
