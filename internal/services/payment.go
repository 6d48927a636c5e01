package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"event-sales-platform/internal/models"
)

// OrderStore defines order persistence operations needed by the payment service
type OrderStore interface {
	FinalizeRegistration(ctx context.Context, reg *models.TempRegistration, details models.PaymentDetails) (*models.Order, error)
	GetByGatewayTransactionID(ctx context.Context, transactionID string) (*models.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
}

// RegistrationStore defines draft checkout lookups needed by the payment service
type RegistrationStore interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.TempRegistration, error)
	GetByNotificationToken(ctx context.Context, token string) (*models.TempRegistration, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.TempRegistration, error)
}

// GatewayVerifier routes webhook payloads and verification calls to gateway
// drivers
type GatewayVerifier interface {
	HandleWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) (*PaymentOutcome, error)
	VerifyPayment(ctx context.Context, gateway, transactionID string, vc VerifyContext) (*PaymentOutcome, error)
}

// ConfirmationSender sends the post-purchase confirmation email
type ConfirmationSender interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
}

// PaymentService reconciles payment confirmations into orders. Webhooks,
// buyer redirects and background polls all funnel through FinalizePayment;
// the order table's unique transaction index guarantees that any number of
// concurrent confirmations for one payment produce exactly one order.
type PaymentService struct {
	orders        OrderStore
	registrations RegistrationStore
	gateways      GatewayVerifier
	email         ConfirmationSender
}

// NewPaymentService creates a new payment service
func NewPaymentService(orders OrderStore, registrations RegistrationStore, gateways GatewayVerifier, email ConfirmationSender) *PaymentService {
	return &PaymentService{
		orders:        orders,
		registrations: registrations,
		gateways:      gateways,
		email:         email,
	}
}

// HandleWebhook translates a raw gateway notification and, when it reports a
// completed payment, finalizes the matching checkout session.
func (s *PaymentService) HandleWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) (*models.Order, error) {
	outcome, err := s.gateways.HandleWebhook(ctx, gateway, payload, headers)
	if err != nil {
		return nil, err
	}

	return s.FinalizePayment(ctx, gateway, outcome)
}

// FinalizePayment applies a normalized gateway outcome. Non-paid outcomes are
// a no-op; paid outcomes promote the draft into an order. Replays and races
// resolve to the already-created order.
func (s *PaymentService) FinalizePayment(ctx context.Context, gateway string, outcome *PaymentOutcome) (*models.Order, error) {
	if outcome == nil || outcome.Status != StatePaid {
		return nil, nil
	}

	reg, err := s.resolveRegistration(ctx, outcome)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			// The draft is gone. If a concurrent confirmation already promoted
			// it, this is a replay and the existing order is the answer.
			if existing, lookupErr := s.orders.GetByGatewayTransactionID(ctx, outcome.TransactionID); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	order, err := s.orders.FinalizeRegistration(ctx, reg, models.PaymentDetails{
		Gateway:       gateway,
		TransactionID: outcome.TransactionID,
		Amount:        outcome.Amount,
		PaymentMethod: reg.PaymentMethod,
		Metadata:      outcome.Metadata,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEntry) {
			// Lost the race; the winner's order is equivalent
			return order, nil
		}
		return nil, fmt.Errorf("failed to finalize payment: %w", err)
	}

	if s.email != nil {
		if emailErr := s.email.SendOrderConfirmation(ctx, order); emailErr != nil {
			log.Printf("order %s finalized but confirmation email failed: %v", order.OrderNumber, emailErr)
		}
	}

	return order, nil
}

// VerifyAndFinalize actively asks the gateway for a transaction's state and
// finalizes on a paid answer. Used by the buyer redirect path and by the
// pending-payment poller.
func (s *PaymentService) VerifyAndFinalize(ctx context.Context, gateway, transactionID string) (*models.Order, *PaymentOutcome, error) {
	if existing, err := s.orders.GetByGatewayTransactionID(ctx, transactionID); err == nil {
		return existing, &PaymentOutcome{
			Status:        StatePaid,
			Amount:        existing.TotalAmount,
			TransactionID: transactionID,
		}, nil
	}

	vc := VerifyContext{}
	if reg, err := s.registrations.GetByTransactionID(ctx, transactionID); err == nil {
		vc.Amount = reg.TotalAmount
		vc.PayToken = reg.PayToken
	}

	outcome, err := s.gateways.VerifyPayment(ctx, gateway, transactionID, vc)
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedGateway) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", models.ErrGatewayVerification, err)
	}

	order, err := s.FinalizePayment(ctx, gateway, outcome)
	if err != nil {
		return nil, outcome, err
	}

	return order, outcome, nil
}

// VerifySession reconciles one checkout session by its id: if an order
// already exists it wins, otherwise the draft's retained gateway reference is
// re-verified with the gateway and finalized on a paid answer.
func (s *PaymentService) VerifySession(ctx context.Context, sessionID string) (*models.Order, *PaymentOutcome, error) {
	if existing, err := s.orders.GetBySessionID(ctx, sessionID); err == nil {
		state := StatePending
		if existing.IsPaid() {
			state = StatePaid
		}
		return existing, &PaymentOutcome{
			Status:        state,
			Amount:        existing.TotalAmount,
			TransactionID: existing.GatewayTransactionID,
		}, nil
	}

	reg, err := s.registrations.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if reg.Gateway == "" || reg.GatewayTransactionID == "" {
		// Payment was never initiated for this draft
		return nil, &PaymentOutcome{Status: StatePending}, nil
	}

	return s.VerifyAndFinalize(ctx, reg.Gateway, reg.GatewayTransactionID)
}

// CheckStatusBySession reports where a checkout session stands: promoted to
// an order, still pending as a draft, or unknown.
func (s *PaymentService) CheckStatusBySession(ctx context.Context, sessionID string) (*models.Order, PaymentState, error) {
	order, err := s.orders.GetBySessionID(ctx, sessionID)
	if err == nil {
		state := StatePending
		if order.IsPaid() {
			state = StatePaid
		} else if order.PaymentStatus == models.PaymentFailed {
			state = StateFailed
		}
		return order, state, nil
	}
	if !errors.Is(err, models.ErrOrderNotFound) {
		return nil, StatePending, err
	}

	if _, err := s.registrations.GetBySessionID(ctx, sessionID); err != nil {
		return nil, StateFailed, err
	}

	return nil, StatePending, nil
}

// resolveRegistration locates the draft a gateway outcome belongs to. The
// session id embedded in gateway metadata is authoritative; the notification
// token and the stored transaction id are fallbacks for gateways whose
// callbacks carry less context.
func (s *PaymentService) resolveRegistration(ctx context.Context, outcome *PaymentOutcome) (*models.TempRegistration, error) {
	if sessionID := outcome.Metadata["session_id"]; sessionID != "" {
		reg, err := s.registrations.GetBySessionID(ctx, sessionID)
		if err == nil {
			return reg, nil
		}
		if !errors.Is(err, models.ErrSessionNotFound) {
			return nil, err
		}
	}

	if token := outcome.Metadata["merchant_reference"]; token != "" {
		reg, err := s.registrations.GetByNotificationToken(ctx, token)
		if err == nil {
			return reg, nil
		}
		if !errors.Is(err, models.ErrSessionNotFound) {
			return nil, err
		}
	}

	if outcome.TransactionID != "" {
		reg, err := s.registrations.GetByTransactionID(ctx, outcome.TransactionID)
		if err == nil {
			return reg, nil
		}
		if !errors.Is(err, models.ErrSessionNotFound) {
			return nil, err
		}
	}

	return nil, models.ErrSessionNotFound
}
