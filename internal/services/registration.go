package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"event-sales-platform/internal/models"
)

// TempRegistrationStore defines the draft checkout persistence operations
type TempRegistrationStore interface {
	Create(ctx context.Context, reg *models.TempRegistration) (*models.TempRegistration, error)
	Update(ctx context.Context, sessionID string, update *models.TempRegistrationUpdate) (*models.TempRegistration, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.TempRegistration, error)
	Delete(ctx context.Context, sessionID string) error
}

// PaymentInitiator starts a payment for a draft on a named gateway
type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, gateway string, reg *models.TempRegistration) (*PaymentInitiation, error)
}

// RegistrationService manages draft checkout sessions from creation through
// payment initiation. Promotion to an order is PaymentService's job.
type RegistrationService struct {
	store    TempRegistrationStore
	gateways PaymentInitiator
	ttl      time.Duration
}

// NewRegistrationService creates a new registration service. Sessions expire
// after the given TTL unless extended.
func NewRegistrationService(store TempRegistrationStore, gateways PaymentInitiator, ttl time.Duration) *RegistrationService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RegistrationService{store: store, gateways: gateways, ttl: ttl}
}

// CreateSession opens a new checkout session with a fresh session id and
// notification token
func (s *RegistrationService) CreateSession(ctx context.Context, req *models.TempRegistrationCreateRequest) (*models.TempRegistration, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	now := time.Now()
	reg := &models.TempRegistration{
		SessionID:         uuid.New().String(),
		EventID:           req.EventID,
		Attendees:         req.Attendees,
		SelectedTickets:   req.SelectedTickets,
		SelectedProducts:  req.SelectedProducts,
		TotalAmount:       req.TotalAmount,
		Currency:          req.Currency,
		NotificationToken: uuid.New().String(),
		BillingEmail:      req.BillingEmail,
		BillingName:       req.BillingName,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.ttl),
	}

	if reg.Currency == "" {
		reg.Currency = "KES"
	}

	created, err := s.store.Create(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return created, nil
}

// UpdateSession applies a partial update to a session
func (s *RegistrationService) UpdateSession(ctx context.Context, sessionID string, update *models.TempRegistrationUpdate) (*models.TempRegistration, error) {
	if err := update.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	return s.store.Update(ctx, sessionID, update)
}

// GetSession retrieves a session by its id
func (s *RegistrationService) GetSession(ctx context.Context, sessionID string) (*models.TempRegistration, error) {
	return s.store.GetBySessionID(ctx, sessionID)
}

// InitiatePayment starts a payment for a session on the named gateway and
// retains the returned references on the draft. The redirect URL is where the
// buyer goes next; the retained tokens are how the confirmation finds its way
// back.
func (s *RegistrationService) InitiatePayment(ctx context.Context, sessionID, gateway, paymentMethod string) (*models.TempRegistration, *PaymentInitiation, error) {
	reg, err := s.store.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if reg.IsExpired(time.Now()) {
		return nil, nil, fmt.Errorf("%w: checkout session has expired", models.ErrInvalidInput)
	}

	initiation, err := s.gateways.InitiatePayment(ctx, gateway, reg)
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedGateway) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", models.ErrPaymentInitiation, err)
	}

	updated, err := s.AttachGatewayReference(ctx, sessionID, gateway, paymentMethod, initiation.TransactionID, initiation.PayToken)
	if err != nil {
		return nil, nil, fmt.Errorf("payment initiated but reference not retained: %w", err)
	}

	return updated, initiation, nil
}

// AttachGatewayReference stores the tokens handed out when payment was
// initiated, so later confirmations can be matched back to the session.
func (s *RegistrationService) AttachGatewayReference(ctx context.Context, sessionID, gateway, paymentMethod, transactionID, payToken string) (*models.TempRegistration, error) {
	return s.store.Update(ctx, sessionID, &models.TempRegistrationUpdate{
		Gateway:              &gateway,
		PaymentMethod:        &paymentMethod,
		GatewayTransactionID: &transactionID,
		PayToken:             &payToken,
	})
}

// AbandonSession removes a session the buyer explicitly cancelled
func (s *RegistrationService) AbandonSession(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}
