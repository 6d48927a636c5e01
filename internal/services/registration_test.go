package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-sales-platform/internal/models"
)

// MockDraftStore backs RegistrationService tests
type MockDraftStore struct {
	mu       sync.Mutex
	sessions map[string]*models.TempRegistration
}

func NewMockDraftStore() *MockDraftStore {
	return &MockDraftStore{sessions: make(map[string]*models.TempRegistration)}
}

func (m *MockDraftStore) Create(ctx context.Context, reg *models.TempRegistration) (*models.TempRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg.ID = len(m.sessions) + 1
	m.sessions[reg.SessionID] = reg
	return reg, nil
}

func (m *MockDraftStore) Update(ctx context.Context, sessionID string, update *models.TempRegistrationUpdate) (*models.TempRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}

	if update.TotalAmount != nil {
		reg.TotalAmount = *update.TotalAmount
	}
	if update.Gateway != nil {
		reg.Gateway = *update.Gateway
	}
	if update.PaymentMethod != nil {
		reg.PaymentMethod = *update.PaymentMethod
	}
	if update.GatewayTransactionID != nil {
		reg.GatewayTransactionID = *update.GatewayTransactionID
	}
	if update.PayToken != nil {
		reg.PayToken = *update.PayToken
	}
	if update.PromoCode != nil {
		reg.PromoCode = *update.PromoCode
	}

	return reg, nil
}

func (m *MockDraftStore) GetBySessionID(ctx context.Context, sessionID string) (*models.TempRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg, ok := m.sessions[sessionID]; ok {
		return reg, nil
	}
	return nil, models.ErrSessionNotFound
}

func (m *MockDraftStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return models.ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

// MockPaymentInitiator scripts gateway initiation results
type MockPaymentInitiator struct {
	initiation *PaymentInitiation
	err        error
	calls      int
}

func (m *MockPaymentInitiator) InitiatePayment(ctx context.Context, gateway string, reg *models.TempRegistration) (*PaymentInitiation, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.initiation, nil
}

func TestCreateSession(t *testing.T) {
	store := NewMockDraftStore()
	svc := NewRegistrationService(store, nil, 24*time.Hour)

	reg, err := svc.CreateSession(context.Background(), &models.TempRegistrationCreateRequest{
		EventID:     1,
		TotalAmount: 5000,
		SelectedTickets: []models.LineItem{
			{ItemID: 1, Name: "General", Price: 2500, Quantity: 2},
		},
		BillingEmail: "buyer@example.com",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, reg.SessionID)
	assert.NotEmpty(t, reg.NotificationToken)
	assert.NotEqual(t, reg.SessionID, reg.NotificationToken)
	assert.Equal(t, "KES", reg.Currency)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), reg.ExpiresAt, time.Minute)
}

func TestCreateSession_InvalidRequest(t *testing.T) {
	svc := NewRegistrationService(NewMockDraftStore(), nil, 24*time.Hour)

	_, err := svc.CreateSession(context.Background(), &models.TempRegistrationCreateRequest{
		EventID: 0,
	})

	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCreateSession_GeneratesUniqueIDs(t *testing.T) {
	store := NewMockDraftStore()
	svc := NewRegistrationService(store, nil, time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		reg, err := svc.CreateSession(context.Background(), &models.TempRegistrationCreateRequest{
			EventID:     1,
			TotalAmount: 100,
			SelectedTickets: []models.LineItem{
				{ItemID: 1, Price: 100, Quantity: 1},
			},
		})
		require.NoError(t, err)
		assert.False(t, seen[reg.SessionID])
		seen[reg.SessionID] = true
	}
}

func TestInitiatePayment_AttachesGatewayReference(t *testing.T) {
	store := NewMockDraftStore()
	initiator := &MockPaymentInitiator{
		initiation: &PaymentInitiation{
			RedirectURL:   "https://checkout.example.com/pay/abc",
			TransactionID: "track-42",
			PayToken:      "tok-42",
		},
	}
	svc := NewRegistrationService(store, initiator, time.Hour)

	reg, err := svc.CreateSession(context.Background(), &models.TempRegistrationCreateRequest{
		EventID:     1,
		TotalAmount: 5000,
		SelectedTickets: []models.LineItem{
			{ItemID: 1, Price: 5000, Quantity: 1},
		},
		BillingEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	updated, initiation, err := svc.InitiatePayment(context.Background(), reg.SessionID, "pesapal", "mobile_money")

	require.NoError(t, err)
	assert.Equal(t, 1, initiator.calls)
	assert.Equal(t, "https://checkout.example.com/pay/abc", initiation.RedirectURL)
	assert.Equal(t, "pesapal", updated.Gateway)
	assert.Equal(t, "mobile_money", updated.PaymentMethod)
	assert.Equal(t, "track-42", updated.GatewayTransactionID)
	assert.Equal(t, "tok-42", updated.PayToken)
}

func TestInitiatePayment_UnknownSession(t *testing.T) {
	svc := NewRegistrationService(NewMockDraftStore(), &MockPaymentInitiator{}, time.Hour)

	_, _, err := svc.InitiatePayment(context.Background(), "missing", "paystack", "card")

	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestInitiatePayment_ExpiredSessionRejected(t *testing.T) {
	store := NewMockDraftStore()
	initiator := &MockPaymentInitiator{}
	svc := NewRegistrationService(store, initiator, time.Hour)

	_, err := store.Create(context.Background(), &models.TempRegistration{
		SessionID: "sess-expired",
		EventID:   1,
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, _, err = svc.InitiatePayment(context.Background(), "sess-expired", "paystack", "card")

	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, 0, initiator.calls, "expired sessions never reach the gateway")
}

func TestInitiatePayment_UnsupportedGatewayPassthrough(t *testing.T) {
	store := NewMockDraftStore()
	svc := NewRegistrationService(store, &MockPaymentInitiator{err: models.ErrUnsupportedGateway}, time.Hour)

	reg, err := svc.CreateSession(context.Background(), &models.TempRegistrationCreateRequest{
		EventID:     1,
		TotalAmount: 100,
		SelectedTickets: []models.LineItem{
			{ItemID: 1, Price: 100, Quantity: 1},
		},
	})
	require.NoError(t, err)

	_, _, err = svc.InitiatePayment(context.Background(), reg.SessionID, "stripe", "card")

	assert.ErrorIs(t, err, models.ErrUnsupportedGateway)
}

func TestInitiatePayment_GatewayFailureWrapped(t *testing.T) {
	store := NewMockDraftStore()
	svc := NewRegistrationService(store, &MockPaymentInitiator{err: fmt.Errorf("gateway timeout")}, time.Hour)

	reg, err := svc.CreateSession(context.Background(), &models.TempRegistrationCreateRequest{
		EventID:     1,
		TotalAmount: 100,
		SelectedTickets: []models.LineItem{
			{ItemID: 1, Price: 100, Quantity: 1},
		},
	})
	require.NoError(t, err)

	_, _, err = svc.InitiatePayment(context.Background(), reg.SessionID, "paystack", "card")

	assert.ErrorIs(t, err, models.ErrPaymentInitiation)

	draft, err := svc.GetSession(context.Background(), reg.SessionID)
	require.NoError(t, err)
	assert.Empty(t, draft.GatewayTransactionID, "failed initiation leaves no reference behind")
}

func TestAttachGatewayReference(t *testing.T) {
	store := NewMockDraftStore()
	svc := NewRegistrationService(store, nil, time.Hour)

	reg, err := svc.CreateSession(context.Background(), &models.TempRegistrationCreateRequest{
		EventID:     1,
		TotalAmount: 100,
		SelectedTickets: []models.LineItem{
			{ItemID: 1, Price: 100, Quantity: 1},
		},
	})
	require.NoError(t, err)

	updated, err := svc.AttachGatewayReference(context.Background(), reg.SessionID, "pesapal", "mobile_money", "track-1", "tok-1")

	require.NoError(t, err)
	assert.Equal(t, "pesapal", updated.Gateway)
	assert.Equal(t, "mobile_money", updated.PaymentMethod)
	assert.Equal(t, "track-1", updated.GatewayTransactionID)
	assert.Equal(t, "tok-1", updated.PayToken)
}

func TestUpdateSession_InvalidUpdateRejected(t *testing.T) {
	svc := NewRegistrationService(NewMockDraftStore(), nil, time.Hour)

	negative := -5
	_, err := svc.UpdateSession(context.Background(), "any", &models.TempRegistrationUpdate{
		TotalAmount: &negative,
	})

	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestAbandonSession(t *testing.T) {
	store := NewMockDraftStore()
	svc := NewRegistrationService(store, nil, time.Hour)

	reg, err := svc.CreateSession(context.Background(), &models.TempRegistrationCreateRequest{
		EventID:     1,
		TotalAmount: 100,
		SelectedTickets: []models.LineItem{
			{ItemID: 1, Price: 100, Quantity: 1},
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.AbandonSession(context.Background(), reg.SessionID))

	_, err = svc.GetSession(context.Background(), reg.SessionID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}
