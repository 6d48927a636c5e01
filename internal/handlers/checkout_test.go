package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-sales-platform/internal/models"
	"event-sales-platform/internal/services"
)

// stubDraftStore is an in-memory services.TempRegistrationStore
type stubDraftStore struct {
	sessions map[string]*models.TempRegistration
}

func newStubDraftStore() *stubDraftStore {
	return &stubDraftStore{sessions: make(map[string]*models.TempRegistration)}
}

func (s *stubDraftStore) Create(ctx context.Context, reg *models.TempRegistration) (*models.TempRegistration, error) {
	s.sessions[reg.SessionID] = reg
	return reg, nil
}

func (s *stubDraftStore) Update(ctx context.Context, sessionID string, update *models.TempRegistrationUpdate) (*models.TempRegistration, error) {
	reg, ok := s.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
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
	return reg, nil
}

func (s *stubDraftStore) GetBySessionID(ctx context.Context, sessionID string) (*models.TempRegistration, error) {
	if reg, ok := s.sessions[sessionID]; ok {
		return reg, nil
	}
	return nil, models.ErrSessionNotFound
}

func (s *stubDraftStore) Delete(ctx context.Context, sessionID string) error {
	if _, ok := s.sessions[sessionID]; !ok {
		return models.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// stubInitiator scripts gateway payment initiation
type stubInitiator struct {
	initiation *services.PaymentInitiation
	err        error
}

func (s *stubInitiator) InitiatePayment(ctx context.Context, gateway string, reg *models.TempRegistration) (*services.PaymentInitiation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.initiation, nil
}

func checkoutRouter(store *stubDraftStore, initiator *stubInitiator) *chi.Mux {
	svc := services.NewRegistrationService(store, initiator, time.Hour)
	handler := NewCheckoutHandler(svc)

	r := chi.NewRouter()
	r.Post("/checkout/sessions", handler.Create)
	r.Post("/checkout/sessions/{sessionID}/pay", handler.InitiatePayment)
	return r
}

func seedDraft(store *stubDraftStore, sessionID string) {
	store.sessions[sessionID] = &models.TempRegistration{
		SessionID:    sessionID,
		EventID:      1,
		TotalAmount:  5000,
		Currency:     "KES",
		BillingEmail: "buyer@example.com",
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestInitiatePaymentEndpoint_ReturnsRedirect(t *testing.T) {
	store := newStubDraftStore()
	seedDraft(store, "sess-1")

	router := checkoutRouter(store, &stubInitiator{
		initiation: &services.PaymentInitiation{
			RedirectURL:   "https://pay.example.com/redirect/xyz",
			TransactionID: "track-1",
			PayToken:      "tok-1",
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/checkout/sessions/sess-1/pay",
		strings.NewReader(`{"gateway": "pesapal", "payment_method": "mobile_money"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://pay.example.com/redirect/xyz", body["redirect_url"])
	assert.Equal(t, "track-1", body["transaction_id"])
	assert.Equal(t, "pesapal", body["gateway"])

	draft := store.sessions["sess-1"]
	assert.Equal(t, "track-1", draft.GatewayTransactionID)
	assert.Equal(t, "tok-1", draft.PayToken)
	assert.Equal(t, "mobile_money", draft.PaymentMethod)
}

func TestInitiatePaymentEndpoint_RequiresGateway(t *testing.T) {
	store := newStubDraftStore()
	seedDraft(store, "sess-1")
	router := checkoutRouter(store, &stubInitiator{})

	req := httptest.NewRequest(http.MethodPost, "/checkout/sessions/sess-1/pay",
		strings.NewReader(`{"payment_method": "card"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitiatePaymentEndpoint_UnknownSessionReturns404(t *testing.T) {
	router := checkoutRouter(newStubDraftStore(), &stubInitiator{})

	req := httptest.NewRequest(http.MethodPost, "/checkout/sessions/missing/pay",
		strings.NewReader(`{"gateway": "paystack"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInitiatePaymentEndpoint_UnsupportedGatewayReturns400(t *testing.T) {
	store := newStubDraftStore()
	seedDraft(store, "sess-1")
	router := checkoutRouter(store, &stubInitiator{err: models.ErrUnsupportedGateway})

	req := httptest.NewRequest(http.MethodPost, "/checkout/sessions/sess-1/pay",
		strings.NewReader(`{"gateway": "stripe"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitiatePaymentEndpoint_GatewayDownReturns502(t *testing.T) {
	store := newStubDraftStore()
	seedDraft(store, "sess-1")
	router := checkoutRouter(store, &stubInitiator{err: fmt.Errorf("connection refused")})

	req := httptest.NewRequest(http.MethodPost, "/checkout/sessions/sess-1/pay",
		strings.NewReader(`{"gateway": "paystack"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestInitiatePaymentEndpoint_ExpiredSessionReturns400(t *testing.T) {
	store := newStubDraftStore()
	store.sessions["sess-old"] = &models.TempRegistration{
		SessionID: "sess-old",
		EventID:   1,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	router := checkoutRouter(store, &stubInitiator{})

	req := httptest.NewRequest(http.MethodPost, "/checkout/sessions/sess-old/pay",
		strings.NewReader(`{"gateway": "paystack"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
