package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-sales-platform/internal/models"
	"event-sales-platform/internal/services"
)

// StubPaymentProcessor scripts payment service responses for handler tests
type StubPaymentProcessor struct {
	mu           sync.Mutex
	webhookCalls int
	webhookErrs  []error
	webhookOrder *models.Order

	verifyOrder   *models.Order
	verifyOutcome *services.PaymentOutcome
	verifyErr     error

	statusOrder *models.Order
	statusState services.PaymentState
	statusErr   error
}

func (s *StubPaymentProcessor) HandleWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := s.webhookCalls
	s.webhookCalls++

	if call < len(s.webhookErrs) && s.webhookErrs[call] != nil {
		return nil, s.webhookErrs[call]
	}
	return s.webhookOrder, nil
}

func (s *StubPaymentProcessor) VerifyAndFinalize(ctx context.Context, gateway, transactionID string) (*models.Order, *services.PaymentOutcome, error) {
	return s.verifyOrder, s.verifyOutcome, s.verifyErr
}

func (s *StubPaymentProcessor) VerifySession(ctx context.Context, sessionID string) (*models.Order, *services.PaymentOutcome, error) {
	return s.verifyOrder, s.verifyOutcome, s.verifyErr
}

func (s *StubPaymentProcessor) CheckStatusBySession(ctx context.Context, sessionID string) (*models.Order, services.PaymentState, error) {
	return s.statusOrder, s.statusState, s.statusErr
}

func paymentRouter(processor PaymentProcessor) (*chi.Mux, *PaymentHandler) {
	handler := NewPaymentHandler(processor)
	handler.webhookRetryDelay = 0

	r := chi.NewRouter()
	r.Post("/payment/webhook/{gateway}", handler.Webhook)
	r.Post("/payment/verify", handler.Verify)
	r.Post("/payment/sessions/{sessionID}/verify", handler.VerifySession)
	r.Get("/payment/status/{sessionID}", handler.Status)
	return r, handler
}

func TestWebhook_AcknowledgesSuccess(t *testing.T) {
	stub := &StubPaymentProcessor{
		webhookOrder: &models.Order{ID: 1, OrderNumber: "ORD-20240101-123456"},
	}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook/paystack", strings.NewReader(`{"event":"charge.success"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "acknowledged", body["status"])
	assert.Equal(t, "ORD-20240101-123456", body["order_number"])
}

func TestWebhook_UnknownGatewayReturns404(t *testing.T) {
	stub := &StubPaymentProcessor{
		webhookErrs: []error{models.ErrUnsupportedGateway},
	}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook/stripe", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook_ProcessingFailureStillAcknowledged(t *testing.T) {
	stub := &StubPaymentProcessor{
		webhookErrs: []error{fmt.Errorf("database unavailable")},
	}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook/paystack", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// A non-2xx would only trigger a gateway retry storm
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "acknowledged", body["status"])
	assert.Equal(t, 1, stub.webhookCalls)
}

func TestWebhook_RetriesOnceWhenSessionNotFound(t *testing.T) {
	stub := &StubPaymentProcessor{
		webhookErrs:  []error{models.ErrSessionNotFound},
		webhookOrder: &models.Order{ID: 2, OrderNumber: "ORD-20240101-654321"},
	}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook/pesapal", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, stub.webhookCalls, "handler retries exactly once")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ORD-20240101-654321", body["order_number"])
}

func TestWebhook_SessionStillMissingAfterRetry(t *testing.T) {
	stub := &StubPaymentProcessor{
		webhookErrs: []error{models.ErrSessionNotFound, models.ErrSessionNotFound},
	}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook/pesapal", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, stub.webhookCalls)
}

func TestWebhook_DisconnectedClientSkipsRetry(t *testing.T) {
	stub := &StubPaymentProcessor{
		webhookErrs: []error{models.ErrSessionNotFound},
	}
	handler := NewPaymentHandler(stub)
	handler.webhookRetryDelay = 50 * time.Millisecond

	router := chi.NewRouter()
	router.Post("/payment/webhook/{gateway}", handler.Webhook)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook/pesapal", strings.NewReader(`{}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.webhookCalls, "no retry once the client is gone")
}

func TestVerify_RequiresParams(t *testing.T) {
	router, _ := paymentRouter(&StubPaymentProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/payment/verify?gateway=paystack", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerify_ReturnsOrderAndStatus(t *testing.T) {
	stub := &StubPaymentProcessor{
		verifyOrder: &models.Order{
			ID:                    7,
			EventID:               42,
			RegistrationSessionID: "sess-1",
			OrderNumber:           "ORD-20240101-777777",
		},
		verifyOutcome: &services.PaymentOutcome{Status: services.StatePaid},
	}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/payment/verify?gateway=paystack&transaction_id=ref-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(services.StatePaid), body["payment_status"])
	assert.Equal(t, "ORD-20240101-777777", body["order_number"])
	assert.Equal(t, "sess-1", body["session_id"])
	assert.EqualValues(t, 42, body["event_id"])
}

func TestVerify_GatewayFailureReturns502(t *testing.T) {
	stub := &StubPaymentProcessor{
		verifyErr: fmt.Errorf("%w: timeout", models.ErrGatewayVerification),
	}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/payment/verify?gateway=paystack&transaction_id=ref-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestVerifySession_GatewayFailureReportsPending(t *testing.T) {
	stub := &StubPaymentProcessor{
		verifyErr: fmt.Errorf("%w: timeout", models.ErrGatewayVerification),
	}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/payment/sessions/sess-1/verify", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(services.StatePending), body["payment_status"])
}

func TestVerifySession_ReturnsOrderContext(t *testing.T) {
	stub := &StubPaymentProcessor{
		verifyOrder: &models.Order{
			ID:                    9,
			EventID:               42,
			RegistrationSessionID: "sess-9",
			OrderNumber:           "ORD-20240101-999999",
		},
		verifyOutcome: &services.PaymentOutcome{Status: services.StatePaid},
	}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/payment/sessions/sess-9/verify", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sess-9", body["session_id"])
	assert.EqualValues(t, 42, body["event_id"])
	assert.Equal(t, "ORD-20240101-999999", body["order_number"])
}

func TestVerifySession_UnknownSessionReturns404(t *testing.T) {
	stub := &StubPaymentProcessor{verifyErr: models.ErrSessionNotFound}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/payment/sessions/nope/verify", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus_ReportsPendingDraft(t *testing.T) {
	stub := &StubPaymentProcessor{statusState: services.StatePending}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/payment/status/sess-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(services.StatePending), body["payment_status"])
	assert.NotContains(t, body, "order_number")
}

func TestStatus_ReportsPaidOrder(t *testing.T) {
	stub := &StubPaymentProcessor{
		statusOrder: &models.Order{ID: 3, OrderNumber: "ORD-20240101-333333"},
		statusState: services.StatePaid,
	}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/payment/status/sess-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ORD-20240101-333333", body["order_number"])
}

func TestStatus_UnknownSessionReturns404(t *testing.T) {
	stub := &StubPaymentProcessor{statusErr: models.ErrSessionNotFound}
	router, _ := paymentRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/payment/status/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
