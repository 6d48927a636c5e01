package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"event-sales-platform/internal/models"
)

// PaystackConfig represents Paystack payment gateway configuration
type PaystackConfig struct {
	SecretKey   string
	PublicKey   string
	Environment string // "test" or "live"
	CallbackURL string
}

// PaystackGateway handles card payments via the Paystack API. Paystack
// confirms asynchronously with an HMAC-SHA512 signed webhook and also exposes
// a verify endpoint for active reconciliation.
type PaystackGateway struct {
	config  PaystackConfig
	client  *http.Client
	baseURL string
}

// NewPaystackGateway creates a new Paystack gateway driver
func NewPaystackGateway(config PaystackConfig) *PaystackGateway {
	return &PaystackGateway{
		config:  config,
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: "https://api.paystack.co",
	}
}

// Name returns the gateway registry key
func (s *PaystackGateway) Name() string {
	return "paystack"
}

// paystackWebhookEvent is the envelope Paystack posts to the webhook URL
type paystackWebhookEvent struct {
	Event string              `json:"event"`
	Data  paystackTransaction `json:"data"`
}

type paystackTransaction struct {
	ID        int               `json:"id"`
	Status    string            `json:"status"`
	Reference string            `json:"reference"`
	Amount    int               `json:"amount"`
	Currency  string            `json:"currency"`
	Channel   string            `json:"channel"`
	PaidAt    string            `json:"paid_at"`
	Metadata  map[string]string `json:"metadata"`
}

// paystackVerifyResponse is the response of GET /transaction/verify/:reference
type paystackVerifyResponse struct {
	Status  bool                `json:"status"`
	Message string              `json:"message"`
	Data    paystackTransaction `json:"data"`
}

// HandleWebhook validates the x-paystack-signature header and normalizes the
// event payload. A bad signature or unparseable body yields a failed outcome,
// never an error: the webhook handler must still acknowledge Paystack.
func (s *PaystackGateway) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*PaymentOutcome, error) {
	signature := headers.Get("x-paystack-signature")
	if !s.verifySignature(payload, signature) {
		log.Printf("paystack webhook rejected: bad signature")
		return &PaymentOutcome{
			Status:   StateFailed,
			Metadata: map[string]string{"reason": "invalid signature"},
		}, nil
	}

	var event paystackWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("paystack webhook rejected: unparseable payload: %v", err)
		return &PaymentOutcome{
			Status:   StateFailed,
			Metadata: map[string]string{"reason": "unparseable payload"},
		}, nil
	}

	outcome := s.normalize(event.Data)
	if event.Event != "charge.success" && outcome.Status == StatePaid {
		// Only charge.success events are authoritative for paid
		outcome.Status = StatePending
	}

	return outcome, nil
}

// VerifyPayment asks Paystack for the current state of a transaction by
// reference
func (s *PaystackGateway) VerifyPayment(ctx context.Context, transactionID string, vc VerifyContext) (*PaymentOutcome, error) {
	verifyURL := fmt.Sprintf("%s/transaction/verify/%s", s.baseURL, transactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, verifyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send verification request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read verification response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("paystack verify returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var verification paystackVerifyResponse
	if err := json.Unmarshal(bodyBytes, &verification); err != nil {
		return nil, fmt.Errorf("failed to decode verification response: %w", err)
	}

	if !verification.Status {
		return nil, fmt.Errorf("transaction verification failed: %s", verification.Message)
	}

	return s.normalize(verification.Data), nil
}

// InitiatePayment initializes a Paystack transaction for a draft checkout
// session. The session id doubles as the transaction reference and also rides
// in the metadata, so both webhook resolution paths can find the draft.
func (s *PaystackGateway) InitiatePayment(ctx context.Context, reg *models.TempRegistration) (*PaymentInitiation, error) {
	body, err := json.Marshal(map[string]interface{}{
		"email":        reg.PrimaryEmail(),
		"amount":       reg.TotalAmount,
		"currency":     reg.Currency,
		"reference":    reg.SessionID,
		"callback_url": s.config.CallbackURL,
		"metadata":     map[string]string{"session_id": reg.SessionID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/transaction/initialize", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction request: %w", err)
	}
	defer resp.Body.Close()

	var initResp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&initResp); err != nil {
		return nil, fmt.Errorf("failed to decode transaction response: %w", err)
	}

	if !initResp.Status {
		return nil, fmt.Errorf("transaction initialization failed: %s", initResp.Message)
	}

	return &PaymentInitiation{
		RedirectURL:   initResp.Data.AuthorizationURL,
		TransactionID: initResp.Data.Reference,
		PayToken:      initResp.Data.AccessCode,
	}, nil
}

// normalize maps a Paystack transaction to the gateway-agnostic outcome
func (s *PaystackGateway) normalize(tx paystackTransaction) *PaymentOutcome {
	var status PaymentState
	switch tx.Status {
	case "success":
		status = StatePaid
	case "failed", "abandoned", "reversed":
		status = StateFailed
	default:
		status = StatePending
	}

	metadata := map[string]string{
		"currency": tx.Currency,
		"channel":  tx.Channel,
	}
	for k, v := range tx.Metadata {
		metadata[k] = v
	}

	return &PaymentOutcome{
		Status:        status,
		Amount:        tx.Amount,
		TransactionID: tx.Reference,
		Metadata:      metadata,
	}
}

// verifySignature checks the HMAC-SHA512 of the raw payload against the
// webhook signature header
func (s *PaystackGateway) verifySignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(s.config.SecretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
