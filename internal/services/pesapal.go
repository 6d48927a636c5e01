package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"event-sales-platform/internal/models"
)

// PesapalConfig represents Pesapal payment gateway configuration
type PesapalConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Environment    string // "sandbox" or "production"
	CallbackURL    string
	IPNURL         string
}

// PesapalGateway handles mobile-money payments via the Pesapal v3 API.
// Pesapal's IPN carries only a tracking id, so both the webhook and verify
// paths resolve the real state through the GetTransactionStatus endpoint.
type PesapalGateway struct {
	config  PesapalConfig
	client  *http.Client
	baseURL string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	ipnID       string
}

// NewPesapalGateway creates a new Pesapal gateway driver
func NewPesapalGateway(config PesapalConfig) *PesapalGateway {
	baseURL := "https://pay.pesapal.com/v3"
	if config.Environment == "sandbox" {
		baseURL = "https://cybqa.pesapal.com/pesapalv3"
	}

	return &PesapalGateway{
		config:  config,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
	}
}

// Name returns the gateway registry key
func (s *PesapalGateway) Name() string {
	return "pesapal"
}

type pesapalAuthRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

type pesapalAuthResponse struct {
	Token      string      `json:"token"`
	ExpiryDate string      `json:"expiryDate"`
	Error      interface{} `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
}

type pesapalStatusResponse struct {
	PaymentMethod            string      `json:"payment_method"`
	Amount                   float64     `json:"amount"`
	ConfirmationCode         string      `json:"confirmation_code"`
	PaymentStatusDescription string      `json:"payment_status_description"`
	MerchantReference        string      `json:"merchant_reference"`
	PaymentAccount           string      `json:"payment_account"`
	StatusCode               int         `json:"status_code"`
	Currency                 string      `json:"currency"`
	Error                    interface{} `json:"error,omitempty"`
	Message                  string      `json:"message,omitempty"`
}

// pesapalIPN is the Instant Payment Notification body. It names the
// transaction but says nothing about its outcome.
type pesapalIPN struct {
	OrderTrackingID        string `json:"OrderTrackingId"`
	OrderMerchantReference string `json:"OrderMerchantReference"`
}

type pesapalSubmitOrderResponse struct {
	OrderTrackingID   string      `json:"order_tracking_id"`
	MerchantReference string      `json:"merchant_reference"`
	RedirectURL       string      `json:"redirect_url"`
	Error             interface{} `json:"error,omitempty"`
	Message           string      `json:"message,omitempty"`
}

// InitiatePayment submits an order to Pesapal and returns the hosted payment
// page URL. The draft's notification token is the merchant reference, so IPNs
// that only echo the reference can still be matched back to the session.
func (s *PesapalGateway) InitiatePayment(ctx context.Context, reg *models.TempRegistration) (*PaymentInitiation, error) {
	token, err := s.authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ipnID, err := s.registerIPN(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("IPN registration failed: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"id":              reg.NotificationToken,
		"currency":        reg.Currency,
		"amount":          float64(reg.TotalAmount) / 100.0,
		"description":     fmt.Sprintf("Event registration %s", reg.SessionID),
		"callback_url":    s.config.CallbackURL,
		"notification_id": ipnID,
		"billing_address": map[string]string{
			"email_address": reg.PrimaryEmail(),
			"first_name":    reg.BillingName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/Transactions/SubmitOrderRequest", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send order request: %w", err)
	}
	defer resp.Body.Close()

	var submitResp pesapalSubmitOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}

	if submitResp.Error != nil {
		return nil, fmt.Errorf("order submission error: %s", pesapalErrorMessage(submitResp.Error, submitResp.Message))
	}

	if submitResp.OrderTrackingID == "" || submitResp.RedirectURL == "" {
		return nil, fmt.Errorf("order submission returned no tracking id or redirect URL")
	}

	return &PaymentInitiation{
		RedirectURL:   submitResp.RedirectURL,
		TransactionID: submitResp.OrderTrackingID,
	}, nil
}

// registerIPN registers the IPN callback URL once and caches the returned
// notification id for subsequent order submissions
func (s *PesapalGateway) registerIPN(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	if s.ipnID != "" {
		id := s.ipnID
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	body, err := json.Marshal(map[string]string{
		"url":                   s.config.IPNURL,
		"ipn_notification_type": "POST",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal IPN request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/URLSetup/RegisterIPN", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create IPN request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send IPN request: %w", err)
	}
	defer resp.Body.Close()

	var ipnResp struct {
		IPNID   string      `json:"ipn_id"`
		Error   interface{} `json:"error,omitempty"`
		Message string      `json:"message,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ipnResp); err != nil {
		return "", fmt.Errorf("failed to decode IPN response: %w", err)
	}

	if ipnResp.Error != nil {
		return "", fmt.Errorf("IPN registration error: %s", pesapalErrorMessage(ipnResp.Error, ipnResp.Message))
	}

	if ipnResp.IPNID == "" {
		return "", fmt.Errorf("received empty IPN id")
	}

	s.mu.Lock()
	s.ipnID = ipnResp.IPNID
	s.mu.Unlock()

	return ipnResp.IPNID, nil
}

// HandleWebhook processes an IPN. Because the notification carries no status,
// the driver immediately polls GetTransactionStatus for the authoritative
// state.
func (s *PesapalGateway) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*PaymentOutcome, error) {
	var ipn pesapalIPN
	if err := json.Unmarshal(payload, &ipn); err != nil {
		log.Printf("pesapal IPN rejected: unparseable payload: %v", err)
		return &PaymentOutcome{
			Status:   StateFailed,
			Metadata: map[string]string{"reason": "unparseable payload"},
		}, nil
	}

	if ipn.OrderTrackingID == "" {
		log.Printf("pesapal IPN rejected: missing order tracking id")
		return &PaymentOutcome{
			Status:   StateFailed,
			Metadata: map[string]string{"reason": "missing order tracking id"},
		}, nil
	}

	outcome, err := s.VerifyPayment(ctx, ipn.OrderTrackingID, VerifyContext{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve IPN status: %w", err)
	}

	if ipn.OrderMerchantReference != "" {
		outcome.Metadata["merchant_reference"] = ipn.OrderMerchantReference
	}

	return outcome, nil
}

// VerifyPayment polls Pesapal's transaction status endpoint. Status codes:
// 1 completed, 2 failed, 0 pending, 3 reversed.
func (s *PesapalGateway) VerifyPayment(ctx context.Context, transactionID string, vc VerifyContext) (*PaymentOutcome, error) {
	token, err := s.authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	statusURL := fmt.Sprintf("%s/api/Transactions/GetTransactionStatus?orderTrackingId=%s",
		s.baseURL, url.QueryEscape(transactionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send status request: %w", err)
	}
	defer resp.Body.Close()

	var status pesapalStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	if status.Error != nil {
		return nil, fmt.Errorf("status request error: %s", pesapalErrorMessage(status.Error, status.Message))
	}

	var state PaymentState
	switch status.StatusCode {
	case 1:
		state = StatePaid
	case 2, 3:
		state = StateFailed
	default:
		state = StatePending
	}

	return &PaymentOutcome{
		Status:        state,
		Amount:        int(status.Amount * 100),
		TransactionID: transactionID,
		Metadata: map[string]string{
			"currency":           status.Currency,
			"payment_method":     status.PaymentMethod,
			"confirmation_code":  status.ConfirmationCode,
			"payment_account":    status.PaymentAccount,
			"status_description": status.PaymentStatusDescription,
			"merchant_reference": status.MerchantReference,
		},
	}, nil
}

// authenticate returns a bearer token, reusing a cached one until shortly
// before it expires. Pesapal tokens last five minutes.
func (s *PesapalGateway) authenticate(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	jsonData, err := json.Marshal(pesapalAuthRequest{
		ConsumerKey:    s.config.ConsumerKey,
		ConsumerSecret: s.config.ConsumerSecret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/Auth/RequestToken", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send auth request: %w", err)
	}
	defer resp.Body.Close()

	var authResponse pesapalAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResponse); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}

	if authResponse.Error != nil {
		return "", fmt.Errorf("authentication error: %s", pesapalErrorMessage(authResponse.Error, authResponse.Message))
	}

	if authResponse.Token == "" {
		return "", fmt.Errorf("received empty authentication token")
	}

	s.token = authResponse.Token
	s.tokenExpiry = time.Now().Add(4 * time.Minute)

	return s.token, nil
}

// pesapalErrorMessage flattens Pesapal's loosely-typed error field
func pesapalErrorMessage(errField interface{}, message string) string {
	if errMap, ok := errField.(map[string]interface{}); ok {
		msg := ""
		if code, exists := errMap["code"]; exists {
			msg = fmt.Sprintf("%v", code)
		}
		if errorType, exists := errMap["error_type"]; exists {
			msg = fmt.Sprintf("%v: %s", errorType, msg)
		}
		if detail, exists := errMap["message"]; exists && detail != "" {
			msg = fmt.Sprintf("%s - %v", msg, detail)
		}
		if msg != "" {
			return msg
		}
	}
	if errStr, ok := errField.(string); ok && errStr != "" {
		return errStr
	}
	if message != "" {
		return message
	}
	return "unknown error"
}
