package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"event-sales-platform/internal/models"
)

// ResendConfig represents Resend email service configuration
type ResendConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	BaseURL   string // public site URL used in email links
}

// ResendEmailService sends transactional email via the Resend API
type ResendEmailService struct {
	config ResendConfig
	client *http.Client
}

// NewResendEmailService creates a new Resend email service
func NewResendEmailService(config ResendConfig) *ResendEmailService {
	return &ResendEmailService{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ResendEmailRequest represents the request structure for Resend API
type ResendEmailRequest struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html,omitempty"`
	Text    string      `json:"text,omitempty"`
	Tags    []ResendTag `json:"tags,omitempty"`
}

// ResendTag represents a tag for email categorization
type ResendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ResendEmailResponse represents the response from Resend API
type ResendEmailResponse struct {
	ID string `json:"id"`
}

// ResendErrorResponse represents error response from Resend API
type ResendErrorResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// getFromField constructs the from field properly
func (s *ResendEmailService) getFromField() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail)
	}
	return s.config.FromEmail
}

// SendOrderConfirmation sends the purchase confirmation for a finalized order
func (s *ResendEmailService) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	if order.BillingEmail == "" {
		return fmt.Errorf("order %s has no billing email", order.OrderNumber)
	}

	amount := fmt.Sprintf("%s %.2f", "KES", float64(order.TotalAmount)/100)

	htmlContent := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Order Confirmation</title>
</head>
<body>
    <h1>Thank you for your order!</h1>
    <p>Dear %s,</p>
    <p>Your payment has been received and your order is confirmed.</p>
    <p><strong>Order number:</strong> %s<br>
    <strong>Total:</strong> %s</p>
    <p>Your tickets are attached to your account and will be available at the event.</p>
</body>
</html>`, order.BillingName, order.OrderNumber, amount)

	textContent := fmt.Sprintf(
		"Thank you for your order!\n\nOrder number: %s\nTotal: %s\n\nYour payment has been received and your order is confirmed.",
		order.OrderNumber, amount)

	return s.sendEmail(ctx, ResendEmailRequest{
		From:    s.getFromField(),
		To:      []string{order.BillingEmail},
		Subject: fmt.Sprintf("Order Confirmation - %s", order.OrderNumber),
		HTML:    htmlContent,
		Text:    textContent,
		Tags: []ResendTag{
			{Name: "category", Value: "order_confirmation"},
		},
	})
}

// SendAbandonedCartReminder nudges a buyer whose checkout session stalled
func (s *ResendEmailService) SendAbandonedCartReminder(ctx context.Context, reg *models.TempRegistration) error {
	email := reg.PrimaryEmail()
	if email == "" {
		return fmt.Errorf("session %s has no reachable email", reg.SessionID)
	}

	resumeLink := fmt.Sprintf("%s/checkout/resume?session=%s", s.config.BaseURL, reg.SessionID)
	amount := fmt.Sprintf("%s %.2f", "KES", float64(reg.TotalAmount)/100)

	htmlContent := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Complete Your Purchase</title>
</head>
<body>
    <h1>Your tickets are waiting</h1>
    <p>You started a ticket purchase but didn't finish checking out.</p>
    <p><strong>Items:</strong> %d<br>
    <strong>Total:</strong> %s</p>
    <p><a href="%s">Complete your purchase</a></p>
    <p>If you've changed your mind, no action is needed and your reservation will expire on its own.</p>
</body>
</html>`, reg.ItemCount(), amount, resumeLink)

	textContent := fmt.Sprintf(
		"You started a ticket purchase but didn't finish checking out.\n\nItems: %d\nTotal: %s\n\nComplete your purchase: %s",
		reg.ItemCount(), amount, resumeLink)

	return s.sendEmail(ctx, ResendEmailRequest{
		From:    s.getFromField(),
		To:      []string{email},
		Subject: "Complete your ticket purchase",
		HTML:    htmlContent,
		Text:    textContent,
		Tags: []ResendTag{
			{Name: "category", Value: "abandoned_cart"},
		},
	})
}

func (s *ResendEmailService) sendEmail(ctx context.Context, request ResendEmailRequest) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.resend.com/emails", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorResp ResendErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
			return fmt.Errorf("failed to send email, status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to send email: %s", errorResp.Message)
	}

	var response ResendEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
