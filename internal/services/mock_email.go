package services

import (
	"context"
	"log"

	"event-sales-platform/internal/models"
)

// MockEmailService provides a mock email service that can optionally use Resend
type MockEmailService struct {
	resendService *ResendEmailService
	useResend     bool
}

// NewMockEmailService creates a new mock email service. With an API key it
// delegates to Resend; without one it logs instead of sending.
func NewMockEmailService(resendConfig *ResendConfig) *MockEmailService {
	service := &MockEmailService{
		useResend: false,
	}

	if resendConfig != nil && resendConfig.APIKey != "" {
		service.resendService = NewResendEmailService(*resendConfig)
		service.useResend = true
		log.Println("Email service: Using Resend API")
	} else {
		log.Println("Email service: Using mock (no Resend API key provided)")
	}

	return service
}

// SendOrderConfirmation sends the purchase confirmation for a finalized order
func (s *MockEmailService) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	if s.useResend && s.resendService != nil {
		return s.resendService.SendOrderConfirmation(ctx, order)
	}

	log.Printf("Mock Email: Order confirmation sent to %s for order %s", order.BillingEmail, order.OrderNumber)
	return nil
}

// SendAbandonedCartReminder nudges a buyer whose checkout session stalled
func (s *MockEmailService) SendAbandonedCartReminder(ctx context.Context, reg *models.TempRegistration) error {
	if s.useResend && s.resendService != nil {
		return s.resendService.SendAbandonedCartReminder(ctx, reg)
	}

	log.Printf("Mock Email: Abandoned cart reminder sent to %s for session %s", reg.PrimaryEmail(), reg.SessionID)
	return nil
}
