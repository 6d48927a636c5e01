package services

import (
	"context"
	"fmt"
	"log"

	"event-sales-platform/internal/models"
)

// PendingRegistrationStore lists draft sessions that initiated a payment on a
// given gateway but were never confirmed
type PendingRegistrationStore interface {
	PendingByGateway(ctx context.Context, gateway string, limit int) ([]*models.TempRegistration, error)
}

// PaymentFinalizer actively verifies a transaction and finalizes it on a paid
// answer
type PaymentFinalizer interface {
	VerifyAndFinalize(ctx context.Context, gateway, transactionID string) (*models.Order, *PaymentOutcome, error)
}

// PendingCheckRun summarizes one polling sweep
type PendingCheckRun struct {
	Checked   int
	Finalized int
	Pending   int
	Failed    int
	Errors    int
}

// PendingPaymentChecker is the safety net for lost webhooks. Mobile-money
// confirmations ride on IPNs that sometimes never arrive; this poller asks the
// gateway directly for sessions stuck with a transaction id but no order.
type PendingPaymentChecker struct {
	store      PendingRegistrationStore
	payments   PaymentFinalizer
	gateway    string
	batchLimit int
}

// NewPendingPaymentChecker creates a checker for one gateway
func NewPendingPaymentChecker(store PendingRegistrationStore, payments PaymentFinalizer, gateway string) *PendingPaymentChecker {
	return &PendingPaymentChecker{
		store:      store,
		payments:   payments,
		gateway:    gateway,
		batchLimit: 100,
	}
}

// Run verifies every pending session once. Individual verification failures
// are counted, not fatal.
func (c *PendingPaymentChecker) Run(ctx context.Context) (*PendingCheckRun, error) {
	pending, err := c.store.PendingByGateway(ctx, c.gateway, c.batchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending payments: %w", err)
	}

	run := &PendingCheckRun{}

	for _, reg := range pending {
		if reg.GatewayTransactionID == "" {
			continue
		}
		run.Checked++

		order, outcome, err := c.payments.VerifyAndFinalize(ctx, c.gateway, reg.GatewayTransactionID)
		if err != nil {
			run.Errors++
			log.Printf("pending payment check for session %s failed: %v", reg.SessionID, err)
			continue
		}

		switch {
		case order != nil:
			run.Finalized++
		case outcome != nil && outcome.Status == StateFailed:
			run.Failed++
		default:
			run.Pending++
		}
	}

	if run.Checked > 0 {
		log.Printf("pending payment sweep (%s): %d checked, %d finalized, %d still pending, %d failed, %d errors",
			c.gateway, run.Checked, run.Finalized, run.Pending, run.Failed, run.Errors)
	}

	return run, nil
}
