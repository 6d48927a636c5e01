package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOrderNumber_Format(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		number := GenerateOrderNumber()
		require.NoError(t, ValidateOrderNumber(number))
		seen[number] = true
	}

	// crypto/rand over a 6-digit space should not collide 100 times
	assert.Greater(t, len(seen), 90)
}

func TestValidateOrderNumber(t *testing.T) {
	assert.NoError(t, ValidateOrderNumber("ORD-20240101-123456"))
	assert.Error(t, ValidateOrderNumber(""))
	assert.Error(t, ValidateOrderNumber("ORD-2024-123456"))
	assert.Error(t, ValidateOrderNumber("ORDER-20240101-123456"))
	assert.Error(t, ValidateOrderNumber("ORD-20240101-12345"))
}

func TestOrderCreateRequest_Validate(t *testing.T) {
	sessionID := 1

	valid := &OrderCreateRequest{
		EventID:       1,
		TotalAmount:   5000,
		PaymentStatus: PaymentPaid,
		PaymentMethod: "cash",
		SalesChannel:  ChannelCounter,
		CashSessionID: &sessionID,
	}
	assert.NoError(t, valid.Validate())

	noEvent := *valid
	noEvent.EventID = 0
	assert.Error(t, noEvent.Validate())

	negative := *valid
	negative.TotalAmount = -1
	assert.Error(t, negative.Validate())

	tooLarge := *valid
	tooLarge.TotalAmount = 100000001
	assert.Error(t, tooLarge.Validate())

	badStatus := *valid
	badStatus.PaymentStatus = "refunded"
	assert.Error(t, badStatus.Validate())

	badChannel := *valid
	badChannel.SalesChannel = "phone"
	assert.Error(t, badChannel.Validate())

	counterNoSession := *valid
	counterNoSession.CashSessionID = nil
	assert.Error(t, counterNoSession.Validate())

	badEmail := *valid
	badEmail.BillingEmail = "not-an-email"
	assert.Error(t, badEmail.Validate())
}

func TestOrder_IsPaid(t *testing.T) {
	assert.True(t, (&Order{PaymentStatus: PaymentPaid}).IsPaid())
	assert.True(t, (&Order{PaymentStatus: PaymentFree}).IsPaid())
	assert.False(t, (&Order{PaymentStatus: PaymentPending}).IsPaid())
	assert.False(t, (&Order{PaymentStatus: PaymentFailed}).IsPaid())
}
