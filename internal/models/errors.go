package models

import "errors"

// Common errors used throughout the application
var (
	ErrSessionNotFound     = errors.New("checkout session not found or expired")
	ErrOrderNotFound       = errors.New("order not found")
	ErrCashSessionNotFound = errors.New("cash session not found")
	ErrUnsupportedGateway  = errors.New("unsupported payment gateway")
	ErrGatewayVerification = errors.New("gateway verification failed")
	ErrPaymentInitiation   = errors.New("payment initiation failed")
	ErrDuplicateEntry      = errors.New("duplicate entry")
	ErrCashSessionConflict = errors.New("an open cash session already exists")
	ErrInvalidInput        = errors.New("invalid input")
)
