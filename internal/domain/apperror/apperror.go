package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrDeliveryInProgress  = errors.New("webhook delivery is already being processed")
	ErrNeedsReconciliation = errors.New("webhook delivery failed after payout was attempted; manual reconciliation required")
)

// AuthError means the gateway refused or failed the client-credentials exchange.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway auth failed: %v", e.Err)
	}
	return fmt.Sprintf("gateway auth failed: status %d: %s", e.Status, e.Body)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// GatewayError is a non-2xx answer or transport failure from the payment gateway.
// Status is 0 when no response was received.
type GatewayError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *GatewayError) Error() string {
	return upstreamMessage("gateway", e.Op, e.Status, e.Body, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ExchangeError is a non-2xx answer or transport failure from the exchange.
// Status is 0 when no response was received.
type ExchangeError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	return upstreamMessage("exchange", e.Op, e.Status, e.Body, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func upstreamMessage(upstream, op string, status int, body string, err error) string {
	if err != nil {
		return fmt.Sprintf("%s %s failed: %v", upstream, op, err)
	}
	return fmt.Sprintf("%s %s failed: status %d: %s", upstream, op, status, body)
}
