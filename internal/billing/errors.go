package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAPIKey is returned when gateway credentials are missing.
	ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")

	// ErrMissingMerchantVPA is returned when no merchant UPI ID is configured.
	ErrMissingMerchantVPA = errors.New("billing: merchant UPI ID not configured")

	// ErrRemoteOrderNotFound is returned when the gateway has no order or
	// payment intent with the given id.
	ErrRemoteOrderNotFound = errors.New("billing: remote order not found")

	// ErrInvalidWebhookSignature is returned when webhook signature verification fails.
	ErrInvalidWebhookSignature = errors.New("billing: invalid webhook signature")
)

// GatewayError wraps a payment gateway API error with additional context.
type GatewayError struct {
	Provider      string // "razorpay" or "stripe"
	Operation     string // e.g. "create_order"
	Message       string // Human-readable error message
	Code          string // Gateway error code (e.g., "BAD_REQUEST_ERROR", "rate_limit")
	StatusCode    int    // HTTP status code from the gateway, when known
	RequestID     string // Gateway request ID for debugging
	OriginalError error  // Original error from the SDK
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s (code: %s)", e.Provider, e.Operation, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Operation, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.OriginalError
}

// IsTemporary returns true if error is likely transient and retryable.
func (e *GatewayError) IsTemporary() bool {
	return e.Code == "rate_limit" || e.Code == "api_connection_error" || e.StatusCode >= 500
}
