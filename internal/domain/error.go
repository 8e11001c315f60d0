package domain

import (
	"errors"
	"fmt"
)

// Application error codes.
// These map to HTTP status codes and determine user-facing messages.
const (
	ECONFLICT     = "conflict"         // 409 - State conflict (cancel after ship, etc.)
	EINTERNAL     = "internal"         // 500 - Internal server error (hide details)
	EINVALID      = "invalid"          // 400 - Validation error (bad input)
	ENOTFOUND     = "not_found"        // 404 - Resource not found
	EUNAUTHORIZED = "unauthorized"     // 401 - Caller identity missing
	EFORBIDDEN    = "forbidden"        // 403 - Caller does not own the resource
	EPAYMENT      = "payment_required" // 402 - Payment proof rejected
	EUNAVAILABLE  = "unavailable"      // 503 - Upstream timed out, retry later
	EGATEWAY      = "bad_gateway"      // 502 - Upstream refused the request
	ETOOLARGE     = "too_large"        // 413 - Request body too large
	ERATELIMIT    = "rate_limit"       // 429 - Too many requests
)

// Reasons name the specific condition behind an error code.
// Clients branch on these; messages are for humans.
const (
	ReasonInvalidAddress            = "invalid_address"
	ReasonEmptyCart                 = "empty_cart"
	ReasonInvalidItem               = "invalid_item"
	ReasonInvalidAmount             = "invalid_amount"
	ReasonStockUnavailable          = "stock_unavailable"
	ReasonInvalidTransition         = "invalid_transition"
	ReasonRefundRequired            = "refund_required"
	ReasonSignatureMismatch         = "signature_mismatch"
	ReasonAmountMismatch            = "amount_mismatch"
	ReasonGatewayTimeout            = "gateway_timeout"
	ReasonKeyFetchFailed            = "key_fetch_failed"
	ReasonRemoteOrderCreationFailed = "remote_order_creation_failed"
	ReasonGatewayRejected           = "gateway_rejected"
	ReasonPaymentIncomplete         = "payment_incomplete"
	ReasonPaymentReused             = "payment_reused"
	ReasonAmountOutOfRange          = "amount_out_of_range"
	ReasonDuplicateItem             = "duplicate_item"
	ReasonPersistenceFailure        = "persistence_failure"
	ReasonValidation                = "validation_error"
	ReasonOrderNotFound             = "order_not_found"
)

// Error represents an application error with a code and message.
// It implements the error interface and supports error wrapping.
type Error struct {
	// Code is a machine-readable error code (e.g., EINVALID, ENOTFOUND).
	Code string

	// Reason is the finer-grained condition (e.g., ReasonSignatureMismatch).
	Reason string

	// Message is a human-readable error message safe to show to users.
	Message string

	// Op is the operation where the error occurred (e.g., "order.cancel").
	// Used for debugging and logging, not shown to users.
	Op string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by code and reason so that errors returned
// with a different Op still satisfy errors.Is(err, ErrSignatureMismatch).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason != "" && t.Code == e.Code && t.Reason == e.Reason
}

// WithOp returns a copy of e tagged with op. Sentinels stay untouched.
func (e *Error) WithOp(op string) *Error {
	cp := *e
	cp.Op = op
	return &cp
}

// ErrorCode extracts the error code from an error.
// Returns EINTERNAL for nil or non-domain errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if IsValidationError(err) {
		return EINVALID
	}

	return EINTERNAL
}

// ErrorReason extracts the reason from an error, or "" if none.
func ErrorReason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if IsValidationError(err) {
		return ReasonValidation
	}
	return ""
}

// ErrorMessage extracts a user-facing message from an error.
// For internal errors, returns a generic message to avoid leaking details.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return "Validation failed"
	}

	return "An internal error occurred. Please try again later."
}

// ErrorOp extracts the operation from an error (for logging).
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}

	return ""
}

// Errorf creates a new domain error with formatted message.
// Example: domain.Errorf(domain.EINVALID, "order.place", "unknown payment method: %s", m)
func Errorf(code, op, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with a domain error code and operation.
// Returns nil if err is nil.
func WrapError(err error, code, op, message string) error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsCode returns true if err has the given error code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// =============================================================================
// Validation Errors (field-level errors for request bodies)
// =============================================================================

// ValidationError represents one or more field validation failures.
type ValidationError struct {
	// Fields maps field names to error messages.
	Fields map[string]string

	// Op is the operation where validation failed.
	Op string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for field, msg := range e.Fields {
			if e.Op != "" {
				return fmt.Sprintf("%s: %s: %s", e.Op, field, msg)
			}
			return fmt.Sprintf("%s: %s", field, msg)
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: validation failed for %d fields", e.Op, len(e.Fields))
	}
	return fmt.Sprintf("validation failed for %d fields", len(e.Fields))
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(op, field, message string) error {
	return &ValidationError{
		Op:     op,
		Fields: map[string]string{field: message},
	}
}

// AddFieldError adds a field error to an existing ValidationError.
// If err is nil or not a ValidationError, creates a new one with the field.
func AddFieldError(err error, field, message string) error {
	var ve *ValidationError
	if err != nil && errors.As(err, &ve) {
		ve.Fields[field] = message
		return ve
	}

	return &ValidationError{
		Fields: map[string]string{field: message},
	}
}

// IsValidationError returns true if err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GetValidationFields extracts field errors from a ValidationError.
// Returns nil if err is not a ValidationError.
func GetValidationFields(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

// =============================================================================
// Order and payment errors
// =============================================================================

var (
	ErrInvalidAddress = &Error{
		Code: EINVALID, Reason: ReasonInvalidAddress,
		Message: "A delivery address is required",
	}
	ErrEmptyCart = &Error{
		Code: EINVALID, Reason: ReasonEmptyCart,
		Message: "No items selected",
	}
	ErrInvalidItem = &Error{
		Code: EINVALID, Reason: ReasonInvalidItem,
		Message: "One or more items do not exist",
	}
	ErrInvalidAmount = &Error{
		Code: EINVALID, Reason: ReasonInvalidAmount,
		Message: "Amount must be greater than zero",
	}
	ErrStockUnavailable = &Error{
		Code: ECONFLICT, Reason: ReasonStockUnavailable,
		Message: "One or more items are out of stock",
	}
	ErrInvalidTransition = &Error{
		Code: ECONFLICT, Reason: ReasonInvalidTransition,
		Message: "Order cannot move to the requested state",
	}
	ErrRefundRequired = &Error{
		Code: ECONFLICT, Reason: ReasonRefundRequired,
		Message: "Paid orders cannot be canceled without a refund",
	}
	ErrSignatureMismatch = &Error{
		Code: EPAYMENT, Reason: ReasonSignatureMismatch,
		Message: "Payment signature could not be verified",
	}
	ErrAmountMismatch = &Error{
		Code: EPAYMENT, Reason: ReasonAmountMismatch,
		Message: "Paid amount does not match the order total",
	}
	ErrGatewayTimeout = &Error{
		Code: EUNAVAILABLE, Reason: ReasonGatewayTimeout,
		Message: "Payment provider did not respond, please retry",
	}
	ErrKeyFetchFailed = &Error{
		Code: EUNAVAILABLE, Reason: ReasonKeyFetchFailed,
		Message: "Payment provider key is not available",
	}
	ErrRemoteOrderCreationFailed = &Error{
		Code: EGATEWAY, Reason: ReasonRemoteOrderCreationFailed,
		Message: "Payment provider rejected the order",
	}
	ErrGatewayRejected = &Error{
		Code: EGATEWAY, Reason: ReasonGatewayRejected,
		Message: "Payment provider returned an error",
	}
	ErrPaymentIncomplete = &Error{
		Code: EPAYMENT, Reason: ReasonPaymentIncomplete,
		Message: "Payment has not completed",
	}
	ErrPaymentReused = &Error{
		Code: EPAYMENT, Reason: ReasonPaymentReused,
		Message: "Payment has already been applied to another order",
	}
	ErrAmountOutOfRange = &Error{
		Code: EINVALID, Reason: ReasonAmountOutOfRange,
		Message: "Amount is too large",
	}
	ErrDuplicateItem = &Error{
		Code: EINVALID, Reason: ReasonDuplicateItem,
		Message: "Each product may appear only once",
	}
	ErrPersistenceFailure = &Error{
		Code: EINTERNAL, Reason: ReasonPersistenceFailure,
		Message: "Order could not be saved",
	}
	ErrOrderNotFound = &Error{
		Code: ENOTFOUND, Reason: ReasonOrderNotFound,
		Message: "Order not found",
	}
)

// Persistence wraps a storage error as ErrPersistenceFailure.
func Persistence(err error, op string) error {
	e := ErrPersistenceFailure.WithOp(op)
	e.Err = err
	return e
}

// =============================================================================
// Common errors (convenience)
// =============================================================================

// NotFound creates a not found error for a resource.
// Example: domain.NotFound("order.get", "order", orderID.String())
func NotFound(op, resource, identifier string) error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(op, message string) error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a forbidden error.
// Example: domain.Forbidden("order.cancel", "order belongs to another user")
func Forbidden(op, message string) error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Invalid creates a validation error for a single issue.
// Example: domain.Invalid("order.place", "quantity must be at least 1")
func Invalid(op, message string) error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error (wraps underlying error).
// The message shown to users will be generic; the underlying error is for logging.
func Internal(err error, op, message string) error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
