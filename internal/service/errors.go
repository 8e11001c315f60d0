package service

import (
	"github.com/dukerupert/hoversale/internal/domain"
)

// ErrNotOrderOwner hides other users' orders behind a 404.
var ErrNotOrderOwner = domain.ErrOrderNotFound

// Payment flow errors
var (
	ErrNotPrepaid = &domain.Error{
		Code:    domain.ECONFLICT,
		Reason:  "payment_method_mismatch",
		Message: "Order is not awaiting this kind of payment",
	}
	ErrUPIUnavailable = &domain.Error{
		Code:    domain.EUNAVAILABLE,
		Reason:  "upi_disabled",
		Message: "UPI payments are not configured",
	}
	ErrCheckoutDisabled = &domain.Error{
		Code:    domain.EUNAVAILABLE,
		Reason:  "checkout_disabled",
		Message: "Online checkout is not configured",
	}
	ErrUnknownPaymentLink = &domain.Error{
		Code:    domain.EINVALID,
		Reason:  "unknown_payment_link",
		Message: "Payment does not reference an order",
	}
)

// ErrEmailUnavailable is returned when invoices are requested without a
// mail transport.
var ErrEmailUnavailable = &domain.Error{
	Code:    domain.EUNAVAILABLE,
	Reason:  "email_disabled",
	Message: "Email delivery is not configured",
}
