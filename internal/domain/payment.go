package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is the only currency orders are placed in.
const Currency = "INR"

// MaxAmountPaise caps any single price, subtotal or order total at
// ten crore rupees.
const MaxAmountPaise int64 = 100_000_000 * 100

var (
	paisePerRupee = decimal.NewFromInt(100)
	maxPaise      = decimal.NewFromInt(MaxAmountPaise)
)

// RupeesToPaise converts a rupee amount to minor units. Fractions of a
// paisa are rejected rather than rounded, as is anything whose magnitude
// exceeds MaxAmountPaise.
func RupeesToPaise(amount decimal.Decimal) (int64, error) {
	const op = "money.convert"

	paise := amount.Mul(paisePerRupee)
	if !paise.IsInteger() {
		return 0, Invalid(op, "amount has more than two decimal places")
	}
	if paise.Abs().GreaterThan(maxPaise) {
		return 0, ErrAmountOutOfRange.WithOp(op)
	}
	return paise.IntPart(), nil
}

// PaiseToRupees converts minor units back to a rupee amount.
func PaiseToRupees(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

// FormatRupees renders paise as a two-decimal rupee string, e.g. "499.00".
func FormatRupees(paise int64) string {
	return PaiseToRupees(paise).StringFixed(2)
}

// PaymentSession is the ephemeral state of one hosted checkout attempt.
// It is never persisted; the order row is the durable record.
type PaymentSession struct {
	LocalOrderID  uuid.UUID
	AmountPaise   int64
	Currency      string
	PayerName     string
	PayerEmail    string
	PayerPhone    string
	RemoteOrderID string

	// Set by the client after the provider's checkout completes.
	RemotePaymentID string
	Signature       string
}

// PaymentProof is evidence handed to the reconciler.
type PaymentProof struct {
	// Provider that produced the proof ("razorpay", "stripe", "upi_ledger").
	Provider string

	// Reference is the provider's payment id.
	Reference string

	// Verified is true only when the proof was authenticated server-side.
	Verified bool
}
