package billing

import (
	"context"
	"errors"
	"time"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/telemetry"
	"github.com/sony/gobreaker/v2"
)

// Checkout is a hosted payment gateway. The browser completes payment on
// the gateway's page; the server creates the remote order beforehand and
// verifies the outcome afterwards.
type Checkout interface {
	// Provider returns the gateway name, e.g. "razorpay".
	Provider() string

	// PublicKey returns the publishable key the browser widget needs.
	PublicKey(ctx context.Context) (string, error)

	// CreateRemoteOrder registers the amount with the gateway.
	CreateRemoteOrder(ctx context.Context, params CreateOrderParams) (*RemoteOrder, error)

	// VerifyPayment authenticates a completed payment and returns the
	// gateway's authoritative view of it. It never trusts client amounts.
	VerifyPayment(ctx context.Context, params VerifyParams) (*VerifiedPayment, error)
}

// CreateOrderParams contains parameters for creating a remote order.
type CreateOrderParams struct {
	AmountPaise int64
	Currency    string

	// Receipt ties the remote order to the local order id.
	Receipt string

	// IdempotencyKey prevents duplicate remote orders on retry.
	IdempotencyKey string

	Notes map[string]string
}

// RemoteOrder is the gateway's record of a checkout.
type RemoteOrder struct {
	ID          string `json:"id"`
	AmountPaise int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt,omitempty"`
	Status      string `json:"status,omitempty"`

	// ClientSecret is set by gateways that confirm payment client-side.
	ClientSecret string `json:"clientSecret,omitempty"`
}

// VerifyParams is what the browser reports after checkout completes.
type VerifyParams struct {
	RemoteOrderID string
	PaymentID     string
	Signature     string
}

// VerifiedPayment is a payment authenticated with the gateway.
type VerifiedPayment struct {
	RemoteOrderID string
	PaymentID     string
	AmountPaise   int64
	Currency      string
	Receipt       string
}

// Settings controls timeouts and circuit breaking for gateway calls.
type Settings struct {
	// Timeout bounds every gateway call. Default: 10s
	Timeout time.Duration

	// MaxFailures opens the breaker after this many consecutive failures.
	// Default: 5
	MaxFailures uint32

	// OpenFor is how long the breaker stays open. Default: 30s
	OpenFor time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 30 * time.Second
	}
	return s
}

func newBreaker[T any](name string, s Settings) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// A missing order is the caller's problem, not the gateway's.
			return err == nil || errors.Is(err, ErrRemoteOrderNotFound)
		},
	})
}

type callResult[T any] struct {
	val T
	err error
}

// guardedCall runs fn through the breaker with a deadline. The SDKs used
// here are not context-aware, so a call that outlives ctx keeps running in
// the background and its result is discarded.
func guardedCall[T any](ctx context.Context, cb *gobreaker.CircuitBreaker[T], s Settings, provider, operation string, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	result, err := cb.Execute(func() (T, error) {
		done := make(chan callResult[T], 1)
		go func() {
			v, err := fn()
			done <- callResult[T]{v, err}
		}()

		select {
		case o := <-done:
			return o.val, o.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	})
	telemetry.Business.ObserveGateway(provider, operation, start, err)
	return result, err
}

// isUnavailable reports whether err means the gateway could not be reached
// in time, as opposed to the gateway rejecting the request.
func isUnavailable(err error) bool {
	var gerr *GatewayError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return true
	case errors.As(err, &gerr):
		return gerr.IsTemporary()
	default:
		return false
	}
}

// wrap attaches err as the cause of a domain sentinel.
func wrap(sentinel *domain.Error, op string, err error) error {
	e := sentinel.WithOp(op)
	e.Err = err
	return e
}
