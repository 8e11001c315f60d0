package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/telemetry"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/webhook"
)

const providerStripe = "stripe"

// MetadataOrderID is the PaymentIntent metadata key holding the local order id.
const MetadataOrderID = "order_id"

// stripeIntents is the subset of the paymentintent client in use.
type stripeIntents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfig contains configuration for the Stripe gateway.
type StripeConfig struct {
	// SecretKey is the Stripe secret key (sk_test_... or sk_live_...)
	SecretKey string

	// PublishableKey is handed to Stripe.js (pk_test_... or pk_live_...)
	PublishableKey string

	// WebhookSecret is the webhook signing secret (whsec_...)
	WebhookSecret string

	Settings Settings
}

// Validate checks that required configuration is present.
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" || c.PublishableKey == "" {
		return ErrInvalidAPIKey
	}
	if c.WebhookSecret == "" {
		return errors.New("stripe: webhook secret is required")
	}
	return nil
}

// IsTestMode returns true if using test mode API keys.
func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.SecretKey, "sk_test_")
}

// StripeCheckout implements Checkout using Stripe PaymentIntents. Payment
// is confirmed by Stripe.js in the browser; the server trusts only the
// PaymentIntent it fetches itself or a signed webhook.
type StripeCheckout struct {
	publishableKey string
	webhookSecret  string
	intents        stripeIntents
	settings       Settings
	breaker        *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
}

var _ Checkout = (*StripeCheckout)(nil)

// NewStripeCheckout creates a Stripe gateway client.
func NewStripeCheckout(cfg StripeConfig) (*StripeCheckout, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := cfg.Settings.withDefaults()
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   s.Timeout,
			Transport: &telemetry.GatewayTransport{Provider: providerStripe, Transport: http.DefaultTransport},
		},
		MaxNetworkRetries: stripe.Int64(2),
	})
	return newStripeCheckout(cfg, &paymentintent.Client{B: backend, Key: cfg.SecretKey}), nil
}

func newStripeCheckout(cfg StripeConfig, intents stripeIntents) *StripeCheckout {
	s := cfg.Settings.withDefaults()
	return &StripeCheckout{
		publishableKey: cfg.PublishableKey,
		webhookSecret:  cfg.WebhookSecret,
		intents:        intents,
		settings:       s,
		breaker:        newBreaker[*stripe.PaymentIntent](providerStripe, s),
	}
}

// Provider returns "stripe".
func (c *StripeCheckout) Provider() string { return providerStripe }

// PublicKey returns the publishable key.
func (c *StripeCheckout) PublicKey(ctx context.Context) (string, error) {
	if c.publishableKey == "" {
		return "", domain.ErrKeyFetchFailed.WithOp("stripe.public_key")
	}
	return c.publishableKey, nil
}

// CreateRemoteOrder creates a PaymentIntent. The returned ClientSecret is
// what Stripe.js confirms against.
func (c *StripeCheckout) CreateRemoteOrder(ctx context.Context, params CreateOrderParams) (*RemoteOrder, error) {
	const op = "stripe.create_order"

	if params.AmountPaise <= 0 {
		return nil, domain.ErrInvalidAmount.WithOp(op)
	}
	currency := params.Currency
	if currency == "" {
		currency = domain.Currency
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.AmountPaise),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	piParams.Context = ctx
	if params.Receipt != "" {
		piParams.AddMetadata(MetadataOrderID, params.Receipt)
	}
	for k, v := range params.Notes {
		piParams.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		piParams.SetIdempotencyKey(params.IdempotencyKey)
	}

	pi, err := guardedCall(ctx, c.breaker, c.settings, providerStripe, "create_payment_intent", func() (*stripe.PaymentIntent, error) {
		pi, err := c.intents.New(piParams)
		return pi, stripeGatewayError("create_payment_intent", err)
	})
	if err != nil {
		if isUnavailable(err) {
			return nil, wrap(domain.ErrGatewayTimeout, op, err)
		}
		return nil, wrap(domain.ErrRemoteOrderCreationFailed, op, err)
	}

	return &RemoteOrder{
		ID:           pi.ID,
		AmountPaise:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Receipt:      pi.Metadata[MetadataOrderID],
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
	}, nil
}

// VerifyPayment fetches the PaymentIntent named by params.PaymentID (or
// params.RemoteOrderID) and requires it to have succeeded. Stripe.js does
// not sign its redirect, so the fetch is the verification.
func (c *StripeCheckout) VerifyPayment(ctx context.Context, params VerifyParams) (*VerifiedPayment, error) {
	const op = "stripe.verify"

	id := params.PaymentID
	if id == "" {
		id = params.RemoteOrderID
	}
	if id == "" {
		return nil, domain.ErrSignatureMismatch.WithOp(op)
	}
	if params.RemoteOrderID != "" && params.PaymentID != "" && params.RemoteOrderID != params.PaymentID {
		return nil, domain.ErrSignatureMismatch.WithOp(op)
	}

	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := guardedCall(ctx, c.breaker, c.settings, providerStripe, "get_payment_intent", func() (*stripe.PaymentIntent, error) {
		pi, err := c.intents.Get(id, getParams)
		return pi, stripeGatewayError("get_payment_intent", err)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrRemoteOrderNotFound):
			return nil, wrap(domain.ErrSignatureMismatch, op, err)
		case isUnavailable(err):
			return nil, wrap(domain.ErrGatewayTimeout, op, err)
		default:
			return nil, wrap(domain.ErrGatewayRejected, op, err)
		}
	}

	return verifiedFromIntent(op, pi)
}

// VerifyWebhook authenticates a webhook payload against its
// Stripe-Signature header and returns the decoded event.
func (c *StripeCheckout) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return event, nil
}

// PaymentFromEvent extracts the verified payment from a
// payment_intent.succeeded event.
func PaymentFromEvent(event stripe.Event) (*VerifiedPayment, error) {
	const op = "stripe.webhook"

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, domain.Errorf(domain.EINVALID, op, "invalid payment intent payload")
	}
	return verifiedFromIntent(op, &pi)
}

func verifiedFromIntent(op string, pi *stripe.PaymentIntent) (*VerifiedPayment, error) {
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, domain.ErrPaymentIncomplete.WithOp(op)
	}
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	return &VerifiedPayment{
		RemoteOrderID: pi.ID,
		PaymentID:     pi.ID,
		AmountPaise:   amount,
		Currency:      strings.ToUpper(string(pi.Currency)),
		Receipt:       pi.Metadata[MetadataOrderID],
	}, nil
}

func stripeGatewayError(operation string, err error) error {
	if err == nil {
		return nil
	}
	gerr := &GatewayError{
		Provider:      providerStripe,
		Operation:     operation,
		Message:       err.Error(),
		OriginalError: err,
	}
	var serr *stripe.Error
	if errors.As(err, &serr) {
		gerr.Message = serr.Msg
		gerr.Code = string(serr.Code)
		gerr.StatusCode = serr.HTTPStatusCode
		gerr.RequestID = serr.RequestID
		if serr.HTTPStatusCode == 0 && gerr.Code == "" {
			gerr.Code = "api_connection_error"
		}
		if serr.Code == stripe.ErrorCodeResourceMissing {
			gerr.OriginalError = errors.Join(ErrRemoteOrderNotFound, err)
		}
	}
	return gerr
}
