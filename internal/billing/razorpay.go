package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/dukerupert/hoversale/internal/domain"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/sony/gobreaker/v2"
)

const providerRazorpay = "razorpay"

// razorpayOrders is the subset of the razorpay-go order resource in use.
type razorpayOrders interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayConfig contains configuration for the Razorpay gateway.
type RazorpayConfig struct {
	// KeyID is the publishable key (rzp_test_... or rzp_live_...)
	KeyID string

	// KeySecret signs checkout callbacks and authenticates API calls.
	KeySecret string

	Settings Settings
}

// Validate checks that required configuration is present.
func (c *RazorpayConfig) Validate() error {
	if c.KeyID == "" || c.KeySecret == "" {
		return ErrInvalidAPIKey
	}
	return nil
}

// IsTestMode returns true if using test mode keys.
func (c *RazorpayConfig) IsTestMode() bool {
	return strings.HasPrefix(c.KeyID, "rzp_test_")
}

// RazorpayCheckout implements Checkout using Razorpay Orders.
type RazorpayCheckout struct {
	keyID    string
	secret   string
	orders   razorpayOrders
	settings Settings
	breaker  *gobreaker.CircuitBreaker[map[string]interface{}]
}

var _ Checkout = (*RazorpayCheckout)(nil)

// NewRazorpayCheckout creates a Razorpay gateway client.
func NewRazorpayCheckout(cfg RazorpayConfig) (*RazorpayCheckout, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return newRazorpayCheckout(cfg, client.Order), nil
}

func newRazorpayCheckout(cfg RazorpayConfig, orders razorpayOrders) *RazorpayCheckout {
	s := cfg.Settings.withDefaults()
	return &RazorpayCheckout{
		keyID:    cfg.KeyID,
		secret:   cfg.KeySecret,
		orders:   orders,
		settings: s,
		breaker:  newBreaker[map[string]interface{}](providerRazorpay, s),
	}
}

// Provider returns "razorpay".
func (r *RazorpayCheckout) Provider() string { return providerRazorpay }

// PublicKey returns the key id the checkout widget is opened with.
func (r *RazorpayCheckout) PublicKey(ctx context.Context) (string, error) {
	if r.keyID == "" {
		return "", domain.ErrKeyFetchFailed.WithOp("razorpay.public_key")
	}
	return r.keyID, nil
}

// CreateRemoteOrder creates a Razorpay order for the amount in paise.
func (r *RazorpayCheckout) CreateRemoteOrder(ctx context.Context, params CreateOrderParams) (*RemoteOrder, error) {
	const op = "razorpay.create_order"

	if params.AmountPaise <= 0 {
		return nil, domain.ErrInvalidAmount.WithOp(op)
	}
	currency := params.Currency
	if currency == "" {
		currency = domain.Currency
	}

	data := map[string]interface{}{
		"amount":   params.AmountPaise,
		"currency": currency,
		"receipt":  params.Receipt,
	}
	if len(params.Notes) > 0 {
		notes := make(map[string]interface{}, len(params.Notes))
		for k, v := range params.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	body, err := guardedCall(ctx, r.breaker, r.settings, providerRazorpay, "create_order", func() (map[string]interface{}, error) {
		res, err := r.orders.Create(data, nil)
		return res, r.gatewayError("create_order", err)
	})
	if err != nil {
		if isUnavailable(err) {
			return nil, wrap(domain.ErrGatewayTimeout, op, err)
		}
		return nil, wrap(domain.ErrRemoteOrderCreationFailed, op, err)
	}

	order := parseRazorpayOrder(body)
	if order.ID == "" {
		return nil, wrap(domain.ErrRemoteOrderCreationFailed, op, errors.New("response carried no order id"))
	}
	return order, nil
}

// VerifyPayment checks the checkout signature and then fetches the order
// so the caller can compare the authoritative amount with its own record.
func (r *RazorpayCheckout) VerifyPayment(ctx context.Context, params VerifyParams) (*VerifiedPayment, error) {
	const op = "razorpay.verify"

	if params.RemoteOrderID == "" || params.PaymentID == "" || params.Signature == "" {
		return nil, domain.ErrSignatureMismatch.WithOp(op)
	}
	if !VerifySignature(r.secret, params.RemoteOrderID, params.PaymentID, params.Signature) {
		return nil, domain.ErrSignatureMismatch.WithOp(op)
	}

	body, err := guardedCall(ctx, r.breaker, r.settings, providerRazorpay, "fetch_order", func() (map[string]interface{}, error) {
		res, err := r.orders.Fetch(params.RemoteOrderID, nil, nil)
		return res, r.gatewayError("fetch_order", err)
	})
	if err != nil {
		if isUnavailable(err) {
			return nil, wrap(domain.ErrGatewayTimeout, op, err)
		}
		return nil, wrap(domain.ErrGatewayRejected, op, err)
	}

	order := parseRazorpayOrder(body)
	return &VerifiedPayment{
		RemoteOrderID: params.RemoteOrderID,
		PaymentID:     params.PaymentID,
		AmountPaise:   order.AmountPaise,
		Currency:      order.Currency,
		Receipt:       order.Receipt,
	}, nil
}

// SignPayment returns the checkout signature for a remote order and payment:
// hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
func SignPayment(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature with the expected value in constant time.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	expected := SignPayment(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (r *RazorpayCheckout) gatewayError(operation string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	gerr := &GatewayError{
		Provider:      providerRazorpay,
		Operation:     operation,
		Message:       msg,
		OriginalError: err,
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "does not exist"):
		gerr.Code = "BAD_REQUEST_ERROR"
		gerr.OriginalError = errors.Join(ErrRemoteOrderNotFound, err)
	case strings.Contains(lower, "too many requests"):
		gerr.Code = "rate_limit"
	case strings.Contains(lower, "server error"), strings.Contains(lower, "gateway"):
		gerr.Code = "SERVER_ERROR"
		gerr.StatusCode = 500
	}
	return gerr
}

func parseRazorpayOrder(body map[string]interface{}) *RemoteOrder {
	o := &RemoteOrder{
		ID:       stringField(body, "id"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Status:   stringField(body, "status"),
	}
	o.AmountPaise, _ = intField(body, "amount")
	return o
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// intField reads a numeric field regardless of how the JSON was decoded.
func intField(m map[string]interface{}, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
