package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/dukerupert/hoversale/internal/billing"
	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localOrderID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func TestUPIIntent(t *testing.T) {
	var got service.UPIIntentParams
	svc := &mockPaymentService{
		CreateUPIIntentFunc: func(ctx context.Context, params service.UPIIntentParams) (*billing.UPIIntent, error) {
			got = params
			if params.AmountPaise <= 0 {
				return nil, domain.ErrInvalidAmount
			}
			return &billing.UPIIntent{
				URI:         "upi://pay?pa=hoversale@upi&pn=HoverSale&am=499.00&cu=INR&tn=Order",
				AmountPaise: params.AmountPaise,
				Amount:      "499.00",
			}, nil
		},
	}
	h := NewPaymentHandler(svc, nil)

	rec := serve("POST /payments/upi-intent", h.UPIIntent, http.MethodPost, "/payments/upi-intent", "",
		`{"payeeName":"ignored","amount":"499","note":"Order"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec.Body.Bytes())
	assert.Contains(t, body["upiUri"], "am=499.00")
	assert.Equal(t, int64(49900), got.AmountPaise)

	rec = serve("POST /payments/upi-intent", h.UPIIntent, http.MethodPost, "/payments/upi-intent", "",
		`{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ReasonInvalidAmount, errorReason(t, rec.Body.Bytes()))

	// Larger than int64 paise; must not wrap to a tiny amount.
	got = service.UPIIntentParams{}
	rec = serve("POST /payments/upi-intent", h.UPIIntent, http.MethodPost, "/payments/upi-intent", "",
		`{"amount":"184467440737095516.17"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ReasonAmountOutOfRange, errorReason(t, rec.Body.Bytes()))
	assert.Zero(t, got.AmountPaise, "service must not be called")
}

func TestUPIClaim(t *testing.T) {
	svc := &mockPaymentService{
		ClaimUPIPaymentFunc: func(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
			return pendingOrder(userID, domain.PaymentMethodUPI, 50000), nil
		},
	}
	h := NewPaymentHandler(svc, nil)

	rec := serve("POST /payments/upi-claim", h.UPIClaim, http.MethodPost, "/payments/upi-claim", "u1",
		`{"orderId":"`+localOrderID+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec.Body.Bytes())
	assert.Equal(t, "Unpaid", body["paymentStatus"])
	assert.Equal(t, false, body["verified"])
}

func TestProviderKey(t *testing.T) {
	h := NewPaymentHandler(&mockPaymentService{
		ProviderKeyFunc: func(ctx context.Context) (string, error) { return "rzp_test_123", nil },
	}, nil)
	rec := serve("GET /payments/provider-key", h.ProviderKey, http.MethodGet, "/payments/provider-key", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rzp_test_123", decodeBody(t, rec.Body.Bytes())["publicKey"])

	h = NewPaymentHandler(&mockPaymentService{}, nil)
	rec = serve("GET /payments/provider-key", h.ProviderKey, http.MethodGet, "/payments/provider-key", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, domain.ReasonKeyFetchFailed, errorReason(t, rec.Body.Bytes()))
}

func TestProviderOrder(t *testing.T) {
	var got service.ProviderOrderParams
	svc := &mockPaymentService{
		CreateProviderOrderFunc: func(ctx context.Context, params service.ProviderOrderParams) (*billing.RemoteOrder, error) {
			got = params
			return &billing.RemoteOrder{ID: "order_abc", AmountPaise: 50000, Currency: "INR", Receipt: localOrderID}, nil
		},
	}
	h := NewPaymentHandler(svc, nil)

	t.Run("for a local order", func(t *testing.T) {
		rec := serve("POST /payments/provider-order", h.ProviderOrder, http.MethodPost, "/payments/provider-order", "u1",
			`{"orderId":"`+localOrderID+`","amount":500}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec.Body.Bytes())
		assert.Equal(t, "order_abc", body["remoteOrderId"])
		assert.Equal(t, float64(50000), body["amount"])
		assert.Equal(t, "INR", body["currency"])

		require.NotNil(t, got.OrderID)
		assert.Equal(t, localOrderID, got.OrderID.String())
		assert.Equal(t, int64(50000), got.AmountPaise)
		assert.Equal(t, "u1", got.UserID)
	})

	t.Run("needs an order or an amount", func(t *testing.T) {
		rec := serve("POST /payments/provider-order", h.ProviderOrder, http.MethodPost, "/payments/provider-order", "u1", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("negative amount", func(t *testing.T) {
		rec := serve("POST /payments/provider-order", h.ProviderOrder, http.MethodPost, "/payments/provider-order", "u1", `{"amount":-5}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, domain.ReasonInvalidAmount, errorReason(t, rec.Body.Bytes()))
	})

	t.Run("gateway timeout is retryable", func(t *testing.T) {
		h := NewPaymentHandler(&mockPaymentService{
			CreateProviderOrderFunc: func(ctx context.Context, params service.ProviderOrderParams) (*billing.RemoteOrder, error) {
				return nil, domain.ErrGatewayTimeout
			},
		}, nil)
		rec := serve("POST /payments/provider-order", h.ProviderOrder, http.MethodPost, "/payments/provider-order", "u1", `{"amount":500}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, domain.ReasonGatewayTimeout, errorReason(t, rec.Body.Bytes()))
	})
}

func TestVerify(t *testing.T) {
	payload := `{
		"remoteOrderId": "order_abc",
		"remotePaymentId": "pay_xyz",
		"signature": "deadbeef",
		"localOrderId": "` + localOrderID + `",
		"amount": 500
	}`

	t.Run("verified", func(t *testing.T) {
		var got service.VerifyPaymentParams
		svc := &mockPaymentService{
			VerifyPaymentFunc: func(ctx context.Context, params service.VerifyPaymentParams) (*domain.Order, error) {
				got = params
				o := pendingOrder("u1", domain.PaymentMethodOnlinePayment, 50000)
				o.PaymentStatus = domain.PaymentStatusPaid
				return o, nil
			},
		}
		h := NewPaymentHandler(svc, nil)

		rec := serve("POST /payments/verify", h.Verify, http.MethodPost, "/payments/verify", "u1", payload)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec.Body.Bytes())
		assert.Equal(t, true, body["verified"])
		assert.Equal(t, "Paid", body["paymentStatus"])

		assert.Equal(t, "order_abc", got.RemoteOrderID)
		assert.Equal(t, "pay_xyz", got.PaymentID)
		assert.Equal(t, "deadbeef", got.Signature)
		assert.Equal(t, int64(50000), got.AmountPaise)
		assert.Equal(t, "u1", got.UserID)
	})

	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"tampered signature", domain.ErrSignatureMismatch, http.StatusPaymentRequired, domain.ReasonSignatureMismatch},
		{"amount mismatch", domain.ErrAmountMismatch, http.StatusPaymentRequired, domain.ReasonAmountMismatch},
		{"canceled order", domain.ErrInvalidTransition, http.StatusConflict, domain.ReasonInvalidTransition},
		{"gateway timeout", domain.ErrGatewayTimeout, http.StatusServiceUnavailable, domain.ReasonGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPaymentHandler(&mockPaymentService{
				VerifyPaymentFunc: func(ctx context.Context, params service.VerifyPaymentParams) (*domain.Order, error) {
					return nil, tt.err
				},
			}, nil)

			rec := serve("POST /payments/verify", h.Verify, http.MethodPost, "/payments/verify", "", payload)
			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec.Body.Bytes())
			assert.Equal(t, false, body["verified"])
			assert.Equal(t, tt.reason, errorReason(t, rec.Body.Bytes()))
		})
	}

	t.Run("missing fields", func(t *testing.T) {
		h := NewPaymentHandler(&mockPaymentService{}, nil)
		rec := serve("POST /payments/verify", h.Verify, http.MethodPost, "/payments/verify", "", `{"amount":500}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec.Body.Bytes())
		assert.Equal(t, false, body["verified"])
	})
}
