package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/google/uuid"
)

// MockCheckout is a mock hosted checkout for testing.
// Simulates successful payment flows without calling a gateway.
type MockCheckout struct {
	// PublicKeyFunc allows customizing key retrieval behavior
	PublicKeyFunc func(ctx context.Context) (string, error)

	// CreateRemoteOrderFunc allows customizing remote order creation behavior
	CreateRemoteOrderFunc func(ctx context.Context, params CreateOrderParams) (*RemoteOrder, error)

	// VerifyPaymentFunc allows customizing verification behavior
	VerifyPaymentFunc func(ctx context.Context, params VerifyParams) (*VerifiedPayment, error)

	// Secret signs payments in the default verification behavior.
	Secret string

	// Orders stores created remote orders for verification
	Orders map[string]*RemoteOrder

	// CallLog tracks method calls for test assertions
	CallLog []string

	mu sync.Mutex
}

var _ Checkout = (*MockCheckout)(nil)

// NewMockCheckout creates a new mock checkout.
func NewMockCheckout() *MockCheckout {
	return &MockCheckout{
		Secret:  "mock_secret",
		Orders:  make(map[string]*RemoteOrder),
		CallLog: []string{},
	}
}

func (m *MockCheckout) log(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, fmt.Sprintf(format, args...))
}

// Provider returns "mock".
func (m *MockCheckout) Provider() string { return "mock" }

// PublicKey returns a fixed test key.
func (m *MockCheckout) PublicKey(ctx context.Context) (string, error) {
	m.log("PublicKey()")

	if m.PublicKeyFunc != nil {
		return m.PublicKeyFunc(ctx)
	}
	return "key_mock", nil
}

// CreateRemoteOrder creates a mock remote order.
func (m *MockCheckout) CreateRemoteOrder(ctx context.Context, params CreateOrderParams) (*RemoteOrder, error) {
	m.log("CreateRemoteOrder(%d, %s)", params.AmountPaise, params.Receipt)

	if m.CreateRemoteOrderFunc != nil {
		return m.CreateRemoteOrderFunc(ctx, params)
	}

	// Default mock behavior: create an unpaid remote order
	if params.AmountPaise <= 0 {
		return nil, domain.ErrInvalidAmount.WithOp("mock.create_order")
	}
	currency := params.Currency
	if currency == "" {
		currency = domain.Currency
	}
	ro := &RemoteOrder{
		ID:          "order_" + uuid.New().String(),
		AmountPaise: params.AmountPaise,
		Currency:    currency,
		Receipt:     params.Receipt,
		Status:      "created",
	}

	m.mu.Lock()
	m.Orders[ro.ID] = ro
	m.mu.Unlock()
	return ro, nil
}

// VerifyPayment checks the signature with Secret and returns the stored
// remote order's amount.
func (m *MockCheckout) VerifyPayment(ctx context.Context, params VerifyParams) (*VerifiedPayment, error) {
	m.log("VerifyPayment(%s, %s)", params.RemoteOrderID, params.PaymentID)

	if m.VerifyPaymentFunc != nil {
		return m.VerifyPaymentFunc(ctx, params)
	}

	if !VerifySignature(m.Secret, params.RemoteOrderID, params.PaymentID, params.Signature) {
		return nil, domain.ErrSignatureMismatch.WithOp("mock.verify")
	}

	m.mu.Lock()
	ro, ok := m.Orders[params.RemoteOrderID]
	m.mu.Unlock()
	if !ok {
		return nil, wrap(domain.ErrGatewayRejected, "mock.verify", ErrRemoteOrderNotFound)
	}

	return &VerifiedPayment{
		RemoteOrderID: ro.ID,
		PaymentID:     params.PaymentID,
		AmountPaise:   ro.AmountPaise,
		Currency:      ro.Currency,
		Receipt:       ro.Receipt,
	}, nil
}

// Sign returns a valid signature for the remote order and payment.
func (m *MockCheckout) Sign(remoteOrderID, paymentID string) string {
	return SignPayment(m.Secret, remoteOrderID, paymentID)
}

// Calls returns a copy of the call log.
func (m *MockCheckout) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}
