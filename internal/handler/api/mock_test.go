package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/dukerupert/hoversale/internal/billing"
	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/middleware"
	"github.com/dukerupert/hoversale/internal/service"
	"github.com/google/uuid"
)

// =============================================================================
// MOCK ORDER SERVICE
// =============================================================================

type mockOrderService struct {
	PlaceOrderFunc             func(ctx context.Context, params service.PlaceOrderParams) (*domain.Order, error)
	GetOrderFunc               func(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)
	ListOrdersFunc             func(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error)
	CancelOrderFunc            func(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)
	ReorderFunc                func(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)
	ApplyFulfillmentUpdateFunc func(ctx context.Context, update domain.FulfillmentUpdate) (*domain.Order, error)
	EmailInvoiceFunc           func(ctx context.Context, userID string, orderID uuid.UUID) error
}

var _ service.OrderService = (*mockOrderService)(nil)

func (m *mockOrderService) PlaceOrder(ctx context.Context, params service.PlaceOrderParams) (*domain.Order, error) {
	if m.PlaceOrderFunc != nil {
		return m.PlaceOrderFunc(ctx, params)
	}
	return nil, nil
}

func (m *mockOrderService) GetOrder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, userID, orderID)
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrderService) ListOrders(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error) {
	if m.ListOrdersFunc != nil {
		return m.ListOrdersFunc(ctx, userID, filter)
	}
	return nil, nil
}

func (m *mockOrderService) CancelOrder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	if m.CancelOrderFunc != nil {
		return m.CancelOrderFunc(ctx, userID, orderID)
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrderService) Reorder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	if m.ReorderFunc != nil {
		return m.ReorderFunc(ctx, userID, orderID)
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrderService) ApplyFulfillmentUpdate(ctx context.Context, update domain.FulfillmentUpdate) (*domain.Order, error) {
	if m.ApplyFulfillmentUpdateFunc != nil {
		return m.ApplyFulfillmentUpdateFunc(ctx, update)
	}
	return nil, nil
}

func (m *mockOrderService) EmailInvoice(ctx context.Context, userID string, orderID uuid.UUID) error {
	if m.EmailInvoiceFunc != nil {
		return m.EmailInvoiceFunc(ctx, userID, orderID)
	}
	return nil
}

// =============================================================================
// MOCK PAYMENT SERVICE
// =============================================================================

type mockPaymentService struct {
	CreateUPIIntentFunc     func(ctx context.Context, params service.UPIIntentParams) (*billing.UPIIntent, error)
	ClaimUPIPaymentFunc     func(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)
	ProviderKeyFunc         func(ctx context.Context) (string, error)
	CreateProviderOrderFunc func(ctx context.Context, params service.ProviderOrderParams) (*billing.RemoteOrder, error)
	VerifyPaymentFunc       func(ctx context.Context, params service.VerifyPaymentParams) (*domain.Order, error)
	MarkPaidFunc            func(ctx context.Context, orderID uuid.UUID, amountPaise int64, proof domain.PaymentProof) (*domain.Order, error)
	ReconcileVerifiedFunc   func(ctx context.Context, provider string, payment *billing.VerifiedPayment) (*domain.Order, error)
	ReconcileSettlementFunc func(ctx context.Context, settlement domain.UPISettlement) (*domain.Order, error)
}

var _ service.PaymentService = (*mockPaymentService)(nil)

func (m *mockPaymentService) CreateUPIIntent(ctx context.Context, params service.UPIIntentParams) (*billing.UPIIntent, error) {
	if m.CreateUPIIntentFunc != nil {
		return m.CreateUPIIntentFunc(ctx, params)
	}
	return nil, nil
}

func (m *mockPaymentService) ClaimUPIPayment(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	if m.ClaimUPIPaymentFunc != nil {
		return m.ClaimUPIPaymentFunc(ctx, userID, orderID)
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockPaymentService) ProviderKey(ctx context.Context) (string, error) {
	if m.ProviderKeyFunc != nil {
		return m.ProviderKeyFunc(ctx)
	}
	return "", domain.ErrKeyFetchFailed
}

func (m *mockPaymentService) CreateProviderOrder(ctx context.Context, params service.ProviderOrderParams) (*billing.RemoteOrder, error) {
	if m.CreateProviderOrderFunc != nil {
		return m.CreateProviderOrderFunc(ctx, params)
	}
	return nil, nil
}

func (m *mockPaymentService) VerifyPayment(ctx context.Context, params service.VerifyPaymentParams) (*domain.Order, error) {
	if m.VerifyPaymentFunc != nil {
		return m.VerifyPaymentFunc(ctx, params)
	}
	return nil, nil
}

func (m *mockPaymentService) MarkPaid(ctx context.Context, orderID uuid.UUID, amountPaise int64, proof domain.PaymentProof) (*domain.Order, error) {
	if m.MarkPaidFunc != nil {
		return m.MarkPaidFunc(ctx, orderID, amountPaise, proof)
	}
	return nil, nil
}

func (m *mockPaymentService) ReconcileVerified(ctx context.Context, provider string, payment *billing.VerifiedPayment) (*domain.Order, error) {
	if m.ReconcileVerifiedFunc != nil {
		return m.ReconcileVerifiedFunc(ctx, provider, payment)
	}
	return nil, nil
}

func (m *mockPaymentService) ReconcileSettlement(ctx context.Context, settlement domain.UPISettlement) (*domain.Order, error) {
	if m.ReconcileSettlementFunc != nil {
		return m.ReconcileSettlementFunc(ctx, settlement)
	}
	return nil, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// serve routes a single request through a mux with the given pattern so
// path values resolve, behind the caller middleware.
func serve(pattern string, h http.HandlerFunc, method, target, userID, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.Handle(pattern, middleware.WithCaller(h))

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func pendingOrder(userID string, method domain.PaymentMethod, totalPaise int64) *domain.Order {
	return &domain.Order{
		ID:            uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7"),
		UserID:        userID,
		Recipient:     domain.Recipient{Name: "Asha Rao", Email: "asha@example.com"},
		Address:       "12 MG Road, Bengaluru",
		PaymentMethod: method,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Status:        domain.OrderStatusPending,
		TotalPaise:    totalPaise,
		Items: []domain.LineItem{
			{ProductID: 1, Name: "Propeller set", UnitPricePaise: 10000, Quantity: 1},
			{ProductID: 2, Name: "LiPo battery", UnitPricePaise: 5000, Quantity: 2},
		},
	}
}
