package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/email"
	"github.com/google/uuid"
)

// memStore is an in-memory domain.OrderStore and domain.CartReader.
// UpdateOrder holds the store lock for the whole callback, which gives the
// same serialization as the row lock in postgres.
type memStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
	carts  map[string][]domain.CartItem

	// CreateOrderErr fails every CreateOrder call when set.
	CreateOrderErr error

	created []domain.NewOrder
}

var (
	_ domain.OrderStore = (*memStore)(nil)
	_ domain.CartReader = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		orders: make(map[uuid.UUID]*domain.Order),
		carts:  make(map[string][]domain.CartItem),
	}
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	return &cp
}

func (m *memStore) CreateOrder(ctx context.Context, params domain.NewOrder) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateOrderErr != nil {
		return nil, domain.Persistence(m.CreateOrderErr, "order.create")
	}
	m.created = append(m.created, params)

	o := &domain.Order{
		ID:            uuid.New(),
		UserID:        params.UserID,
		Recipient:     params.Recipient,
		Address:       params.Address,
		PaymentMethod: params.PaymentMethod,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Status:        domain.OrderStatusPending,
		TotalPaise:    params.TotalPaise,
		Items:         slices.Clone(params.Items),
		OrderedAt:     params.OrderedAt,
		UpdatedAt:     params.OrderedAt,
	}
	m.orders[o.ID] = o

	if params.ClearCart {
		ordered := make(map[int64]bool, len(params.Items))
		for _, it := range params.Items {
			ordered[it.ProductID] = true
		}
		m.carts[params.UserID] = slices.DeleteFunc(m.carts[params.UserID], func(ci domain.CartItem) bool {
			return ordered[ci.ProductID]
		})
	}
	return cloneOrder(o), nil
}

func (m *memStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound.WithOp("order.get")
	}
	return cloneOrder(o), nil
}

func (m *memStore) ListOrdersByUser(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Order{}
	for _, o := range m.orders {
		if o.UserID != userID || (filter.Status != "" && o.Status != filter.Status) {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		return b.OrderedAt.Compare(a.OrderedAt)
	})
	return out, nil
}

func (m *memStore) UpdateOrder(ctx context.Context, id uuid.UUID, fn func(*domain.Order) error) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound.WithOp("order.update")
	}
	working := cloneOrder(o)
	if err := fn(working); err != nil {
		return nil, err
	}
	if ref := working.PaymentReference; ref != "" {
		for otherID, other := range m.orders {
			if otherID != id && other.PaymentReference == ref {
				return nil, domain.ErrPaymentReused.WithOp("order.update")
			}
		}
	}
	m.orders[id] = working
	return cloneOrder(working), nil
}

func (m *memStore) ListCartItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.carts[userID]), nil
}

// put stores o as is, for tests that need a specific starting state.
func (m *memStore) put(o *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
}

func (m *memStore) get(id uuid.UUID) *domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.orders[id])
}

// mockCatalog implements domain.Catalog over a fixed product set.
type mockCatalog struct {
	products map[int64]domain.Product

	GetProductsFunc func(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
}

func newMockCatalog(products ...domain.Product) *mockCatalog {
	m := &mockCatalog{products: make(map[int64]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockCatalog) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	if m.GetProductsFunc != nil {
		return m.GetProductsFunc(ctx, ids)
	}
	out := make(map[int64]domain.Product)
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

type publishedEvent struct {
	Subject string
	Event   domain.OrderEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := event.(domain.OrderEvent); ok {
		p.events = append(p.events, publishedEvent{Subject: subject, Event: ev})
	}
	return p.err
}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Subject)
	}
	return out
}

// mockInvoiceSender implements InvoiceSender.
type mockInvoiceSender struct {
	SendInvoiceFunc func(ctx context.Context, data email.InvoiceEmail) error
	sent            []email.InvoiceEmail
}

func (m *mockInvoiceSender) SendInvoice(ctx context.Context, data email.InvoiceEmail) error {
	if m.SendInvoiceFunc != nil {
		return m.SendInvoiceFunc(ctx, data)
	}
	m.sent = append(m.sent, data)
	return nil
}

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

// Products shared by the service tests. Prices are in paise.
var (
	propeller = domain.Product{ID: 1, Name: "Propeller set", ImageURL: "/img/1.png", PricePaise: 10000, Stock: 10}
	battery   = domain.Product{ID: 2, Name: "LiPo battery", ImageURL: "/img/2.png", PricePaise: 5000, Stock: 3}
	soldOut   = domain.Product{ID: 3, Name: "Gimbal", ImageURL: "/img/3.png", PricePaise: 75000, Stock: 0}
)
