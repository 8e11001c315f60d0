package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/hoversale/internal"
	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to TEST_DATABASE_URL, migrates and truncates.
// Tests are skipped when no database is configured.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sqlDB, err := sql.Open("pgx", url)
	require.NoError(t, err)
	defer sqlDB.Close()
	_, err = internal.RunMigrations(sqlDB, logger)
	require.NoError(t, err)

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `TRUNCATE order_items, orders, cart_items, products RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return pool
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, name string, pricePaise int64, stock int32) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO products (name, price_paise, stock) VALUES ($1, $2, $3) RETURNING id`,
		name, pricePaise, stock).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedCart(t *testing.T, pool *pgxpool.Pool, userID string, productID int64, qty int32) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)`, userID, productID, qty)
	require.NoError(t, err)
}

func newOrder(userID string, method domain.PaymentMethod, items ...domain.LineItem) domain.NewOrder {
	total, err := domain.TotalOf(items)
	if err != nil {
		panic(err)
	}
	return domain.NewOrder{
		UserID:        userID,
		Recipient:     domain.Recipient{Name: "Asha", Email: "asha@example.com", Phone: "9999999999"},
		Address:       "12 MG Road, Bengaluru",
		PaymentMethod: method,
		Items:         items,
		TotalPaise:    total,
		OrderedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestOrderStore_CreateAndGet(t *testing.T) {
	pool := setupTestDB(t)
	store := NewOrderStore(pool, nil)
	ctx := context.Background()

	p1 := seedProduct(t, pool, "Drone", 499900, 3)
	p2 := seedProduct(t, pool, "Battery", 99900, 10)

	created, err := store.CreateOrder(ctx, newOrder("user-1", domain.PaymentMethodUPI,
		domain.LineItem{ProductID: p1, Name: "Drone", UnitPricePaise: 499900, Quantity: 1},
		domain.LineItem{ProductID: p2, Name: "Battery", UnitPricePaise: 99900, Quantity: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, created.Status)
	assert.Equal(t, domain.PaymentStatusUnpaid, created.PaymentStatus)

	got, err := store.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(499900+2*99900), got.TotalPaise)
	require.Len(t, got.Items, 2)
	assert.Equal(t, p1, got.Items[0].ProductID)
	assert.Equal(t, int32(2), got.Items[1].Quantity)
	total, err := domain.TotalOf(got.Items)
	require.NoError(t, err)
	assert.Equal(t, total, got.TotalPaise)
}

func TestOrderStore_GetOrderNotFound(t *testing.T) {
	pool := setupTestDB(t)
	store := NewOrderStore(pool, nil)

	_, err := store.GetOrder(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestOrderStore_CreateOrderClearsCartForCOD(t *testing.T) {
	pool := setupTestDB(t)
	store := NewOrderStore(pool, nil)
	catalog := NewCatalogStore(pool)
	ctx := context.Background()

	p1 := seedProduct(t, pool, "Drone", 499900, 3)
	p2 := seedProduct(t, pool, "Propeller", 19900, 50)
	seedCart(t, pool, "user-1", p1, 1)
	seedCart(t, pool, "user-1", p2, 4)

	params := newOrder("user-1", domain.PaymentMethodCOD,
		domain.LineItem{ProductID: p1, Name: "Drone", UnitPricePaise: 499900, Quantity: 1})
	params.ClearCart = true

	_, err := store.CreateOrder(ctx, params)
	require.NoError(t, err)

	cart, err := catalog.ListCartItems(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, p2, cart[0].ProductID, "only ordered products leave the cart")

	// Replaying the same clear is harmless.
	_, err = store.CreateOrder(ctx, params)
	require.NoError(t, err)
}

func TestOrderStore_CreateOrderIsAtomic(t *testing.T) {
	pool := setupTestDB(t)
	store := NewOrderStore(pool, nil)
	ctx := context.Background()

	// Quantity 0 violates the order_items check constraint.
	_, err := store.CreateOrder(ctx, newOrder("user-1", domain.PaymentMethodUPI,
		domain.LineItem{ProductID: 1, Name: "Broken", UnitPricePaise: 100, Quantity: 0}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistenceFailure))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&count))
	assert.Zero(t, count, "no partial order is left behind")
}

func TestOrderStore_ListOrdersByUser(t *testing.T) {
	pool := setupTestDB(t)
	store := NewOrderStore(pool, nil)
	ctx := context.Background()

	p1 := seedProduct(t, pool, "Drone", 499900, 0)
	item := domain.LineItem{ProductID: p1, Name: "Drone", UnitPricePaise: 499900, Quantity: 1}

	older := newOrder("user-1", domain.PaymentMethodCOD, item)
	older.OrderedAt = time.Now().Add(-time.Hour).UTC()
	first, err := store.CreateOrder(ctx, older)
	require.NoError(t, err)

	second, err := store.CreateOrder(ctx, newOrder("user-1", domain.PaymentMethodUPI, item))
	require.NoError(t, err)

	_, err = store.CreateOrder(ctx, newOrder("user-2", domain.PaymentMethodUPI, item))
	require.NoError(t, err)

	_, err = store.UpdateOrder(ctx, first.ID, func(o *domain.Order) error { return o.Cancel() })
	require.NoError(t, err)

	orders, err := store.ListOrdersByUser(ctx, "user-1", domain.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID, "newest first")
	require.Len(t, orders[0].Items, 1)
	require.NotNil(t, orders[0].Items[0].StockAtDisplay)
	assert.Equal(t, int32(0), *orders[0].Items[0].StockAtDisplay)

	canceled, err := store.ListOrdersByUser(ctx, "user-1", domain.OrderFilter{Status: domain.OrderStatusCanceled})
	require.NoError(t, err)
	require.Len(t, canceled, 1)
	assert.Equal(t, first.ID, canceled[0].ID)

	none, err := store.ListOrdersByUser(ctx, "nobody", domain.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOrderStore_UpdateOrderRejectionLeavesRowUntouched(t *testing.T) {
	pool := setupTestDB(t)
	store := NewOrderStore(pool, nil)
	ctx := context.Background()

	created, err := store.CreateOrder(ctx, newOrder("user-1", domain.PaymentMethodUPI,
		domain.LineItem{ProductID: 1, Name: "Drone", UnitPricePaise: 100, Quantity: 1}))
	require.NoError(t, err)

	_, err = store.UpdateOrder(ctx, created.ID, func(o *domain.Order) error {
		o.Status = domain.OrderStatusShipped
		return domain.ErrInvalidTransition
	})
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	got, err := store.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, got.Status)

	_, err = store.UpdateOrder(ctx, uuid.New(), func(o *domain.Order) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestOrderStore_PaymentReferenceIsUnique(t *testing.T) {
	pool := setupTestDB(t)
	store := NewOrderStore(pool, nil)
	ctx := context.Background()

	item := domain.LineItem{ProductID: 1, Name: "Drone", UnitPricePaise: 50000, Quantity: 1}
	first, err := store.CreateOrder(ctx, newOrder("user-1", domain.PaymentMethodCard, item))
	require.NoError(t, err)
	second, err := store.CreateOrder(ctx, newOrder("user-2", domain.PaymentMethodCard, item))
	require.NoError(t, err)

	pay := func(o *domain.Order) error {
		_, err := o.MarkPaid("pay_1")
		return err
	}
	_, err = store.UpdateOrder(ctx, first.ID, pay)
	require.NoError(t, err)

	_, err = store.UpdateOrder(ctx, second.ID, pay)
	assert.True(t, errors.Is(err, domain.ErrPaymentReused), "got %v", err)

	got, err := store.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusUnpaid, got.PaymentStatus)
	assert.Empty(t, got.PaymentReference)

	// Unpaid orders all share the empty reference.
	_, err = store.UpdateOrder(ctx, second.ID, func(o *domain.Order) error { return o.Cancel() })
	require.NoError(t, err)
}

func TestOrderStore_CancelAndPayRaceHasOneWinner(t *testing.T) {
	pool := setupTestDB(t)
	store := NewOrderStore(pool, nil)
	ctx := context.Background()

	created, err := store.CreateOrder(ctx, newOrder("user-1", domain.PaymentMethodOnlinePayment,
		domain.LineItem{ProductID: 1, Name: "Drone", UnitPricePaise: 100, Quantity: 1}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = store.UpdateOrder(ctx, created.ID, func(o *domain.Order) error { return o.Cancel() })
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = store.UpdateOrder(ctx, created.ID, func(o *domain.Order) error {
			_, err := o.MarkPaid("pay_1")
			return err
		})
	}()
	wg.Wait()

	got, err := store.GetOrder(ctx, created.ID)
	require.NoError(t, err)

	// Exactly one side wins: Canceled+Unpaid or Pending+Paid.
	if got.Status == domain.OrderStatusCanceled {
		assert.Equal(t, domain.PaymentStatusUnpaid, got.PaymentStatus)
		assert.Error(t, errs[1])
	} else {
		assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
		assert.Error(t, errs[0])
	}
}

func TestCatalogStore_GetProducts(t *testing.T) {
	pool := setupTestDB(t)
	catalog := NewCatalogStore(pool)

	p1 := seedProduct(t, pool, "Drone", 499900, 3)

	products, err := catalog.GetProducts(context.Background(), []int64{p1, 9999})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(499900), products[p1].PricePaise)
	assert.Equal(t, int32(3), products[p1].Stock)

	empty, err := catalog.GetProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
