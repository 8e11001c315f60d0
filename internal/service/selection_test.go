package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Cart(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.carts["u1"] = []domain.CartItem{
		{ProductID: propeller.ID, Quantity: 1},
		{ProductID: soldOut.ID, Quantity: 1},
		{ProductID: battery.ID, Quantity: 2},
	}
	r := NewResolver(newMockCatalog(propeller, battery, soldOut), store)

	t.Run("default selection skips zero stock items", func(t *testing.T) {
		sel, err := r.Resolve(ctx, domain.SelectionRequest{Source: domain.SourceCart, UserID: "u1"})
		require.NoError(t, err)

		require.Len(t, sel.Items, 2)
		assert.Equal(t, propeller.ID, sel.Items[0].ProductID)
		assert.Equal(t, battery.ID, sel.Items[1].ProductID)
		assert.Equal(t, int64(20000), sel.TotalPaise)
		assert.Equal(t, "LiPo battery", sel.Items[1].Name)
	})

	t.Run("explicit subset", func(t *testing.T) {
		sel, err := r.Resolve(ctx, domain.SelectionRequest{UserID: "u1", ProductIDs: []int64{battery.ID}})
		require.NoError(t, err)
		require.Len(t, sel.Items, 1)
		assert.Equal(t, int64(10000), sel.TotalPaise)
	})

	t.Run("explicit subset with a sold out item", func(t *testing.T) {
		_, err := r.Resolve(ctx, domain.SelectionRequest{UserID: "u1", ProductIDs: []int64{soldOut.ID}})
		assert.ErrorIs(t, err, domain.ErrStockUnavailable)
	})

	t.Run("submitted lines win over the persisted cart", func(t *testing.T) {
		sel, err := r.Resolve(ctx, domain.SelectionRequest{
			UserID: "u1",
			Lines:  []domain.CartItem{{ProductID: propeller.ID, Quantity: 3}},
		})
		require.NoError(t, err)
		require.Len(t, sel.Items, 1)
		assert.Equal(t, int64(30000), sel.TotalPaise)
	})

	t.Run("empty cart", func(t *testing.T) {
		_, err := r.Resolve(ctx, domain.SelectionRequest{UserID: "nobody"})
		assert.ErrorIs(t, err, domain.ErrEmptyCart)
	})

	t.Run("only sold out items", func(t *testing.T) {
		store.carts["u2"] = []domain.CartItem{{ProductID: soldOut.ID, Quantity: 1}}
		_, err := r.Resolve(ctx, domain.SelectionRequest{UserID: "u2"})
		assert.ErrorIs(t, err, domain.ErrEmptyCart)
	})
}

func TestResolver_Quantity(t *testing.T) {
	r := NewResolver(newMockCatalog(propeller, battery), newMemStore())
	ctx := context.Background()

	tests := []struct {
		name     string
		quantity int32
		field    string
	}{
		{"zero", 0, "items[0].quantity"},
		{"negative", -2, "items[0].quantity"},
		{"above stock", 4, "items[0].quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, domain.SelectionRequest{
				Source: domain.SourceBuyNow,
				BuyNow: &domain.CartItem{ProductID: battery.ID, Quantity: tt.quantity},
			})
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))
			assert.Contains(t, domain.GetValidationFields(err), tt.field)
		})
	}

	t.Run("exactly the stock", func(t *testing.T) {
		sel, err := r.Resolve(ctx, domain.SelectionRequest{
			Source: domain.SourceBuyNow,
			BuyNow: &domain.CartItem{ProductID: battery.ID, Quantity: 3},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(15000), sel.TotalPaise)
	})
}

func TestResolver_DuplicateProducts(t *testing.T) {
	r := NewResolver(newMockCatalog(propeller, battery), newMemStore())
	ctx := context.Background()

	t.Run("split lines cannot exceed stock", func(t *testing.T) {
		// 3 + 3 of a product with 3 in stock.
		sel, err := r.Resolve(ctx, domain.SelectionRequest{
			Lines: []domain.CartItem{
				{ProductID: battery.ID, Quantity: 3},
				{ProductID: battery.ID, Quantity: 3},
			},
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateItem)
		assert.Nil(t, sel)
	})

	t.Run("duplicates rejected even within stock", func(t *testing.T) {
		_, err := r.Resolve(ctx, domain.SelectionRequest{
			Lines: []domain.CartItem{
				{ProductID: propeller.ID, Quantity: 1},
				{ProductID: propeller.ID, Quantity: 1},
			},
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateItem)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("reorder of a prior order with repeated lines", func(t *testing.T) {
		_, err := r.Resolve(ctx, domain.SelectionRequest{
			Source: domain.SourceReorder,
			Reorder: &domain.Order{Items: []domain.LineItem{
				{ProductID: battery.ID, Quantity: 2},
				{ProductID: battery.ID, Quantity: 2},
			}},
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateItem)
	})
}

func TestResolver_TotalOutOfRange(t *testing.T) {
	pricey := domain.Product{ID: 9, Name: "Airframe", PricePaise: domain.MaxAmountPaise, Stock: 5}
	r := NewResolver(newMockCatalog(pricey), newMemStore())

	_, err := r.Resolve(context.Background(), domain.SelectionRequest{
		Source: domain.SourceBuyNow,
		BuyNow: &domain.CartItem{ProductID: pricey.ID, Quantity: 2},
	})
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
}

func TestResolver_BuyNow(t *testing.T) {
	r := NewResolver(newMockCatalog(propeller, soldOut), newMemStore())
	ctx := context.Background()

	_, err := r.Resolve(ctx, domain.SelectionRequest{Source: domain.SourceBuyNow})
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = r.Resolve(ctx, domain.SelectionRequest{
		Source: domain.SourceBuyNow,
		BuyNow: &domain.CartItem{ProductID: soldOut.ID, Quantity: 1},
	})
	assert.ErrorIs(t, err, domain.ErrStockUnavailable)

	_, err = r.Resolve(ctx, domain.SelectionRequest{
		Source: domain.SourceBuyNow,
		BuyNow: &domain.CartItem{ProductID: 999, Quantity: 1},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidItem)
}

func TestResolver_Reorder(t *testing.T) {
	ctx := context.Background()
	prior := &domain.Order{Items: []domain.LineItem{
		{ProductID: propeller.ID, Quantity: 1, UnitPricePaise: 9000},
		{ProductID: battery.ID, Quantity: 2, UnitPricePaise: 4000},
	}}

	t.Run("all in stock uses current prices", func(t *testing.T) {
		r := NewResolver(newMockCatalog(propeller, battery), newMemStore())
		sel, err := r.Resolve(ctx, domain.SelectionRequest{Source: domain.SourceReorder, Reorder: prior})
		require.NoError(t, err)
		assert.Equal(t, int64(20000), sel.TotalPaise)
	})

	t.Run("one sold out item refuses the whole reorder", func(t *testing.T) {
		outOfBattery := battery
		outOfBattery.Stock = 0
		r := NewResolver(newMockCatalog(propeller, outOfBattery), newMemStore())

		_, err := r.Resolve(ctx, domain.SelectionRequest{Source: domain.SourceReorder, Reorder: prior})
		assert.ErrorIs(t, err, domain.ErrStockUnavailable)
	})

	t.Run("product removed from catalog", func(t *testing.T) {
		r := NewResolver(newMockCatalog(propeller), newMemStore())

		_, err := r.Resolve(ctx, domain.SelectionRequest{Source: domain.SourceReorder, Reorder: prior})
		assert.ErrorIs(t, err, domain.ErrStockUnavailable)
	})
}

func TestResolver_CatalogError(t *testing.T) {
	boom := errors.New("connection reset")
	catalog := newMockCatalog()
	catalog.GetProductsFunc = func(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
		return nil, boom
	}
	r := NewResolver(catalog, newMemStore())

	_, err := r.Resolve(context.Background(), domain.SelectionRequest{
		Source: domain.SourceBuyNow,
		BuyNow: &domain.CartItem{ProductID: 1, Quantity: 1},
	})
	assert.ErrorIs(t, err, boom)
}
