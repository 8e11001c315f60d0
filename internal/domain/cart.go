package domain

import "context"

// Product is the catalog view the order flow needs.
type Product struct {
	ID         int64
	Name       string
	ImageURL   string
	PricePaise int64
	Stock      int32
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// CartItem is one persisted cart row.
type CartItem struct {
	ProductID int64
	Quantity  int32
}

// Catalog reads product data and live stock.
type Catalog interface {
	// GetProducts returns the products that exist among ids, keyed by id.
	// Missing ids are simply absent from the map.
	GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
}

// CartReader reads a user's persisted cart.
type CartReader interface {
	ListCartItems(ctx context.Context, userID string) ([]CartItem, error)
}

// SelectionSource says where the items of a checkout come from.
type SelectionSource string

const (
	SourceCart    SelectionSource = "cart"
	SourceBuyNow  SelectionSource = "buy_now"
	SourceReorder SelectionSource = "reorder"
)

// SelectionRequest asks the resolver for a checkout item list.
type SelectionRequest struct {
	Source SelectionSource
	UserID string

	// Lines are cart lines the client submitted. When empty, a cart
	// checkout reads the persisted cart instead.
	Lines []CartItem

	// ProductIDs optionally restricts a persisted cart checkout to a subset.
	ProductIDs []int64

	// BuyNow is the single item for SourceBuyNow.
	BuyNow *CartItem

	// Reorder is the prior order for SourceReorder.
	Reorder *Order
}

// Selection is a normalized item list plus its total.
type Selection struct {
	Items      []LineItem
	TotalPaise int64
}
