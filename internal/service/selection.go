package service

import (
	"context"
	"fmt"

	"github.com/dukerupert/hoversale/internal/domain"
)

// Resolver turns a checkout request into a priced item list. It only reads.
type Resolver struct {
	catalog domain.Catalog
	cart    domain.CartReader
}

// NewResolver creates a Resolver over the catalog and the persisted carts.
func NewResolver(catalog domain.Catalog, cart domain.CartReader) *Resolver {
	return &Resolver{catalog: catalog, cart: cart}
}

// line is one requested product before pricing. explicit lines were chosen
// by name and must be in stock; implicit ones are skipped when they are not.
type line struct {
	productID int64
	quantity  int32
	explicit  bool
}

// Resolve gathers the items for req and prices them from the catalog.
//
// Cart: submitted Lines, or the persisted cart (optionally narrowed to
// ProductIDs). Zero stock items are left out of the default selection.
// BuyNow: exactly one line, which must be in stock.
// Reorder: every item of the prior order must still be in stock; a single
// missing item refuses the whole selection.
func (r *Resolver) Resolve(ctx context.Context, req domain.SelectionRequest) (*domain.Selection, error) {
	const op = "selection.resolve"

	var (
		lines     []line
		allOrNone bool
		err       error
	)

	switch req.Source {
	case domain.SourceCart, "":
		lines, err = r.cartLines(ctx, req)
		if err != nil {
			return nil, err
		}
	case domain.SourceBuyNow:
		if req.BuyNow == nil {
			return nil, domain.ErrEmptyCart.WithOp(op)
		}
		lines = []line{{productID: req.BuyNow.ProductID, quantity: req.BuyNow.Quantity, explicit: true}}
	case domain.SourceReorder:
		if req.Reorder == nil {
			return nil, domain.ErrOrderNotFound.WithOp(op)
		}
		for _, it := range req.Reorder.Items {
			lines = append(lines, line{productID: it.ProductID, quantity: it.Quantity, explicit: true})
		}
		allOrNone = true
	default:
		return nil, domain.NewValidationError(op, "source", fmt.Sprintf("unknown selection source %q", req.Source))
	}

	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart.WithOp(op)
	}

	seen := make(map[int64]bool, len(lines))
	for i, l := range lines {
		if l.quantity < 1 {
			return nil, domain.NewValidationError(op, fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		// Stock is checked per line, so a product split over two lines
		// could otherwise exceed it.
		if seen[l.productID] {
			return nil, domain.ErrDuplicateItem.WithOp(op)
		}
		seen[l.productID] = true
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.productID)
	}
	products, err := r.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	sel := &domain.Selection{Items: make([]domain.LineItem, 0, len(lines))}
	for i, l := range lines {
		p, ok := products[l.productID]
		if !ok {
			if allOrNone {
				// A product dropped from the catalog can never be reordered.
				return nil, domain.ErrStockUnavailable.WithOp(op)
			}
			return nil, domain.ErrInvalidItem.WithOp(op)
		}
		if !p.InStock() {
			if l.explicit {
				return nil, domain.ErrStockUnavailable.WithOp(op)
			}
			continue
		}
		if l.quantity > p.Stock {
			return nil, domain.NewValidationError(op, fmt.Sprintf("items[%d].quantity", i),
				fmt.Sprintf("only %d left in stock", p.Stock))
		}
		sel.Items = append(sel.Items, domain.LineItem{
			ProductID:      p.ID,
			Name:           p.Name,
			ImageURL:       p.ImageURL,
			UnitPricePaise: p.PricePaise,
			Quantity:       l.quantity,
		})
	}

	if len(sel.Items) == 0 {
		return nil, domain.ErrEmptyCart.WithOp(op)
	}
	if sel.TotalPaise, err = domain.TotalOf(sel.Items); err != nil {
		return nil, err
	}
	return sel, nil
}

func (r *Resolver) cartLines(ctx context.Context, req domain.SelectionRequest) ([]line, error) {
	if len(req.Lines) > 0 {
		lines := make([]line, 0, len(req.Lines))
		for _, ci := range req.Lines {
			lines = append(lines, line{productID: ci.ProductID, quantity: ci.Quantity, explicit: true})
		}
		return lines, nil
	}

	items, err := r.cart.ListCartItems(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	var wanted map[int64]bool
	if len(req.ProductIDs) > 0 {
		wanted = make(map[int64]bool, len(req.ProductIDs))
		for _, id := range req.ProductIDs {
			wanted[id] = true
		}
	}

	lines := make([]line, 0, len(items))
	for _, ci := range items {
		if wanted != nil && !wanted[ci.ProductID] {
			continue
		}
		lines = append(lines, line{productID: ci.ProductID, quantity: ci.Quantity, explicit: wanted != nil})
	}
	return lines, nil
}
