package postgres

import (
	"context"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogStore implements domain.Catalog and domain.CartReader using PostgreSQL.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// Compile-time checks that CatalogStore implements the read interfaces.
var (
	_ domain.Catalog    = (*CatalogStore)(nil)
	_ domain.CartReader = (*CatalogStore)(nil)
)

// NewCatalogStore creates a new PostgreSQL-backed catalog reader.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// GetProducts returns the products among ids that exist, keyed by id.
func (s *CatalogStore) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, image_url, price_paise, stock FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, domain.Internal(err, "catalog.get", "failed to load products")
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.ImageURL, &p.PricePaise, &p.Stock); err != nil {
			return nil, domain.Internal(err, "catalog.get", "failed to scan product")
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "catalog.get", "failed to load products")
	}

	return out, nil
}

// ListCartItems returns the user's cart in the order items were added.
func (s *CatalogStore) ListCartItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY added_at, product_id`, userID)
	if err != nil {
		return nil, domain.Internal(err, "cart.list", "failed to load cart")
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var ci domain.CartItem
		if err := rows.Scan(&ci.ProductID, &ci.Quantity); err != nil {
			return nil, domain.Internal(err, "cart.list", "failed to scan cart item")
		}
		items = append(items, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "cart.list", "failed to load cart")
	}

	return items, nil
}
