package postgres

import (
	"context"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// scanOrder reads one row selected with orderColumns.
func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                             domain.Order
		method, paymentStatus, status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Recipient.Name, &o.Recipient.Email, &o.Recipient.Phone, &o.Address,
		&method, &paymentStatus, &status, &o.TotalPaise, &o.PaymentReference, &o.PaymentVerified,
		&o.PaymentClaimedAt, &o.TrackingID, &o.EstimatedDelivery, &o.OrderedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = domain.PaymentMethod(method)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

// loadItems fetches the items of the given orders keyed by order id.
// With withStock set, each item carries the product's current stock.
func loadItems(ctx context.Context, q querier, orderIDs []uuid.UUID, withStock bool) (map[uuid.UUID][]domain.LineItem, error) {
	rows, err := q.Query(ctx, `
		SELECT oi.order_id, oi.product_id, oi.name, oi.image_url, oi.unit_price_paise, oi.quantity, p.stock
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.LineItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID uuid.UUID
			item    domain.LineItem
			stock   *int32
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.ImageURL,
			&item.UnitPricePaise, &item.Quantity, &stock); err != nil {
			return nil, err
		}
		if withStock {
			if stock == nil {
				// Product was removed from the catalog.
				zero := int32(0)
				stock = &zero
			}
			item.StockAtDisplay = stock
		}
		out[orderID] = append(out[orderID], item)
	}
	return out, rows.Err()
}

func productIDs(items []domain.LineItem) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	return ids
}
