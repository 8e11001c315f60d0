package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// Compile-time check that OrderStore implements domain.OrderStore.
var _ domain.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates a new PostgreSQL-backed order store.
func NewOrderStore(pool *pgxpool.Pool, logger *slog.Logger) *OrderStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderStore{pool: pool, logger: logger, now: time.Now}
}

const (
	uniqueViolation       = "23505"
	paymentReferenceIndex = "idx_orders_payment_reference"
)

const orderColumns = `id, user_id, recipient_name, recipient_email, recipient_phone, address,
	payment_method, payment_status, status, total_paise, payment_reference, payment_verified,
	payment_claimed_at, tracking_id, estimated_delivery, ordered_at, updated_at`

// CreateOrder writes the header and all items in one transaction. When
// params.ClearCart is set, the ordered products are removed from the cart
// in the same transaction; rows that are already gone are ignored.
func (s *OrderStore) CreateOrder(ctx context.Context, params domain.NewOrder) (*domain.Order, error) {
	const op = "order.create"

	order := &domain.Order{
		ID:            uuid.New(),
		UserID:        params.UserID,
		Recipient:     params.Recipient,
		Address:       params.Address,
		PaymentMethod: params.PaymentMethod,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Status:        domain.OrderStatusPending,
		TotalPaise:    params.TotalPaise,
		Items:         params.Items,
		OrderedAt:     params.OrderedAt,
		UpdatedAt:     params.OrderedAt,
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, user_id, recipient_name, recipient_email, recipient_phone, address,
				payment_method, payment_status, status, total_paise, ordered_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
			order.ID, order.UserID, order.Recipient.Name, order.Recipient.Email, order.Recipient.Phone,
			order.Address, string(order.PaymentMethod), string(order.PaymentStatus), string(order.Status),
			order.TotalPaise, order.OrderedAt,
		)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, item := range order.Items {
			batch.Queue(`
				INSERT INTO order_items (order_id, position, product_id, name, image_url, unit_price_paise, quantity)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				order.ID, i, item.ProductID, item.Name, item.ImageURL, item.UnitPricePaise, item.Quantity,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		if params.ClearCart {
			tag, err := tx.Exec(ctx,
				`DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`,
				order.UserID, productIDs(order.Items),
			)
			if err != nil {
				return err
			}
			s.logger.Debug("cart cleared for order",
				"order_id", order.ID, "rows", tag.RowsAffected())
		}

		return nil
	})
	if err != nil {
		return nil, domain.Persistence(err, op)
	}

	return order, nil
}

// GetOrder loads an order with its items.
func (s *OrderStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	const op = "order.get"

	order, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound.WithOp(op)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load order")
	}

	itemsByOrder, err := loadItems(ctx, s.pool, []uuid.UUID{order.ID}, false)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load order items")
	}
	order.Items = itemsByOrder[order.ID]

	return order, nil
}

// ListOrdersByUser returns a user's orders, newest first, each with its
// items and the live stock of every product for reorder decisions.
func (s *OrderStore) ListOrdersByUser(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error) {
	const op = "order.list"

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{userID}
	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY ordered_at DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list orders")
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to scan order")
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to list orders")
	}
	if len(orders) == 0 {
		return []domain.Order{}, nil
	}

	ids := make([]uuid.UUID, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	itemsByOrder, err := loadItems(ctx, s.pool, ids, true)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load order items")
	}
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
	}

	return orders, nil
}

// UpdateOrder locks the order row with SELECT ... FOR UPDATE, hands the
// loaded order to fn and persists the mutable fields if fn succeeds.
// Concurrent mutations of the same order serialize here.
func (s *OrderStore) UpdateOrder(ctx context.Context, id uuid.UUID, fn func(*domain.Order) error) (*domain.Order, error) {
	const op = "order.update"

	var order *domain.Order
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		itemsByOrder, err := loadItems(ctx, tx, []uuid.UUID{o.ID}, false)
		if err != nil {
			return err
		}
		o.Items = itemsByOrder[o.ID]

		if err := fn(o); err != nil {
			return err
		}
		o.UpdatedAt = s.now()

		_, err = tx.Exec(ctx, `
			UPDATE orders SET
				payment_status = $2, status = $3, payment_reference = $4, payment_verified = $5,
				payment_claimed_at = $6, tracking_id = $7, estimated_delivery = $8, updated_at = $9
			WHERE id = $1`,
			o.ID, string(o.PaymentStatus), string(o.Status), o.PaymentReference, o.PaymentVerified,
			o.PaymentClaimedAt, o.TrackingID, o.EstimatedDelivery, o.UpdatedAt,
		)
		if err != nil {
			return err
		}

		order = o
		return nil
	})

	var derr *domain.Error
	var verr *domain.ValidationError
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, domain.ErrOrderNotFound.WithOp(op)
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == paymentReferenceIndex:
		return nil, domain.ErrPaymentReused.WithOp(op)
	case errors.As(err, &derr), errors.As(err, &verr):
		// Rejections from fn pass through untouched.
		return nil, err
	default:
		return nil, domain.Persistence(err, op)
	}
}
