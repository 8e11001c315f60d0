package domain

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusPacked    OrderStatus = "Packed"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCanceled  OrderStatus = "Canceled"
)

// PaymentStatus is independent of OrderStatus.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "Unpaid"
	PaymentStatusPaid   PaymentStatus = "Paid"
)

// PaymentMethod is how the buyer chose to pay.
type PaymentMethod string

const (
	PaymentMethodCOD           PaymentMethod = "Cash on Delivery"
	PaymentMethodUPI           PaymentMethod = "UPI"
	PaymentMethodCard          PaymentMethod = "Credit Card"
	PaymentMethodOnlinePayment PaymentMethod = "Online Payment"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodUPI, PaymentMethodCard, PaymentMethodOnlinePayment:
		return true
	}
	return false
}

// RequiresPrepayment is true for methods settled before delivery.
func (m PaymentMethod) RequiresPrepayment() bool {
	return m != PaymentMethodCOD
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPacked, OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled:
		return true
	}
	return false
}

// Terminal states accept no further fulfillment transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

// transitions lists every legal forward move of the order state machine.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPacked, OrderStatusCanceled},
	OrderStatusPacked:  {OrderStatusShipped},
	OrderStatusShipped: {OrderStatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Recipient is who receives the delivery.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// LineItem is a snapshot of one product at the time of ordering.
type LineItem struct {
	ProductID      int64  `json:"productId"`
	Name           string `json:"name"`
	ImageURL       string `json:"imageUrl"`
	UnitPricePaise int64  `json:"unitPricePaise"`
	Quantity       int32  `json:"quantity"`

	// StockAtDisplay is the live stock level when the order was read back.
	// Advisory only; never persisted on the item.
	StockAtDisplay *int32 `json:"stockAtDisplay,omitempty"`
}

// SubtotalPaise is unit price times quantity. Only meaningful for items
// that passed TotalOf.
func (li LineItem) SubtotalPaise() int64 {
	return li.UnitPricePaise * int64(li.Quantity)
}

// Order is a purchase placed by a user.
type Order struct {
	ID                uuid.UUID     `json:"id"`
	UserID            string        `json:"userId"`
	Recipient         Recipient     `json:"recipient"`
	Address           string        `json:"address"`
	PaymentMethod     PaymentMethod `json:"paymentMethod"`
	PaymentStatus     PaymentStatus `json:"paymentStatus"`
	Status            OrderStatus   `json:"status"`
	TotalPaise        int64         `json:"totalPaise"`
	Items             []LineItem    `json:"items"`
	OrderedAt         time.Time     `json:"orderedAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	TrackingID        *string       `json:"trackingId,omitempty"`
	EstimatedDelivery *time.Time    `json:"estimatedDelivery,omitempty"`

	// PaymentReference is the provider payment id once verified.
	PaymentReference string `json:"paymentReference,omitempty"`
	PaymentVerified  bool   `json:"paymentVerified"`

	// PaymentClaimedAt records an unverified UPI self-report.
	PaymentClaimedAt *time.Time `json:"paymentClaimedAt,omitempty"`
}

// TotalOf sums the line item subtotals. Zero for an empty slice.
// Any subtotal or running total above MaxAmountPaise is refused, so the
// arithmetic never wraps.
func TotalOf(items []LineItem) (int64, error) {
	const op = "order.total"

	var total int64
	for _, it := range items {
		if it.UnitPricePaise < 0 || it.Quantity < 0 {
			return 0, Invalid(op, "negative price or quantity")
		}
		if it.UnitPricePaise > 0 && int64(it.Quantity) > MaxAmountPaise/it.UnitPricePaise {
			return 0, ErrAmountOutOfRange.WithOp(op)
		}
		total += it.SubtotalPaise()
		if total > MaxAmountPaise {
			return 0, ErrAmountOutOfRange.WithOp(op)
		}
	}
	return total, nil
}

// Cancel moves a Pending order to Canceled. Paid orders need a refund
// first, so they are refused even while Pending.
func (o *Order) Cancel() error {
	if o.Status != OrderStatusPending {
		return ErrInvalidTransition
	}
	if o.PaymentStatus == PaymentStatusPaid {
		return ErrRefundRequired
	}
	o.Status = OrderStatusCanceled
	return nil
}

// Advance applies a fulfillment transition.
func (o *Order) Advance(to OrderStatus) error {
	if to == OrderStatusCanceled || !CanTransition(o.Status, to) {
		return ErrInvalidTransition
	}
	o.Status = to
	return nil
}

// MarkPaid records a verified payment. It reports whether anything changed;
// an already Paid order is left as is.
func (o *Order) MarkPaid(reference string) (bool, error) {
	if o.PaymentStatus == PaymentStatusPaid {
		return false, nil
	}
	if o.Status == OrderStatusCanceled {
		return false, ErrInvalidTransition
	}
	o.PaymentStatus = PaymentStatusPaid
	o.PaymentVerified = true
	o.PaymentReference = reference
	return true, nil
}

// NewOrder is everything needed to persist a fresh order.
type NewOrder struct {
	UserID        string
	Recipient     Recipient
	Address       string
	PaymentMethod PaymentMethod
	Items         []LineItem
	TotalPaise    int64
	OrderedAt     time.Time

	// ClearCart removes the ordered products from the user's cart in the
	// same transaction as the order insert.
	ClearCart bool
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	Status OrderStatus
}

// OrderStore persists orders. Every method that changes an existing order
// goes through UpdateOrder so the row is locked for the whole mutation.
type OrderStore interface {
	// CreateOrder inserts the header and items atomically.
	CreateOrder(ctx context.Context, params NewOrder) (*Order, error)

	// GetOrder loads an order with its items.
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)

	// ListOrdersByUser returns a user's orders, newest first.
	ListOrdersByUser(ctx context.Context, userID string, filter OrderFilter) ([]Order, error)

	// UpdateOrder locks the order row, runs fn on the loaded order and writes
	// the result back if fn returns nil.
	UpdateOrder(ctx context.Context, id uuid.UUID, fn func(*Order) error) (*Order, error)
}
