package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message subjects.
const (
	SubjectOrderPlaced   = "orders.placed"
	SubjectOrderCanceled = "orders.canceled"
	SubjectOrderPaid     = "orders.paid"

	// Inbound from the fulfillment system.
	SubjectFulfillmentUpdates = "fulfillment.updates"

	// Inbound from the merchant's UPI settlement ledger.
	SubjectUPISettled = "payments.upi.settled"
)

// OrderEvent is published whenever an order changes in a way other
// systems care about.
type OrderEvent struct {
	OrderID       uuid.UUID     `json:"orderId"`
	UserID        string        `json:"userId"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	TotalPaise    int64         `json:"totalPaise"`
	OccurredAt    time.Time     `json:"occurredAt"`
}

// NewOrderEvent snapshots o at time at.
func NewOrderEvent(o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		TotalPaise:    o.TotalPaise,
		OccurredAt:    at,
	}
}

// FulfillmentUpdate advances an order through packing and delivery.
type FulfillmentUpdate struct {
	OrderID           uuid.UUID   `json:"orderId" validate:"required"`
	Status            OrderStatus `json:"status" validate:"required,oneof=Packed Shipped Delivered"`
	TrackingID        *string     `json:"trackingId,omitempty" validate:"omitempty,max=100"`
	EstimatedDelivery *time.Time  `json:"estimatedDelivery,omitempty"`
}

// UPISettlement is a ledger confirmation that a UPI transfer arrived.
type UPISettlement struct {
	OrderID     uuid.UUID `json:"orderId" validate:"required"`
	AmountPaise int64     `json:"amountPaise" validate:"gt=0"`
	Reference   string    `json:"reference" validate:"required"`
}

// EventPublisher publishes domain events. Delivery is best effort; callers
// log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event any) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, string, any) error { return nil }
