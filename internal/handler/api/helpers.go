// Package api holds the JSON handlers for orders and payments.
package api

import (
	"net/http"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/google/uuid"
)

// callerID returns the user the request acts for. The X-User-ID header
// wins; a userId in the body is accepted when the header is absent and
// must agree with it when both are present.
func callerID(r *http.Request, op, bodyUserID string) (string, error) {
	header := domain.UserIDFromContext(r.Context())
	switch {
	case header == "" && bodyUserID == "":
		return "", domain.Unauthorized(op, "A user id is required")
	case header == "":
		return bodyUserID, nil
	case bodyUserID != "" && bodyUserID != header:
		return "", domain.Forbidden(op, "userId does not match the caller")
	default:
		return header, nil
	}
}

// pathOrderID parses the {id} path value. Malformed ids are reported as
// not found; they cannot name an order.
func pathOrderID(r *http.Request, op string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.ErrOrderNotFound.WithOp(op)
	}
	return id, nil
}

// orderSummary is the response to placing an order.
type orderSummary struct {
	OrderID       uuid.UUID            `json:"orderId"`
	TotalPrice    string               `json:"totalPrice"`
	TotalPaise    int64                `json:"totalPaise"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
}

func newOrderSummary(o *domain.Order) orderSummary {
	return orderSummary{
		OrderID:       o.ID,
		TotalPrice:    domain.FormatRupees(o.TotalPaise),
		TotalPaise:    o.TotalPaise,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
	}
}

// orderView is an order with rupee amounts alongside the paise values.
type orderView struct {
	*domain.Order
	TotalPrice string         `json:"totalPrice"`
	Items      []lineItemView `json:"items"`
}

type lineItemView struct {
	domain.LineItem
	UnitPrice string `json:"unitPrice"`
	Subtotal  string `json:"subtotal"`
}

func newOrderView(o *domain.Order) orderView {
	items := make([]lineItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineItemView{
			LineItem:  it,
			UnitPrice: domain.FormatRupees(it.UnitPricePaise),
			Subtotal:  domain.FormatRupees(it.SubtotalPaise()),
		})
	}
	return orderView{
		Order:      o,
		TotalPrice: domain.FormatRupees(o.TotalPaise),
		Items:      items,
	}
}
