package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/handler"
	"github.com/dukerupert/hoversale/internal/middleware"
	"github.com/dukerupert/hoversale/internal/service"
	"github.com/shopspring/decimal"
)

// OrderHandler handles the order endpoints.
type OrderHandler struct {
	orders service.OrderService
	logger *slog.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders service.OrderService, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

type placeOrderRequest struct {
	UserID        string           `json:"userId" validate:"max=128"`
	Recipient     recipientInput   `json:"recipient"`
	Address       string           `json:"address" validate:"max=1000"`
	PaymentMethod string           `json:"paymentMethod" validate:"required"`
	Source        string           `json:"source" validate:"omitempty,oneof=cart buy_now"`
	Items         []orderItemInput `json:"items" validate:"max=100,dive"`

	// ProductIDs narrows a persisted cart checkout to these products.
	ProductIDs []int64 `json:"productIds" validate:"max=100,dive,gt=0"`
}

type recipientInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email,max=254"`
	Phone string `json:"phone" validate:"omitempty,max=20"`
}

type orderItemInput struct {
	ProductID int64 `json:"productId" validate:"gt=0"`
	Quantity  int32 `json:"quantity"`

	// Price is the unit price in rupees the client displayed. Only read
	// when the server trusts client prices.
	Price *decimal.Decimal `json:"price,omitempty"`
}

// PlaceOrder handles POST /orders
//
// Items may be omitted to order everything in stock in the caller's cart,
// or the productIds in it.
// Responds 201 with the order id and total.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	const op = "order.place"

	var req placeOrderRequest
	if err := handler.DecodeJSON(r, op, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	userID, err := callerID(r, op, req.UserID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	params := service.PlaceOrderParams{
		UserID: userID,
		Recipient: domain.Recipient{
			Name:  req.Recipient.Name,
			Email: req.Recipient.Email,
			Phone: req.Recipient.Phone,
		},
		Address:       req.Address,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Source:        domain.SelectionSource(req.Source),
		ProductIDs:    req.ProductIDs,
	}
	for i, it := range req.Items {
		item := service.OrderItemInput{ProductID: it.ProductID, Quantity: it.Quantity}
		if it.Price != nil {
			paise, err := domain.RupeesToPaise(*it.Price)
			if errors.Is(err, domain.ErrAmountOutOfRange) {
				handler.ErrorResponse(w, r, err)
				return
			}
			if err != nil {
				handler.ErrorResponse(w, r, domain.NewValidationError(op, fmt.Sprintf("items[%d].price", i), "must have at most two decimal places"))
				return
			}
			item.UnitPricePaise = paise
		}
		params.Items = append(params.Items, item)
	}

	order, err := h.orders.PlaceOrder(r.Context(), params)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusCreated, newOrderSummary(order))
}

// CancelOrder handles PATCH /orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	const op = "order.cancel"

	orderID, err := pathOrderID(r, op)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	userID, err := callerID(r, op, "")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), userID, orderID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"orderId":       order.ID,
		"status":        order.Status,
		"paymentStatus": order.PaymentStatus,
	})
}

// GetOrder handles GET /orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	const op = "order.get"

	orderID, err := pathOrderID(r, op)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	userID, err := callerID(r, op, "")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, newOrderView(order))
}

// ListUserOrders handles GET /orders/user/{userId}?status=Pending
//
// Callers may only list their own orders.
func (h *OrderHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	const op = "order.list"

	userID, err := callerID(r, op, r.PathValue("userId"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	filter := domain.OrderFilter{}
	// "All" is what the order history tabs send for no filter.
	if status := r.URL.Query().Get("status"); status != "" && status != "All" {
		filter.Status = domain.OrderStatus(status)
	}

	orders, err := h.orders.ListOrders(r.Context(), userID, filter)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	views := make([]orderView, 0, len(orders))
	for i := range orders {
		views = append(views, newOrderView(&orders[i]))
	}

	middleware.GetLogger(r.Context(), h.logger).Debug("listed orders", "count", len(views), "status", filter.Status)
	handler.WriteJSON(w, http.StatusOK, map[string]any{"orders": views})
}

// Reorder handles POST /orders/{id}/reorder
func (h *OrderHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	const op = "order.reorder"

	orderID, err := pathOrderID(r, op)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	userID, err := callerID(r, op, "")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.Reorder(r.Context(), userID, orderID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusCreated, newOrderSummary(order))
}

// EmailInvoice handles POST /orders/{id}/email-invoice
func (h *OrderHandler) EmailInvoice(w http.ResponseWriter, r *http.Request) {
	const op = "order.email_invoice"

	orderID, err := pathOrderID(r, op)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	userID, err := callerID(r, op, "")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	if err := h.orders.EmailInvoice(r.Context(), userID, orderID); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusAccepted, map[string]any{"orderId": orderID, "emailed": true})
}
