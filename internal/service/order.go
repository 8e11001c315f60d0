package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/email"
	"github.com/dukerupert/hoversale/internal/telemetry"
	"github.com/google/uuid"
)

// PricingMode decides where unit prices come from when an order is placed.
type PricingMode string

const (
	// PricingCatalog re-reads unit prices from the product table.
	PricingCatalog PricingMode = "catalog"

	// PricingClient trusts the unit prices the caller sent.
	PricingClient PricingMode = "client"
)

// OrderService provides business logic for placing and managing orders
type OrderService interface {
	// PlaceOrder validates a selection and stores it as a Pending, Unpaid
	// order. Cash on delivery orders also clear the ordered products from
	// the user's cart in the same transaction.
	PlaceOrder(ctx context.Context, params PlaceOrderParams) (*domain.Order, error)

	// GetOrder returns one of the caller's orders.
	GetOrder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)

	// ListOrders returns the caller's orders, newest first.
	ListOrders(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error)

	// CancelOrder cancels a Pending, Unpaid order.
	CancelOrder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)

	// Reorder places a new order with the items of a previous one.
	// The previous order is never modified.
	Reorder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)

	// ApplyFulfillmentUpdate advances an order through packing and delivery.
	ApplyFulfillmentUpdate(ctx context.Context, update domain.FulfillmentUpdate) (*domain.Order, error)

	// EmailInvoice mails the order invoice to the recipient.
	EmailInvoice(ctx context.Context, userID string, orderID uuid.UUID) error
}

// PlaceOrderParams contains parameters for placing an order
type PlaceOrderParams struct {
	UserID        string
	Recipient     domain.Recipient
	Address       string
	PaymentMethod domain.PaymentMethod

	// Source is SourceCart (default) or SourceBuyNow.
	Source domain.SelectionSource

	// Items the client selected. Empty means the persisted cart.
	Items []OrderItemInput

	// ProductIDs picks products out of the persisted cart. Every one of
	// them must be in stock. Only valid without Items.
	ProductIDs []int64
}

// OrderItemInput is one submitted line. UnitPricePaise is only read in
// PricingClient mode.
type OrderItemInput struct {
	ProductID      int64
	Quantity       int32
	UnitPricePaise int64
}

// InvoiceSender delivers rendered invoices.
type InvoiceSender interface {
	SendInvoice(ctx context.Context, data email.InvoiceEmail) error
}

type orderService struct {
	store     domain.OrderStore
	resolver  *Resolver
	publisher domain.EventPublisher
	invoices  InvoiceSender
	pricing   PricingMode
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrderService creates a new OrderService instance.
// invoices may be nil when no mail transport is configured.
func NewOrderService(store domain.OrderStore, resolver *Resolver, publisher domain.EventPublisher, invoices InvoiceSender, pricing PricingMode, logger *slog.Logger) OrderService {
	if publisher == nil {
		publisher = domain.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if pricing != PricingClient {
		pricing = PricingCatalog
	}
	return &orderService{
		store:     store,
		resolver:  resolver,
		publisher: publisher,
		invoices:  invoices,
		pricing:   pricing,
		logger:    logger.With("component", "orders"),
		now:       time.Now,
	}
}

// PlaceOrder implements OrderService.
func (s *orderService) PlaceOrder(ctx context.Context, params PlaceOrderParams) (*domain.Order, error) {
	const op = "order.place"

	if params.UserID == "" {
		return nil, domain.Unauthorized(op, "user id is required")
	}
	address := strings.TrimSpace(params.Address)
	if address == "" {
		return nil, domain.ErrInvalidAddress.WithOp(op)
	}
	if !params.PaymentMethod.Valid() {
		return nil, domain.NewValidationError(op, "paymentMethod", fmt.Sprintf("unknown payment method %q", params.PaymentMethod))
	}

	req := domain.SelectionRequest{Source: params.Source, UserID: params.UserID}
	switch params.Source {
	case domain.SourceBuyNow:
		if len(params.Items) != 1 {
			return nil, domain.NewValidationError(op, "items", "buy now takes exactly one item")
		}
		if len(params.ProductIDs) > 0 {
			return nil, domain.NewValidationError(op, "productIds", "not allowed with buy now")
		}
		req.BuyNow = &domain.CartItem{ProductID: params.Items[0].ProductID, Quantity: params.Items[0].Quantity}
	case domain.SourceCart, "":
		req.Source = domain.SourceCart
		if len(params.Items) > 0 && len(params.ProductIDs) > 0 {
			return nil, domain.NewValidationError(op, "productIds", "cannot be combined with items")
		}
		req.ProductIDs = params.ProductIDs
		for _, it := range params.Items {
			req.Lines = append(req.Lines, domain.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
		}
	default:
		return nil, domain.NewValidationError(op, "source", fmt.Sprintf("unknown source %q", params.Source))
	}

	sel, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.pricing == PricingClient && len(params.Items) > 0 {
		if err := applyClientPrices(op, sel, params.Items); err != nil {
			return nil, err
		}
	}

	return s.create(ctx, domain.NewOrder{
		UserID:        params.UserID,
		Recipient:     params.Recipient,
		Address:       address,
		PaymentMethod: params.PaymentMethod,
		Items:         sel.Items,
		TotalPaise:    sel.TotalPaise,
	}, string(req.Source))
}

// applyClientPrices overwrites catalog prices with the submitted snapshot.
func applyClientPrices(op string, sel *domain.Selection, items []OrderItemInput) error {
	prices := make(map[int64]int64, len(items))
	for i, it := range items {
		if it.UnitPricePaise <= 0 {
			return domain.NewValidationError(op, fmt.Sprintf("items[%d].price", i), "must be greater than zero")
		}
		if _, dup := prices[it.ProductID]; dup {
			return domain.ErrDuplicateItem.WithOp(op)
		}
		prices[it.ProductID] = it.UnitPricePaise
	}
	for i := range sel.Items {
		sel.Items[i].UnitPricePaise = prices[sel.Items[i].ProductID]
	}
	total, err := domain.TotalOf(sel.Items)
	if err != nil {
		return err
	}
	sel.TotalPaise = total
	return nil
}

func (s *orderService) create(ctx context.Context, params domain.NewOrder, source string) (*domain.Order, error) {
	params.OrderedAt = s.now().UTC()
	params.ClearCart = params.PaymentMethod == domain.PaymentMethodCOD

	order, err := s.store.CreateOrder(ctx, params)
	if err != nil {
		return nil, err
	}

	telemetry.Business.OrderCreated(string(order.PaymentMethod), source, order.TotalPaise, len(order.Items))
	s.logger.InfoContext(ctx, "order placed",
		"order_id", order.ID,
		"user_id", order.UserID,
		"payment_method", order.PaymentMethod,
		"total_paise", order.TotalPaise,
		"items", len(order.Items))
	s.publish(ctx, domain.SubjectOrderPlaced, order)

	return order, nil
}

// GetOrder implements OrderService.
func (s *orderService) GetOrder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner.WithOp("order.get")
	}
	return order, nil
}

// ListOrders implements OrderService.
func (s *orderService) ListOrders(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error) {
	const op = "order.list"

	if userID == "" {
		return nil, domain.Unauthorized(op, "user id is required")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.NewValidationError(op, "status", fmt.Sprintf("unknown order status %q", filter.Status))
	}
	return s.store.ListOrdersByUser(ctx, userID, filter)
}

// CancelOrder implements OrderService.
func (s *orderService) CancelOrder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	const op = "order.cancel"

	order, err := s.store.UpdateOrder(ctx, orderID, func(o *domain.Order) error {
		if o.UserID != userID {
			return ErrNotOrderOwner.WithOp(op)
		}
		if err := o.Cancel(); err != nil {
			return withOp(err, op)
		}
		o.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.Business.OrderCanceled()
	s.logger.InfoContext(ctx, "order canceled", "order_id", order.ID, "user_id", userID)
	s.publish(ctx, domain.SubjectOrderCanceled, order)
	return order, nil
}

// Reorder implements OrderService.
func (s *orderService) Reorder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	prior, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	sel, err := s.resolver.Resolve(ctx, domain.SelectionRequest{
		Source:  domain.SourceReorder,
		UserID:  userID,
		Reorder: prior,
	})
	if err != nil {
		if errors.Is(err, domain.ErrStockUnavailable) {
			telemetry.Business.Reorder("stock_unavailable")
		}
		return nil, err
	}

	order, err := s.create(ctx, domain.NewOrder{
		UserID:        userID,
		Recipient:     prior.Recipient,
		Address:       prior.Address,
		PaymentMethod: prior.PaymentMethod,
		Items:         sel.Items,
		TotalPaise:    sel.TotalPaise,
	}, string(domain.SourceReorder))
	if err != nil {
		return nil, err
	}

	telemetry.Business.Reorder("placed")
	return order, nil
}

// ApplyFulfillmentUpdate implements OrderService. Redelivered updates for
// a status the order already has are accepted without change.
func (s *orderService) ApplyFulfillmentUpdate(ctx context.Context, update domain.FulfillmentUpdate) (*domain.Order, error) {
	const op = "order.fulfillment"

	outcome := "applied"
	order, err := s.store.UpdateOrder(ctx, update.OrderID, func(o *domain.Order) error {
		if o.Status == update.Status {
			outcome = "duplicate"
		} else if err := o.Advance(update.Status); err != nil {
			return withOp(err, op)
		}
		if update.TrackingID != nil {
			o.TrackingID = update.TrackingID
		}
		if update.EstimatedDelivery != nil {
			o.EstimatedDelivery = update.EstimatedDelivery
		}
		o.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		telemetry.Business.Fulfillment(string(update.Status), "rejected")
		return nil, err
	}

	telemetry.Business.Fulfillment(string(update.Status), outcome)
	s.logger.InfoContext(ctx, "fulfillment update applied",
		"order_id", order.ID,
		"status", order.Status,
		"outcome", outcome)
	return order, nil
}

// EmailInvoice implements OrderService.
func (s *orderService) EmailInvoice(ctx context.Context, userID string, orderID uuid.UUID) error {
	const op = "order.email_invoice"

	if s.invoices == nil {
		return ErrEmailUnavailable.WithOp(op)
	}

	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(order.Recipient.Email) == "" {
		return domain.NewValidationError(op, "recipient.email", "order has no recipient email")
	}

	if err := s.invoices.SendInvoice(ctx, invoiceFor(order)); err != nil {
		s.logger.ErrorContext(ctx, "failed to send invoice", "order_id", order.ID, "error", err)
		return domain.WrapError(err, domain.EUNAVAILABLE, op, "Invoice could not be sent, please retry")
	}
	return nil
}

func invoiceFor(o *domain.Order) email.InvoiceEmail {
	lines := make([]email.InvoiceLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, email.InvoiceLine{
			ProductName: it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   domain.FormatRupees(it.UnitPricePaise),
			LineTotal:   domain.FormatRupees(it.SubtotalPaise()),
		})
	}
	return email.InvoiceEmail{
		OrderID:       o.ID.String(),
		CustomerName:  o.Recipient.Name,
		CustomerEmail: o.Recipient.Email,
		OrderedAt:     o.OrderedAt,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		Address:       o.Address,
		Items:         lines,
		Total:         domain.FormatRupees(o.TotalPaise),
	}
}

func (s *orderService) publish(ctx context.Context, subject string, o *domain.Order) {
	if err := s.publisher.Publish(ctx, subject, domain.NewOrderEvent(o, s.now().UTC())); err != nil {
		s.logger.WarnContext(ctx, "failed to publish order event",
			"subject", subject,
			"order_id", o.ID,
			"error", err)
	}
}

// withOp tags domain sentinels with op and passes anything else through.
func withOp(err error, op string) error {
	var e *domain.Error
	if errors.As(err, &e) {
		return e.WithOp(op)
	}
	return err
}
