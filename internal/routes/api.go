package routes

import (
	"github.com/dukerupert/hoversale/internal/idempotency"
	"github.com/dukerupert/hoversale/internal/middleware"
	"github.com/dukerupert/hoversale/internal/router"
)

// RegisterAPIRoutes registers the order and payment routes.
//
// Routes addressing an existing order need X-User-ID. Routes with a JSON
// body also accept userId in the body and the handlers reconcile the two.
// Placing an order and reordering honor Idempotency-Key.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	r.Post("/orders", deps.Orders.PlaceOrder, idempotency.Middleware(deps.Idempotency, "orders"))

	owned := r.Group(middleware.RequireCaller)
	owned.Get("/orders/user/{userId}", deps.Orders.ListUserOrders)
	owned.Get("/orders/{id}", deps.Orders.GetOrder)
	owned.Patch("/orders/{id}/cancel", deps.Orders.CancelOrder)
	owned.Post("/orders/{id}/reorder", deps.Orders.Reorder, idempotency.Middleware(deps.Idempotency, "reorder"))
	owned.Post("/orders/{id}/email-invoice", deps.Orders.EmailInvoice)

	payments := r.Group(middleware.Timeout(middleware.PaymentTimeout))
	if deps.PaymentLimiter != nil {
		payments.Use(deps.PaymentLimiter.Middleware)
	}
	payments.Post("/payments/upi-intent", deps.Payments.UPIIntent)
	payments.Post("/payments/upi-claim", deps.Payments.UPIClaim)
	payments.Get("/payments/provider-key", deps.Payments.ProviderKey)
	payments.Post("/payments/provider-order", deps.Payments.ProviderOrder)

	// Authenticated by the gateway signature; a caller id is optional.
	payments.Post("/payments/verify", deps.Payments.Verify)
}
