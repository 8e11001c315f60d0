package routes

import (
	"net/http"

	"github.com/dukerupert/hoversale/internal/handler/api"
	"github.com/dukerupert/hoversale/internal/idempotency"
	"github.com/dukerupert/hoversale/internal/middleware"
)

// APIDeps contains dependencies for the order and payment routes
type APIDeps struct {
	Orders   *api.OrderHandler
	Payments *api.PaymentHandler

	// Idempotency stores replayable responses for order creation.
	// Nil disables Idempotency-Key handling.
	Idempotency *idempotency.Store

	// PaymentLimiter throttles the payment endpoints per caller.
	PaymentLimiter *middleware.RateLimiter
}

// WebhookDeps contains dependencies for webhook routes
type WebhookDeps struct {
	// StripeHandler is nil unless Stripe is the configured checkout.
	StripeHandler http.HandlerFunc
}

// OpsDeps contains dependencies for health and metrics endpoints
type OpsDeps struct {
	Health  *api.HealthHandler
	Metrics http.Handler
}
