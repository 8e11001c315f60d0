package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for order and payment observability.
//
// All recording methods are safe on a nil receiver so packages can record
// unconditionally whether or not metrics were initialized.
type BusinessMetrics struct {
	// Orders
	OrdersCreated   *prometheus.CounterVec
	OrderValue      *prometheus.HistogramVec
	OrderItemCount  *prometheus.HistogramVec
	OrdersCanceled  prometheus.Counter
	Reorders        *prometheus.CounterVec
	FulfillmentSeen *prometheus.CounterVec

	// Payments
	PaymentsVerified *prometheus.CounterVec
	PaymentClaims    prometheus.Counter
	RevenueCollected *prometheus.CounterVec

	// Webhooks
	WebhookReceived *prometheus.CounterVec
	WebhookFailed   *prometheus.CounterVec

	// Idempotency
	IdempotentReplays *prometheus.CounterVec

	// Messaging
	MessagesConsumed *prometheus.CounterVec

	// Email delivery
	EmailSent   *prometheus.CounterVec
	EmailFailed *prometheus.CounterVec

	// External API performance
	GatewayLatency *prometheus.HistogramVec
	GatewayErrors  *prometheus.CounterVec
}

// NewBusinessMetrics creates and registers all business metrics on the
// default Prometheus registry.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return NewBusinessMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewBusinessMetricsWith registers the business metrics on reg.
func NewBusinessMetricsWith(reg prometheus.Registerer, namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "hoversale"
	}

	subsystem := "business"
	factory := promauto.With(reg)

	m := &BusinessMetrics{
		// =======================================================================
		// Orders
		// =======================================================================
		OrdersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_created_total",
				Help:      "Total orders created",
			},
			[]string{"payment_method", "source"}, // source: cart, buy_now, reorder
		),
		OrderValue: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value_rupees",
				Help:      "Order total in rupees",
				Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000},
			},
			[]string{"payment_method"},
		),
		OrderItemCount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_item_count",
				Help:      "Number of line items per order",
				Buckets:   []float64{1, 2, 3, 5, 10, 20},
			},
			[]string{"source"},
		),
		OrdersCanceled: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_canceled_total",
				Help:      "Total orders canceled by customers",
			},
		),
		Reorders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reorders_total",
				Help:      "Reorder attempts by outcome",
			},
			[]string{"outcome"}, // outcome: created, stock_unavailable, error
		),
		FulfillmentSeen: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fulfillment_updates_total",
				Help:      "Fulfillment status updates applied or rejected",
			},
			[]string{"status", "outcome"},
		),

		// =======================================================================
		// Payments
		// =======================================================================
		PaymentsVerified: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_verifications_total",
				Help:      "Payment verification attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),
		PaymentClaims: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "upi_payment_claims_total",
				Help:      "Customer self-reported UPI payments",
			},
		),
		RevenueCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "revenue_collected_paise_total",
				Help:      "Revenue marked paid, in paise",
			},
			[]string{"provider"},
		),

		// =======================================================================
		// Webhooks
		// =======================================================================
		WebhookReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_received_total",
				Help:      "Total webhooks received",
			},
			[]string{"provider", "event_type"},
		),
		WebhookFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_failed_total",
				Help:      "Total webhooks that failed processing",
			},
			[]string{"provider", "reason"},
		),

		// =======================================================================
		// Idempotency
		// =======================================================================
		IdempotentReplays: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "idempotent_replays_total",
				Help:      "Requests answered from the idempotency store",
			},
			[]string{"route"},
		),

		// =======================================================================
		// Email
		// =======================================================================
		EmailSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_sent_total",
				Help:      "Total emails sent",
			},
			[]string{"template"},
		),
		EmailFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_failed_total",
				Help:      "Total emails that failed to send",
			},
			[]string{"template"},
		),

		// =======================================================================
		// External API
		// =======================================================================
		GatewayLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gateway_api_duration_seconds",
				Help:      "Payment gateway call duration (helps differentiate app slowness from gateway issues)",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "operation"}, // operation: create_order, fetch_order, get_payment_intent
		),
		GatewayErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gateway_api_errors_total",
				Help:      "Payment gateway call failures",
			},
			[]string{"provider", "operation"},
		),

		// =======================================================================
		// Messaging
		// =======================================================================
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "messages_consumed_total",
				Help:      "Inbound messages by subject and outcome",
			},
			[]string{"subject", "outcome"}, // outcome: ok, rejected, error
		),
	}

	return m
}

// Global instance for easy access from services and handlers
var Business *BusinessMetrics

// InitBusinessMetrics initializes the global business metrics instance
func InitBusinessMetrics(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(namespace)
	return Business
}

// OrderCreated records a newly created order.
func (m *BusinessMetrics) OrderCreated(method, source string, totalPaise int64, items int) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(method, source).Inc()
	m.OrderValue.WithLabelValues(method).Observe(float64(totalPaise) / 100)
	m.OrderItemCount.WithLabelValues(source).Observe(float64(items))
}

// OrderCanceled records a customer cancellation.
func (m *BusinessMetrics) OrderCanceled() {
	if m == nil {
		return
	}
	m.OrdersCanceled.Inc()
}

// Reorder records the outcome of a reorder attempt.
func (m *BusinessMetrics) Reorder(outcome string) {
	if m == nil {
		return
	}
	m.Reorders.WithLabelValues(outcome).Inc()
}

// Fulfillment records a fulfillment update.
func (m *BusinessMetrics) Fulfillment(status, outcome string) {
	if m == nil {
		return
	}
	m.FulfillmentSeen.WithLabelValues(status, outcome).Inc()
}

// PaymentVerified records the outcome of a payment verification.
func (m *BusinessMetrics) PaymentVerified(provider, outcome string) {
	if m == nil {
		return
	}
	m.PaymentsVerified.WithLabelValues(provider, outcome).Inc()
}

// PaymentCollected adds a settled order total to revenue.
func (m *BusinessMetrics) PaymentCollected(provider string, paise int64) {
	if m == nil {
		return
	}
	m.RevenueCollected.WithLabelValues(provider).Add(float64(paise))
}

// PaymentClaimed records a UPI self-report.
func (m *BusinessMetrics) PaymentClaimed() {
	if m == nil {
		return
	}
	m.PaymentClaims.Inc()
}

// Webhook records a received webhook, and a failure when reason is non-empty.
func (m *BusinessMetrics) Webhook(provider, eventType, reason string) {
	if m == nil {
		return
	}
	m.WebhookReceived.WithLabelValues(provider, eventType).Inc()
	if reason != "" {
		m.WebhookFailed.WithLabelValues(provider, reason).Inc()
	}
}

// IdempotentReplay records a response served from the idempotency store.
func (m *BusinessMetrics) IdempotentReplay(route string) {
	if m == nil {
		return
	}
	m.IdempotentReplays.WithLabelValues(route).Inc()
}

// MessageConsumed records the outcome of an inbound message.
func (m *BusinessMetrics) MessageConsumed(subject, outcome string) {
	if m == nil {
		return
	}
	m.MessagesConsumed.WithLabelValues(subject, outcome).Inc()
}

// Email records an email delivery attempt.
func (m *BusinessMetrics) Email(template string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EmailFailed.WithLabelValues(template).Inc()
		return
	}
	m.EmailSent.WithLabelValues(template).Inc()
}

// ObserveGateway records the duration of a gateway call that started at
// start, counting it as an error when err is non-nil.
func (m *BusinessMetrics) ObserveGateway(provider, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.GatewayLatency.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.GatewayErrors.WithLabelValues(provider, operation).Inc()
	}
}
