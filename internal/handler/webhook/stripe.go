package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/hoversale/internal/billing"
	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/handler"
	"github.com/dukerupert/hoversale/internal/middleware"
	"github.com/dukerupert/hoversale/internal/telemetry"
	"github.com/stripe/stripe-go/v83"
)

const providerStripe = "stripe"

// EventVerifier authenticates a raw webhook body against its signature header.
type EventVerifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error)
}

// PaymentReconciler settles orders from gateway-confirmed payments.
type PaymentReconciler interface {
	ReconcileVerified(ctx context.Context, provider string, payment *billing.VerifiedPayment) (*domain.Order, error)
}

// StripeHandler handles Stripe webhook events
type StripeHandler struct {
	verifier EventVerifier
	payments PaymentReconciler
	logger   *slog.Logger
}

// NewStripeHandler creates a new Stripe webhook handler
func NewStripeHandler(verifier EventVerifier, payments PaymentReconciler, logger *slog.Logger) *StripeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeHandler{
		verifier: verifier,
		payments: payments,
		logger:   logger,
	}
}

// HandleWebhook handles POST /webhooks/stripe
//
// Stripe retries anything that is not 2xx, so only failures a retry can
// fix return an error status. Events that can never apply (unknown order,
// amount mismatch, canceled order) are acknowledged and reported.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger payment_intent.succeeded
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "stripe.webhook", "Error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		telemetry.Business.Webhook(providerStripe, "unknown", "missing_signature")
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "stripe.webhook", "Missing signature"))
		return
	}

	event, err := h.verifier.VerifyWebhook(payload, signature)
	if err != nil {
		logger.Warn("stripe webhook signature rejected", "error", err, "payload_bytes", len(payload))
		telemetry.Business.Webhook(providerStripe, "unknown", "invalid_signature")
		handler.ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "stripe.webhook", "Invalid signature"))
		return
	}

	logger = logger.With("event_id", event.ID, "event_type", string(event.Type))

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		if err := h.handlePaymentIntentSucceeded(r.Context(), logger, event); err != nil {
			handler.ErrorResponse(w, r, err)
			return
		}

	case stripe.EventTypePaymentIntentPaymentFailed:
		h.handlePaymentIntentFailed(logger, event)
		telemetry.Business.Webhook(providerStripe, string(event.Type), "")

	default:
		logger.Debug("ignoring stripe event")
		telemetry.Business.Webhook(providerStripe, string(event.Type), "")
	}

	handler.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// handlePaymentIntentSucceeded marks the order named in the intent
// metadata as paid. A returned error makes Stripe redeliver.
func (h *StripeHandler) handlePaymentIntentSucceeded(ctx context.Context, logger *slog.Logger, event stripe.Event) error {
	eventType := string(event.Type)

	payment, err := billing.PaymentFromEvent(event)
	if err != nil {
		logger.Warn("payment intent could not be read", "error", err)
		telemetry.Business.Webhook(providerStripe, eventType, "invalid_payload")
		return nil
	}

	order, err := h.payments.ReconcileVerified(ctx, providerStripe, payment)
	switch {
	case err == nil:
		logger.Info("order paid via stripe webhook",
			"order_id", order.ID,
			"payment_intent", payment.PaymentID,
			"amount_paise", payment.AmountPaise)
		telemetry.Business.Webhook(providerStripe, eventType, "")
		return nil

	case isRetryable(err):
		logger.Error("failed to reconcile stripe payment, stripe will retry",
			"payment_intent", payment.PaymentID,
			"error", err)
		telemetry.Business.Webhook(providerStripe, eventType, "retry")
		return err

	default:
		// Retrying cannot change the outcome. Someone has to look at it.
		reason := domain.ErrorReason(err)
		if reason == "" {
			reason = domain.ErrorCode(err)
		}
		logger.Warn("stripe payment not applied",
			"payment_intent", payment.PaymentID,
			"receipt", payment.Receipt,
			"reason", reason,
			"error", err)
		telemetry.Business.Webhook(providerStripe, eventType, reason)
		telemetry.CaptureErrorWithOrder(err, payment.Receipt, map[string]interface{}{
			"payment_intent": payment.PaymentID,
			"amount_paise":   payment.AmountPaise,
			"event_id":       event.ID,
		})
		return nil
	}
}

func (h *StripeHandler) handlePaymentIntentFailed(logger *slog.Logger, event stripe.Event) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		logger.Warn("payment intent could not be read", "error", err)
		return
	}

	attrs := []any{"payment_intent", pi.ID, "order_id", pi.Metadata[billing.MetadataOrderID]}
	if pi.LastPaymentError != nil {
		attrs = append(attrs,
			"code", string(pi.LastPaymentError.Code),
			"decline_code", string(pi.LastPaymentError.DeclineCode))
	}
	logger.Info("stripe payment failed", attrs...)
}

// isRetryable reports whether a redelivery could succeed.
func isRetryable(err error) bool {
	switch domain.ErrorCode(err) {
	case domain.EINTERNAL, domain.EUNAVAILABLE:
		return true
	}
	return false
}
