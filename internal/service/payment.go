package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/hoversale/internal/billing"
	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/telemetry"
	"github.com/google/uuid"
)

// Proof providers that are not hosted checkouts.
const (
	ProofUPISelfReport = "upi_self_report"
	ProofUPILedger     = "upi_ledger"
)

// PaymentService initiates payments and reconciles their outcome onto orders
type PaymentService interface {
	// CreateUPIIntent builds a UPI deep link paying the configured merchant.
	CreateUPIIntent(ctx context.Context, params UPIIntentParams) (*billing.UPIIntent, error)

	// ClaimUPIPayment records the payer's own report that a UPI transfer
	// was made. The order stays Unpaid until the ledger confirms it.
	ClaimUPIPayment(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)

	// ProviderKey returns the hosted checkout's publishable key.
	ProviderKey(ctx context.Context) (string, error)

	// CreateProviderOrder registers a payment with the hosted checkout.
	CreateProviderOrder(ctx context.Context, params ProviderOrderParams) (*billing.RemoteOrder, error)

	// VerifyPayment authenticates a hosted checkout callback and marks the
	// order Paid. Calling it again with the same payload changes nothing.
	VerifyPayment(ctx context.Context, params VerifyPaymentParams) (*domain.Order, error)

	// MarkPaid applies a payment proof to an order. Verified proofs set the
	// order Paid; unverified ones only record the claim.
	MarkPaid(ctx context.Context, orderID uuid.UUID, amountPaise int64, proof domain.PaymentProof) (*domain.Order, error)

	// ReconcileVerified marks the order referenced by an already
	// authenticated gateway payment as Paid.
	ReconcileVerified(ctx context.Context, provider string, payment *billing.VerifiedPayment) (*domain.Order, error)

	// ReconcileSettlement applies a merchant ledger confirmation of a UPI transfer.
	ReconcileSettlement(ctx context.Context, settlement domain.UPISettlement) (*domain.Order, error)
}

// UPIIntentParams contains parameters for a UPI intent. The payee is
// always the configured merchant.
type UPIIntentParams struct {
	AmountPaise int64
	Note        string
	WithQR      bool
}

// ProviderOrderParams contains parameters for creating a remote order.
// With OrderID set the amount is the order total and AmountPaise, if
// given, must agree with it. Without OrderID the remote order is not
// bound to any local order and VerifyPayment will not accept it.
type ProviderOrderParams struct {
	UserID      string
	OrderID     *uuid.UUID
	AmountPaise int64
}

// VerifyPaymentParams is the hosted checkout callback plus the local order
// it is meant to pay.
type VerifyPaymentParams struct {
	UserID        string
	OrderID       uuid.UUID
	RemoteOrderID string
	PaymentID     string
	Signature     string

	// AmountPaise is what the client believes it paid. Optional.
	AmountPaise int64
}

type paymentService struct {
	store     domain.OrderStore
	checkout  billing.Checkout
	upi       *billing.UPIBuilder
	publisher domain.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewPaymentService creates a new PaymentService instance.
// checkout and upi may be nil when the corresponding method is disabled.
func NewPaymentService(store domain.OrderStore, checkout billing.Checkout, upi *billing.UPIBuilder, publisher domain.EventPublisher, logger *slog.Logger) PaymentService {
	if publisher == nil {
		publisher = domain.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &paymentService{
		store:     store,
		checkout:  checkout,
		upi:       upi,
		publisher: publisher,
		logger:    logger.With("component", "payments"),
		now:       time.Now,
	}
}

// CreateUPIIntent implements PaymentService.
func (s *paymentService) CreateUPIIntent(ctx context.Context, params UPIIntentParams) (*billing.UPIIntent, error) {
	if s.upi == nil {
		return nil, ErrUPIUnavailable.WithOp("payment.upi_intent")
	}
	note := strings.TrimSpace(params.Note)
	if note == "" {
		note = "HoverSale order"
	}
	return s.upi.Build(params.AmountPaise, note, params.WithQR)
}

// ClaimUPIPayment implements PaymentService.
func (s *paymentService) ClaimUPIPayment(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	const op = "payment.upi_claim"

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner.WithOp(op)
	}
	if order.PaymentMethod != domain.PaymentMethodUPI {
		return nil, ErrNotPrepaid.WithOp(op)
	}

	return s.MarkPaid(ctx, orderID, order.TotalPaise, domain.PaymentProof{
		Provider: ProofUPISelfReport,
		Verified: false,
	})
}

// ProviderKey implements PaymentService.
func (s *paymentService) ProviderKey(ctx context.Context) (string, error) {
	if s.checkout == nil {
		return "", domain.ErrKeyFetchFailed.WithOp("payment.provider_key")
	}
	return s.checkout.PublicKey(ctx)
}

// CreateProviderOrder implements PaymentService.
func (s *paymentService) CreateProviderOrder(ctx context.Context, params ProviderOrderParams) (*billing.RemoteOrder, error) {
	const op = "payment.provider_order"

	if s.checkout == nil {
		return nil, ErrCheckoutDisabled.WithOp(op)
	}

	create := billing.CreateOrderParams{
		AmountPaise: params.AmountPaise,
		Currency:    domain.Currency,
	}

	if params.OrderID != nil {
		order, err := s.store.GetOrder(ctx, *params.OrderID)
		if err != nil {
			return nil, err
		}
		if order.UserID != params.UserID {
			return nil, ErrNotOrderOwner.WithOp(op)
		}
		switch {
		case order.Status == domain.OrderStatusCanceled:
			return nil, domain.ErrInvalidTransition.WithOp(op)
		case order.PaymentStatus == domain.PaymentStatusPaid, !order.PaymentMethod.RequiresPrepayment():
			return nil, ErrNotPrepaid.WithOp(op)
		}
		if params.AmountPaise > 0 && params.AmountPaise != order.TotalPaise {
			return nil, domain.ErrAmountMismatch.WithOp(op)
		}

		create.AmountPaise = order.TotalPaise
		create.Receipt = order.ID.String()
		create.IdempotencyKey = "order-" + order.ID.String()
		create.Notes = map[string]string{"user_id": order.UserID}
	}

	if create.AmountPaise <= 0 {
		return nil, domain.ErrInvalidAmount.WithOp(op)
	}

	remote, err := s.checkout.CreateRemoteOrder(ctx, create)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create remote order",
			"provider", s.checkout.Provider(),
			"receipt", create.Receipt,
			"amount_paise", create.AmountPaise,
			"error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "remote order created",
		"provider", s.checkout.Provider(),
		"remote_order_id", remote.ID,
		"receipt", create.Receipt)
	return remote, nil
}

// VerifyPayment implements PaymentService.
//
// The signature is checked first, then the gateway's own record of the
// amount is compared with the order total. Nothing is written unless both
// agree.
func (s *paymentService) VerifyPayment(ctx context.Context, params VerifyPaymentParams) (*domain.Order, error) {
	const op = "payment.verify"

	if s.checkout == nil {
		return nil, ErrCheckoutDisabled.WithOp(op)
	}
	provider := s.checkout.Provider()

	verified, err := s.checkout.VerifyPayment(ctx, billing.VerifyParams{
		RemoteOrderID: params.RemoteOrderID,
		PaymentID:     params.PaymentID,
		Signature:     params.Signature,
	})
	if err != nil {
		s.rejected(ctx, provider, params.OrderID, err)
		return nil, err
	}

	order, err := s.store.GetOrder(ctx, params.OrderID)
	if err != nil {
		return nil, err
	}
	if params.UserID != "" && order.UserID != params.UserID {
		return nil, ErrNotOrderOwner.WithOp(op)
	}

	// Only a remote order created for this order can settle it. Remote
	// orders made from a bare amount carry no receipt and never match.
	if verified.Receipt != order.ID.String() {
		err := domain.ErrSignatureMismatch.WithOp(op)
		s.rejected(ctx, provider, order.ID, err)
		return nil, err
	}
	if params.AmountPaise > 0 && params.AmountPaise != order.TotalPaise {
		err := domain.ErrAmountMismatch.WithOp(op)
		s.rejected(ctx, provider, order.ID, err)
		return nil, err
	}

	return s.MarkPaid(ctx, order.ID, verified.AmountPaise, domain.PaymentProof{
		Provider:  provider,
		Reference: verified.PaymentID,
		Verified:  true,
	})
}

// MarkPaid implements PaymentService.
func (s *paymentService) MarkPaid(ctx context.Context, orderID uuid.UUID, amountPaise int64, proof domain.PaymentProof) (*domain.Order, error) {
	const op = "payment.mark_paid"

	changed := false
	order, err := s.store.UpdateOrder(ctx, orderID, func(o *domain.Order) error {
		if !proof.Verified {
			if o.Status == domain.OrderStatusCanceled {
				return domain.ErrInvalidTransition.WithOp(op)
			}
			if o.PaymentStatus != domain.PaymentStatusPaid && o.PaymentClaimedAt == nil {
				at := s.now().UTC()
				o.PaymentClaimedAt = &at
				o.UpdatedAt = at
				changed = true
			}
			return nil
		}

		if amountPaise != o.TotalPaise {
			return domain.ErrAmountMismatch.WithOp(op)
		}
		var err error
		changed, err = o.MarkPaid(proof.Reference)
		if err != nil {
			return withOp(err, op)
		}
		if changed {
			o.UpdatedAt = s.now().UTC()
		}
		return nil
	})
	if err != nil {
		if proof.Verified {
			s.rejected(ctx, proof.Provider, orderID, err)
		}
		return nil, err
	}

	switch {
	case !proof.Verified:
		if changed {
			telemetry.Business.PaymentClaimed()
			s.logger.InfoContext(ctx, "unverified payment claim recorded",
				"order_id", order.ID,
				"provider", proof.Provider)
		}
	case changed:
		telemetry.Business.PaymentVerified(proof.Provider, "paid")
		telemetry.Business.PaymentCollected(proof.Provider, order.TotalPaise)
		s.logger.InfoContext(ctx, "order paid",
			"order_id", order.ID,
			"provider", proof.Provider,
			"reference", proof.Reference,
			"amount_paise", amountPaise)
		s.publish(ctx, domain.SubjectOrderPaid, order)
	default:
		telemetry.Business.PaymentVerified(proof.Provider, "duplicate")
		s.logger.DebugContext(ctx, "order already paid",
			"order_id", order.ID,
			"provider", proof.Provider)
	}

	return order, nil
}

// ReconcileVerified implements PaymentService.
func (s *paymentService) ReconcileVerified(ctx context.Context, provider string, payment *billing.VerifiedPayment) (*domain.Order, error) {
	orderID, err := uuid.Parse(payment.Receipt)
	if err != nil {
		return nil, ErrUnknownPaymentLink.WithOp("payment.reconcile")
	}
	return s.MarkPaid(ctx, orderID, payment.AmountPaise, domain.PaymentProof{
		Provider:  provider,
		Reference: payment.PaymentID,
		Verified:  true,
	})
}

// ReconcileSettlement implements PaymentService.
func (s *paymentService) ReconcileSettlement(ctx context.Context, settlement domain.UPISettlement) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, settlement.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != domain.PaymentMethodUPI {
		return nil, ErrNotPrepaid.WithOp("payment.settlement")
	}
	return s.MarkPaid(ctx, settlement.OrderID, settlement.AmountPaise, domain.PaymentProof{
		Provider:  ProofUPILedger,
		Reference: settlement.Reference,
		Verified:  true,
	})
}

// rejected logs, counts and reports payment proofs that failed closed.
// Retryable gateway errors are only counted.
func (s *paymentService) rejected(ctx context.Context, provider string, orderID uuid.UUID, err error) {
	reason := domain.ErrorReason(err)
	if reason == "" {
		reason = domain.ErrorCode(err)
	}
	telemetry.Business.PaymentVerified(provider, reason)

	if !errors.Is(err, domain.ErrSignatureMismatch) && !errors.Is(err, domain.ErrAmountMismatch) &&
		!errors.Is(err, domain.ErrPaymentReused) {
		return
	}

	s.logger.WarnContext(ctx, "payment proof rejected",
		"order_id", orderID,
		"provider", provider,
		"reason", reason,
		"request_id", domain.RequestIDFromContext(ctx))
	telemetry.CaptureErrorWithOrder(err, orderID.String(), map[string]interface{}{
		"provider": provider,
		"reason":   reason,
	})
}

func (s *paymentService) publish(ctx context.Context, subject string, o *domain.Order) {
	if err := s.publisher.Publish(ctx, subject, domain.NewOrderEvent(o, s.now().UTC())); err != nil {
		s.logger.WarnContext(ctx, "failed to publish order event",
			"subject", subject,
			"order_id", o.ID,
			"error", err)
	}
}
