package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/handler"
	"github.com/dukerupert/hoversale/internal/middleware"
	"github.com/dukerupert/hoversale/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles the UPI and hosted checkout endpoints.
type PaymentHandler struct {
	payments service.PaymentService
	logger   *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments service.PaymentService, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{
		payments: payments,
		logger:   logger,
	}
}

// amountPaise converts a rupee amount from a request body.
func amountPaise(op string, amount decimal.Decimal) (int64, error) {
	paise, err := domain.RupeesToPaise(amount)
	if errors.Is(err, domain.ErrAmountOutOfRange) {
		return 0, err
	}
	if err != nil {
		return 0, domain.NewValidationError(op, "amount", "must have at most two decimal places")
	}
	return paise, nil
}

type upiIntentRequest struct {
	// PayeeName is accepted for compatibility; the payee is fixed server-side.
	PayeeName string          `json:"payeeName" validate:"max=100"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note" validate:"max=80"`
	QR        bool            `json:"qr"`
}

// UPIIntent handles POST /payments/upi-intent
func (h *PaymentHandler) UPIIntent(w http.ResponseWriter, r *http.Request) {
	const op = "payment.upi_intent"

	var req upiIntentRequest
	if err := handler.DecodeJSON(r, op, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	paise, err := amountPaise(op, req.Amount)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	intent, err := h.payments.CreateUPIIntent(r.Context(), service.UPIIntentParams{
		AmountPaise: paise,
		Note:        req.Note,
		WithQR:      req.QR,
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, intent)
}

type upiClaimRequest struct {
	UserID  string    `json:"userId" validate:"max=128"`
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

// UPIClaim handles POST /payments/upi-claim
//
// The payer says they completed the UPI transfer. This is recorded but the
// order stays Unpaid until the merchant ledger confirms the settlement.
func (h *PaymentHandler) UPIClaim(w http.ResponseWriter, r *http.Request) {
	const op = "payment.upi_claim"

	var req upiClaimRequest
	if err := handler.DecodeJSON(r, op, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	userID, err := callerID(r, op, req.UserID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.payments.ClaimUPIPayment(r.Context(), userID, req.OrderID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusAccepted, map[string]any{
		"orderId":       order.ID,
		"paymentStatus": order.PaymentStatus,
		"verified":      order.PaymentVerified,
	})
}

// ProviderKey handles GET /payments/provider-key
func (h *PaymentHandler) ProviderKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.payments.ProviderKey(r.Context())
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]string{"publicKey": key})
}

type providerOrderRequest struct {
	UserID  string           `json:"userId" validate:"max=128"`
	OrderID *uuid.UUID       `json:"orderId"`
	Amount  *decimal.Decimal `json:"amount"`
}

type providerOrderResponse struct {
	RemoteOrderID string `json:"remoteOrderId"`

	// Amount is in paise, the unit checkout widgets take.
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Receipt      string `json:"receipt,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// ProviderOrder handles POST /payments/provider-order
//
// With an orderId the amount is taken from the stored order; a bare
// amount creates an unattached remote order.
func (h *PaymentHandler) ProviderOrder(w http.ResponseWriter, r *http.Request) {
	const op = "payment.provider_order"

	var req providerOrderRequest
	if err := handler.DecodeJSON(r, op, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if req.OrderID == nil && req.Amount == nil {
		handler.ErrorResponse(w, r, domain.NewValidationError(op, "amount", "is required when no orderId is given"))
		return
	}
	userID, err := callerID(r, op, req.UserID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	params := service.ProviderOrderParams{UserID: userID, OrderID: req.OrderID}
	if req.Amount != nil {
		if params.AmountPaise, err = amountPaise(op, *req.Amount); err != nil {
			handler.ErrorResponse(w, r, err)
			return
		}
		if params.AmountPaise <= 0 {
			handler.ErrorResponse(w, r, domain.ErrInvalidAmount.WithOp(op))
			return
		}
	}

	remote, err := h.payments.CreateProviderOrder(r.Context(), params)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, providerOrderResponse{
		RemoteOrderID: remote.ID,
		Amount:        remote.AmountPaise,
		Currency:      remote.Currency,
		Receipt:       remote.Receipt,
		ClientSecret:  remote.ClientSecret,
	})
}

type verifyRequest struct {
	UserID          string          `json:"userId" validate:"max=128"`
	RemoteOrderID   string          `json:"remoteOrderId" validate:"required,max=100"`
	RemotePaymentID string          `json:"remotePaymentId" validate:"required,max=100"`
	Signature       string          `json:"signature" validate:"max=256"`
	LocalOrderID    uuid.UUID       `json:"localOrderId" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
}

// Verify handles POST /payments/verify
//
// Every failure carries "verified": false next to the error so checkout
// pages can branch on one field.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	const op = "payment.verify"
	unverified := map[string]any{"verified": false}

	var req verifyRequest
	if err := handler.DecodeJSON(r, op, &req); err != nil {
		handler.ErrorResponseWith(w, r, err, unverified)
		return
	}

	// The signature authenticates the payment; a caller id only narrows
	// which orders it may settle.
	userID := domain.UserIDFromContext(r.Context())
	if req.UserID != "" {
		var err error
		if userID, err = callerID(r, op, req.UserID); err != nil {
			handler.ErrorResponseWith(w, r, err, unverified)
			return
		}
	}

	paise, err := amountPaise(op, req.Amount)
	if err != nil {
		handler.ErrorResponseWith(w, r, err, unverified)
		return
	}

	order, err := h.payments.VerifyPayment(r.Context(), service.VerifyPaymentParams{
		UserID:        userID,
		OrderID:       req.LocalOrderID,
		RemoteOrderID: req.RemoteOrderID,
		PaymentID:     req.RemotePaymentID,
		Signature:     req.Signature,
		AmountPaise:   paise,
	})
	if err != nil {
		handler.ErrorResponseWith(w, r, err, unverified)
		return
	}

	middleware.GetLogger(r.Context(), h.logger).Info("payment verified",
		"order_id", order.ID,
		"remote_order_id", req.RemoteOrderID)
	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"verified":      true,
		"orderId":       order.ID,
		"paymentStatus": order.PaymentStatus,
	})
}
