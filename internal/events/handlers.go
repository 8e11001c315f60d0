package events

import (
	"context"
	"encoding/json"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/handler"
)

// FulfillmentApplier advances orders from fulfillment updates.
type FulfillmentApplier interface {
	ApplyFulfillmentUpdate(ctx context.Context, update domain.FulfillmentUpdate) (*domain.Order, error)
}

// SettlementReconciler applies UPI ledger confirmations.
type SettlementReconciler interface {
	ReconcileSettlement(ctx context.Context, settlement domain.UPISettlement) (*domain.Order, error)
}

// FulfillmentHandler handles domain.SubjectFulfillmentUpdates.
func FulfillmentHandler(orders FulfillmentApplier) MessageHandler {
	return func(ctx context.Context, data []byte) error {
		const op = "events.fulfillment"

		var update domain.FulfillmentUpdate
		if err := decode(op, data, &update); err != nil {
			return err
		}
		_, err := orders.ApplyFulfillmentUpdate(ctx, update)
		return err
	}
}

// SettlementHandler handles domain.SubjectUPISettled.
func SettlementHandler(payments SettlementReconciler) MessageHandler {
	return func(ctx context.Context, data []byte) error {
		const op = "events.upi_settlement"

		var settlement domain.UPISettlement
		if err := decode(op, data, &settlement); err != nil {
			return err
		}
		_, err := payments.ReconcileSettlement(ctx, settlement)
		return err
	}
}

func decode(op string, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return domain.Errorf(domain.EINVALID, op, "Malformed message: %v", err)
	}
	return handler.ValidateStruct(op, dst)
}
