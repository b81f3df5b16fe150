// Package reservation computes and applies stock deltas. The arithmetic is
// pure; Batch adds the row locking around it.
package reservation

import (
	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/ledger"
)

// Direction of a physical stock movement.
type Direction int

const (
	Inbound Direction = iota + 1
	Outbound
)

// Reserve moves qty from available to locked.
func Reserve(b *ledger.StockBalance, qty types.Quantity) error {
	if !qty.IsPositive() {
		return apperror.NewValidation("reserve quantity must be positive").
			WithDetail(apperror.DetailWarehouse, b.Warehouse).
			WithDetail(apperror.DetailItemKey, b.ItemKey)
	}
	if b.Available() < qty {
		return apperror.NewInsufficientStock(b.Warehouse, b.ItemKey, qty.String(), b.Available().String())
	}
	b.Locked += qty
	return nil
}

// Release returns qty from locked to available. It clamps at zero so a
// retried release can never drive locked negative.
func Release(b *ledger.StockBalance, qty types.Quantity) {
	b.Locked = types.MaxQuantity(0, b.Locked-qty)
}

// CommitPhysical changes on_hand. An outbound commit that would leave on_hand
// negative or below what is still promised fails with NEGATIVE_STOCK.
func CommitPhysical(b *ledger.StockBalance, qty types.Quantity, dir Direction) error {
	next := b.OnHand + qty
	delta := qty
	if dir == Outbound {
		next = b.OnHand - qty
		delta = -qty
	}
	if next < 0 || next < b.Locked+b.Held {
		return apperror.NewNegativeStock(b.Warehouse, b.ItemKey, b.OnHand.String(), delta.String())
	}
	b.OnHand = next
	return nil
}

// Hold places a manual hold on available stock.
func Hold(b *ledger.StockBalance, qty types.Quantity) error {
	if !qty.IsPositive() {
		return apperror.NewValidation("hold quantity must be positive")
	}
	if b.Available() < qty {
		return apperror.NewInsufficientStock(b.Warehouse, b.ItemKey, qty.String(), b.Available().String())
	}
	b.Held += qty
	return nil
}

// Unhold releases a manual hold, clamped at zero.
func Unhold(b *ledger.StockBalance, qty types.Quantity) {
	b.Held = types.MaxQuantity(0, b.Held-qty)
}
