package reservation

import (
	"context"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/security"
	"stockflow/internal/core/tx"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/ledger"
	"stockflow/pkg/logger"
)

// HoldRequest places or releases a manual hold on one item.
type HoldRequest struct {
	Warehouse string
	ItemKey   string
	Quantity  types.Quantity
	Reason    string
}

// HoldService manages manual holds. Holds live in their own counter so the
// reconciliation sweep, which rebuilds workflow locks, leaves them alone.
type HoldService struct {
	txm      tx.Manager
	balances ledger.BalanceRepository
	authz    security.Authorizer
	now      func() time.Time
}

// NewHoldService creates a hold service.
func NewHoldService(txm tx.Manager, balances ledger.BalanceRepository, authz security.Authorizer) *HoldService {
	return &HoldService{txm: txm, balances: balances, authz: authz, now: time.Now}
}

// Place holds stock so it cannot be reserved by documents.
func (s *HoldService) Place(ctx context.Context, actor security.Actor, req HoldRequest) (ledger.StockBalance, error) {
	return s.apply(ctx, actor, req, func(b *Batch, key ledger.BalanceKey) error {
		return b.Hold(key, req.Quantity)
	})
}

// Release drops a manual hold.
func (s *HoldService) Release(ctx context.Context, actor security.Actor, req HoldRequest) (ledger.StockBalance, error) {
	return s.apply(ctx, actor, req, func(b *Batch, key ledger.BalanceKey) error {
		return b.Unhold(key, req.Quantity)
	})
}

func (s *HoldService) apply(
	ctx context.Context,
	actor security.Actor,
	req HoldRequest,
	op func(b *Batch, key ledger.BalanceKey) error,
) (ledger.StockBalance, error) {
	if req.Warehouse == "" || req.ItemKey == "" {
		return ledger.StockBalance{}, apperror.NewValidation("warehouse and item_key are required")
	}
	if !req.Quantity.IsPositive() {
		return ledger.StockBalance{}, apperror.NewValidation("quantity must be positive")
	}
	key := ledger.Key(req.Warehouse, req.ItemKey)
	if err := security.Require(ctx, s.authz, actor, security.ActionStockHold, security.Resource{
		Kind: "stock", ID: key.String(),
		Attributes: map[string]any{"warehouse": req.Warehouse, "item_key": req.ItemKey},
	}); err != nil {
		return ledger.StockBalance{}, err
	}

	var result ledger.StockBalance
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		batch := NewBatch(s.balances)
		if err := batch.Load(ctx, key); err != nil {
			return err
		}
		if err := op(batch, key); err != nil {
			return err
		}
		saved, err := batch.Flush(ctx, s.now())
		if err != nil {
			return err
		}
		result = saved[0]
		return nil
	})
	if err != nil {
		return ledger.StockBalance{}, err
	}

	logger.Info(ctx, "manual hold changed",
		"warehouse", req.Warehouse, "item_key", req.ItemKey,
		"quantity", req.Quantity.String(), "held", result.Held.String(), "reason", req.Reason)
	return result, nil
}
