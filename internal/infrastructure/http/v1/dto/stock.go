package dto

import (
	"time"

	"stockflow/internal/core/types"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/reservation"
)

// --- Response DTOs for stock balances ---

// StockBalanceResponse represents stock balance in API responses.
type StockBalanceResponse struct {
	Warehouse string         `json:"warehouse"`
	ItemKey   string         `json:"itemKey"`
	OnHand    types.Quantity `json:"onHand"`
	Locked    types.Quantity `json:"locked"`
	Held      types.Quantity `json:"held"`
	Available types.Quantity `json:"available"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
}

// FromStockBalance converts a balance to its response. A row that was never
// written has a zero UpdatedAt, which is omitted.
func FromStockBalance(b ledger.StockBalance) StockBalanceResponse {
	var updated *time.Time
	if !b.UpdatedAt.IsZero() {
		val := b.UpdatedAt
		updated = &val
	}
	return StockBalanceResponse{
		Warehouse: b.Warehouse,
		ItemKey:   b.ItemKey,
		OnHand:    b.OnHand,
		Locked:    b.Locked,
		Held:      b.Held,
		Available: b.Available(),
		UpdatedAt: updated,
	}
}

// FromStockBalances converts a list of balances.
func FromStockBalances(rows []ledger.StockBalance) []StockBalanceResponse {
	out := make([]StockBalanceResponse, 0, len(rows))
	for _, b := range rows {
		out = append(out, FromStockBalance(b))
	}
	return out
}

// BalanceListQuery filters balance listings.
type BalanceListQuery struct {
	Warehouse   string `form:"warehouse"`
	ItemKey     string `form:"itemKey"`
	OnlyNonZero bool   `form:"nonZero"`
}

// ToFilter converts query parameters to a repository filter.
func (q BalanceListQuery) ToFilter() ledger.BalanceFilter {
	return ledger.BalanceFilter{Warehouse: q.Warehouse, ItemKey: q.ItemKey, OnlyNonZero: q.OnlyNonZero}
}

// --- Request DTOs ---

// HoldRequest places or releases a manual hold.
type HoldRequest struct {
	Warehouse string         `json:"warehouse" binding:"required,max=50"`
	ItemKey   string         `json:"itemKey" binding:"required,max=100"`
	Quantity  types.Quantity `json:"quantity"`
	Reason    string         `json:"reason" binding:"max=1000"`
}

// ToDomain converts the request.
func (r HoldRequest) ToDomain() reservation.HoldRequest {
	return reservation.HoldRequest{
		Warehouse: r.Warehouse,
		ItemKey:   r.ItemKey,
		Quantity:  r.Quantity,
		Reason:    r.Reason,
	}
}
