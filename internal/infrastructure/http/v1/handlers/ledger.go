package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockflow/internal/core/security"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/reservation"
	"stockflow/internal/domain/settlement"
	"stockflow/internal/domain/workflow"
	"stockflow/internal/infrastructure/http/v1/dto"
)

// LedgerHandler serves stock balances, holds, debts, payments and reconciliation.
type LedgerHandler struct {
	*BaseHandler
	ledger     *ledger.Service
	settlement *settlement.Service
	holds      *reservation.HoldService
	reconciler *workflow.Reconciler
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(
	base *BaseHandler,
	ledgerSvc *ledger.Service,
	settle *settlement.Service,
	holds *reservation.HoldService,
	reconciler *workflow.Reconciler,
) *LedgerHandler {
	return &LedgerHandler{
		BaseHandler: base,
		ledger:      ledgerSvc,
		settlement:  settle,
		holds:       holds,
		reconciler:  reconciler,
	}
}

// ListBalances handles GET /stock/balances.
func (h *LedgerHandler) ListBalances(c *gin.Context) {
	var q dto.BalanceListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	rows, err := h.ledger.ListBalances(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromStockBalances(rows), len(rows), 0))
}

// GetBalance handles GET /stock/balances/:warehouse/:item.
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	b, err := h.ledger.GetBalance(c.Request.Context(), ledger.Key(c.Param("warehouse"), c.Param("item")))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromStockBalance(b))
}

// PlaceHold handles POST /stock/holds.
func (h *LedgerHandler) PlaceHold(c *gin.Context) {
	h.hold(c, h.holds.Place)
}

// ReleaseHold handles POST /stock/holds/release.
func (h *LedgerHandler) ReleaseHold(c *gin.Context) {
	h.hold(c, h.holds.Release)
}

func (h *LedgerHandler) hold(c *gin.Context, op func(ctx context.Context, actor security.Actor, req reservation.HoldRequest) (ledger.StockBalance, error)) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.HoldRequest
	if !h.BindJSON(c, &req) {
		return
	}
	b, err := op(c.Request.Context(), actor, req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromStockBalance(b))
}

// AllocatePayment handles POST /payments.
func (h *LedgerHandler) AllocatePayment(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	payReq, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}

	payment, err := h.settlement.AllocatePayment(c.Request.Context(), actor, payReq)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromPayment(payment))
}

// GetPayment handles GET /payments/:id.
func (h *LedgerHandler) GetPayment(c *gin.Context) {
	paymentID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	payment, err := h.ledger.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromPayment(payment))
}

// ListDebts handles GET /debts.
func (h *LedgerHandler) ListDebts(c *gin.Context) {
	var q dto.DebtListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := q.ToFilter()
	entries, err := h.ledger.ListDebts(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromDebts(entries), filter.Limit, 0))
}

// Reconcile handles POST /admin/reconcile.
func (h *LedgerHandler) Reconcile(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	report, err := h.reconciler.RunAs(c.Request.Context(), actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReport(report))
}
