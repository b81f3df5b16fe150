package workflow_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/numerator"
	"stockflow/internal/core/security"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/settlement"
	"stockflow/internal/domain/workflow"
	"stockflow/internal/infrastructure/storage/memory"
)

var (
	clerk    = security.Actor{ID: "clerk-1", Roles: []string{security.RoleClerk}}
	clerk2   = security.Actor{ID: "clerk-2", Roles: []string{security.RoleClerk}}
	approver = security.Actor{ID: "approver-1", Roles: []string{security.RoleApprover}}
	cashier  = security.Actor{ID: "cashier-1", Roles: []string{security.RoleCashier}}
	manager  = security.Actor{ID: "manager-1", Roles: []string{security.RoleManager}}
	admin    = security.Actor{ID: "admin-1", Roles: []string{security.RoleAdmin}}
)

type harness struct {
	ctx        context.Context
	store      *memory.Store
	documents  *document.Service
	engine     *workflow.Engine
	settlement *settlement.Service
	ledger     *ledger.Service
	reconciler *workflow.Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.Catalog().AddWarehouses(ctx, "W1", "W2", "W3"))
	require.NoError(t, store.Catalog().AddItems(ctx, document.KindPart, "P-1", "P-2"))
	require.NoError(t, store.Catalog().AddItems(ctx, document.KindVehicle, "VIN-1", "VIN-2"))

	authz, err := security.NewCELAuthorizer(security.DefaultRules)
	require.NoError(t, err)

	settle := settlement.NewService(store, store.Debts(), store.Payments(), authz, store.Outbox())
	return &harness{
		ctx:   ctx,
		store: store,
		documents: document.NewService(
			store.Documents(), store, store.Catalog(),
			numerator.NewGenerator(store.Sequences()), authz,
		),
		engine: workflow.NewEngine(
			store, store.Documents(), store.Balances(), settle, authz,
			store.History(), store.Outbox(), workflow.DefaultConfig(),
		),
		settlement: settle,
		ledger:     ledger.NewService(store.Balances(), store.Debts(), store.Payments()),
		reconciler: workflow.NewReconciler(store, store.Documents(), store.Balances(), authz, store.Outbox()),
	}
}

// stock sets on_hand directly, bypassing the workflow.
func (h *harness) stock(t *testing.T, warehouse, item string, units int64) {
	t.Helper()
	b, err := h.store.Balances().Get(h.ctx, ledger.Key(warehouse, item))
	require.NoError(t, err)
	b.OnHand = types.Units(units)
	_, err = h.store.Balances().Save(h.ctx, b)
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, warehouse, item string) ledger.StockBalance {
	t.Helper()
	b, err := h.ledger.GetBalance(h.ctx, ledger.Key(warehouse, item))
	require.NoError(t, err)
	return b
}

func (h *harness) draft(t *testing.T, header document.Header, lines ...document.LineInput) *document.Document {
	t.Helper()
	doc, err := h.documents.CreateDraft(h.ctx, clerk, header, lines...)
	require.NoError(t, err)
	return doc
}

func transfer(from, to string) document.Header {
	return document.Header{Type: document.TypeTransferNote, SourceWarehouse: from, DestWarehouse: to}
}

func sale(from, customer string) document.Header {
	return document.Header{Type: document.TypeSalesInvoice, SourceWarehouse: from, Counterparty: customer}
}

func part(item string, units int64, price string) document.LineInput {
	return document.LineInput{
		ItemKey:   item,
		ItemKind:  document.KindPart,
		Quantity:  types.Units(units),
		UnitPrice: decimal.RequireFromString(price),
	}
}

func vehicle(vin, price string) document.LineInput {
	return document.LineInput{ItemKey: vin, ItemKind: document.KindVehicle, UnitPrice: decimal.RequireFromString(price)}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func allowAll() security.Authorizer { return security.AllowAll }
