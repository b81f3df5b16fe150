package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"stockflow/internal/core/types"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/reservation"
)

func mustDecimal(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTransferPolicyMovements(t *testing.T) {
	doc := &document.Document{
		Type:            document.TypeTransferNote,
		SourceWarehouse: "A",
		DestWarehouse:   "B",
		Lines:           []document.LineItem{{ItemKey: "P", Quantity: types.Units(2), UnitPrice: mustDecimal("3")}},
	}
	p := DefaultPolicies()[document.TypeTransferNote]

	res := p.Reservations(doc)
	assert.Len(t, res, 1)
	assert.Equal(t, ledger.Key("A", "P"), res[0].Key)

	moves := p.Movements(doc)
	assert.Len(t, moves, 2)
	assert.Equal(t, reservation.Outbound, moves[0].Direction)
	assert.Equal(t, ledger.Key("B", "P"), moves[1].Key)
	assert.Equal(t, reservation.Inbound, moves[1].Direction)

	debt, ok := p.Debt(doc)
	assert.True(t, ok)
	assert.Equal(t, ledger.WarehouseParty("B"), debt.Debtor)
	assert.Equal(t, ledger.WarehouseParty("A"), debt.Creditor)
	assert.True(t, debt.Amount.Equal(mustDecimal("6")))
}

func TestZeroValueDocumentPostsNoDebt(t *testing.T) {
	doc := &document.Document{
		Type:            document.TypeSalesInvoice,
		SourceWarehouse: "A",
		Counterparty:    "C",
		Lines:           []document.LineItem{{ItemKey: "P", Quantity: types.Units(1), UnitPrice: decimal.Zero}},
	}
	_, ok := DefaultPolicies()[document.TypeSalesInvoice].Debt(doc)
	assert.False(t, ok)
}
