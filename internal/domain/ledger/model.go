// Package ledger holds the durable balances the engine keeps consistent:
// stock per (warehouse, item), debts between parties and immutable payments.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// BalanceKey identifies one stock balance row.
type BalanceKey struct {
	Warehouse string `json:"warehouse"`
	ItemKey   string `json:"item_key"`
}

// Key builds a BalanceKey.
func Key(warehouse, itemKey string) BalanceKey {
	return BalanceKey{Warehouse: warehouse, ItemKey: itemKey}
}

func (k BalanceKey) String() string { return k.Warehouse + "/" + k.ItemKey }

// Less orders keys by warehouse then item. Row locks are always taken in this order.
func (k BalanceKey) Less(other BalanceKey) bool {
	if k.Warehouse != other.Warehouse {
		return k.Warehouse < other.Warehouse
	}
	return k.ItemKey < other.ItemKey
}

// StockBalance tracks physical stock and the quantities promised away.
// Locked belongs to the workflow, Held to manual holds.
type StockBalance struct {
	Warehouse string         `db:"warehouse_code" json:"warehouse"`
	ItemKey   string         `db:"item_key" json:"item_key"`
	OnHand    types.Quantity `db:"on_hand" json:"on_hand"`
	Locked    types.Quantity `db:"locked" json:"locked"`
	Held      types.Quantity `db:"held" json:"held"`
	Version   int            `db:"version" json:"version"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Key returns the balance key.
func (b StockBalance) Key() BalanceKey { return Key(b.Warehouse, b.ItemKey) }

// Available is what a new reservation may take.
func (b StockBalance) Available() types.Quantity {
	return b.OnHand - b.Locked - b.Held
}

// CheckInvariant reports a broken balance: negative counters or more promised than on hand.
func (b StockBalance) CheckInvariant() error {
	if b.OnHand < 0 || b.Locked < 0 || b.Held < 0 || b.Locked+b.Held > b.OnHand {
		return fmt.Errorf("balance %s violates invariant: on_hand=%s locked=%s held=%s",
			b.Key(), b.OnHand, b.Locked, b.Held)
	}
	return nil
}

// Party is a debtor or creditor: "warehouse:<code>" or "counterparty:<code>".
type Party string

const (
	partyWarehouse    = "warehouse"
	partyCounterparty = "counterparty"
)

// WarehouseParty returns the party for a warehouse code.
func WarehouseParty(code string) Party { return Party(partyWarehouse + ":" + code) }

// CounterpartyParty returns the party for a counterparty code.
func CounterpartyParty(code string) Party { return Party(partyCounterparty + ":" + code) }

// Split returns the kind and code of the party.
func (p Party) Split() (kind, code string) {
	kind, code, _ = strings.Cut(string(p), ":")
	return kind, code
}

// Validate checks the party format.
func (p Party) Validate() error {
	kind, code := p.Split()
	if (kind != partyWarehouse && kind != partyCounterparty) || strings.TrimSpace(code) == "" {
		return apperror.NewValidation("party must be warehouse:<code> or counterparty:<code>").
			WithDetail("party", string(p))
	}
	return nil
}

// DebtStatus of an entry.
type DebtStatus string

const (
	DebtOpen    DebtStatus = "OPEN"
	DebtPartial DebtStatus = "PARTIAL"
	DebtSettled DebtStatus = "SETTLED"
)

// DebtEntry is what debtor owes creditor for one source document.
type DebtEntry struct {
	ID               id.ID           `db:"id" json:"id"`
	Debtor           Party           `db:"debtor" json:"debtor"`
	Creditor         Party           `db:"creditor" json:"creditor"`
	SourceDocumentID id.ID           `db:"source_document_id" json:"source_document_id"`
	AmountDue        decimal.Decimal `db:"amount_due" json:"amount_due"`
	AmountPaid       decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	Status           DebtStatus      `db:"status" json:"status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	Version          int             `db:"version" json:"version"`
}

// Remaining is the unpaid part of the entry.
func (d DebtEntry) Remaining() decimal.Decimal {
	return d.AmountDue.Sub(d.AmountPaid)
}

// ApplyPayment adds amount to AmountPaid and recomputes the status.
// amount must not exceed Remaining.
func (d *DebtEntry) ApplyPayment(amount decimal.Decimal, at time.Time) error {
	if amount.IsNegative() || amount.GreaterThan(d.Remaining()) {
		return apperror.NewOverpayment(d.ID, d.Remaining().String(), amount.String())
	}
	d.AmountPaid = d.AmountPaid.Add(amount)
	d.Status = StatusFor(d.AmountDue, d.AmountPaid)
	d.UpdatedAt = at
	return nil
}

// StatusFor derives the status from the amounts.
func StatusFor(due, paid decimal.Decimal) DebtStatus {
	switch {
	case paid.IsZero():
		return DebtOpen
	case paid.LessThan(due):
		return DebtPartial
	default:
		return DebtSettled
	}
}

// Allocation is the part of a payment applied to one debt entry.
type Allocation struct {
	DebtEntryID      id.ID           `db:"debt_entry_id" json:"debt_entry_id"`
	SourceDocumentID id.ID           `db:"source_document_id" json:"source_document_id"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
}

// Payment is immutable once recorded.
type Payment struct {
	ID               id.ID           `db:"id" json:"id"`
	Payer            Party           `db:"payer" json:"payer"`
	Payee            Party           `db:"payee" json:"payee"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Method           string          `db:"method" json:"method"`
	Unallocated      decimal.Decimal `db:"unallocated_amount" json:"unallocated_amount"`
	SourceDocumentID *id.ID          `db:"source_document_id" json:"source_document_id,omitempty"`
	PostedBy         string          `db:"posted_by" json:"posted_by"`
	PostedAt         time.Time       `db:"posted_at" json:"posted_at"`
	Allocations      []Allocation    `db:"-" json:"allocations"`
}
