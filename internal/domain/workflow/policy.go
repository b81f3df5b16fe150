package workflow

import (
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/reservation"
	"stockflow/internal/domain/settlement"
)

// Move is a quantity attached to the line that caused it.
type Move struct {
	LineID    id.ID
	Key       ledger.BalanceKey
	Quantity  types.Quantity
	Direction reservation.Direction
}

// Policy holds the per-type effects. The state machine itself is shared.
type Policy interface {
	// Reservations are locked on submit and released on approve, reject and cancel.
	Reservations(doc *document.Document) []Move

	// Movements change on_hand when the document is approved.
	Movements(doc *document.Document) []Move

	// Debt to post on approval, if any.
	Debt(doc *document.Document) (settlement.Posting, bool)

	// Payment to allocate on approval, if any.
	Payment(doc *document.Document) (settlement.PaymentRequest, bool)
}

// DefaultPolicies returns the policy of every document type.
func DefaultPolicies() map[document.Type]Policy {
	return map[document.Type]Policy{
		document.TypePurchaseOrder: purchasePolicy{},
		document.TypeSalesInvoice:  salesPolicy{},
		document.TypeTransferNote:  transferPolicy{},
		document.TypeCashVoucher:   cashPolicy{},
	}
}

func linesAt(doc *document.Document, warehouse string, dir reservation.Direction) []Move {
	moves := make([]Move, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		moves = append(moves, Move{
			LineID:    l.LineID,
			Key:       ledger.Key(warehouse, l.ItemKey),
			Quantity:  l.Quantity,
			Direction: dir,
		})
	}
	return moves
}

func debtFor(doc *document.Document, debtor, creditor ledger.Party) (settlement.Posting, bool) {
	total := doc.Total()
	if !total.IsPositive() {
		return settlement.Posting{}, false
	}
	return settlement.Posting{
		Debtor:           debtor,
		Creditor:         creditor,
		SourceDocumentID: doc.ID,
		Amount:           total,
	}, true
}

// purchasePolicy receives goods from a supplier into the destination warehouse.
type purchasePolicy struct{}

func (purchasePolicy) Reservations(*document.Document) []Move { return nil }

func (purchasePolicy) Movements(doc *document.Document) []Move {
	return linesAt(doc, doc.DestWarehouse, reservation.Inbound)
}

func (purchasePolicy) Debt(doc *document.Document) (settlement.Posting, bool) {
	return debtFor(doc, ledger.WarehouseParty(doc.DestWarehouse), ledger.CounterpartyParty(doc.Counterparty))
}

func (purchasePolicy) Payment(*document.Document) (settlement.PaymentRequest, bool) {
	return settlement.PaymentRequest{}, false
}

// salesPolicy ships goods from the source warehouse to a customer.
type salesPolicy struct{}

func (salesPolicy) Reservations(doc *document.Document) []Move {
	return linesAt(doc, doc.SourceWarehouse, reservation.Outbound)
}

func (salesPolicy) Movements(doc *document.Document) []Move {
	return linesAt(doc, doc.SourceWarehouse, reservation.Outbound)
}

func (salesPolicy) Debt(doc *document.Document) (settlement.Posting, bool) {
	return debtFor(doc, ledger.CounterpartyParty(doc.Counterparty), ledger.WarehouseParty(doc.SourceWarehouse))
}

func (salesPolicy) Payment(*document.Document) (settlement.PaymentRequest, bool) {
	return settlement.PaymentRequest{}, false
}

// transferPolicy moves goods between warehouses; the receiver owes the sender.
type transferPolicy struct{}

func (transferPolicy) Reservations(doc *document.Document) []Move {
	return linesAt(doc, doc.SourceWarehouse, reservation.Outbound)
}

func (transferPolicy) Movements(doc *document.Document) []Move {
	return append(
		linesAt(doc, doc.SourceWarehouse, reservation.Outbound),
		linesAt(doc, doc.DestWarehouse, reservation.Inbound)...,
	)
}

func (transferPolicy) Debt(doc *document.Document) (settlement.Posting, bool) {
	return debtFor(doc, ledger.WarehouseParty(doc.DestWarehouse), ledger.WarehouseParty(doc.SourceWarehouse))
}

func (transferPolicy) Payment(*document.Document) (settlement.PaymentRequest, bool) {
	return settlement.PaymentRequest{}, false
}

// cashPolicy records money through the source warehouse's cashbox.
type cashPolicy struct{}

func (cashPolicy) Reservations(*document.Document) []Move { return nil }

func (cashPolicy) Movements(*document.Document) []Move { return nil }

func (cashPolicy) Debt(*document.Document) (settlement.Posting, bool) {
	return settlement.Posting{}, false
}

func (cashPolicy) Payment(doc *document.Document) (settlement.PaymentRequest, bool) {
	total := doc.Total()
	if !total.IsPositive() {
		return settlement.PaymentRequest{}, false
	}

	cashbox := ledger.WarehouseParty(doc.SourceWarehouse)
	other := ledger.CounterpartyParty(doc.Counterparty)
	if doc.Counterparty == "" {
		other = ledger.WarehouseParty(doc.DestWarehouse)
	}

	source := doc.ID
	req := settlement.PaymentRequest{
		Payer:            other,
		Payee:            cashbox,
		Amount:           total,
		Method:           doc.PaymentMethod,
		DocumentID:       doc.SettlesDocumentID,
		SourceDocumentID: &source,
	}
	if doc.Direction == document.DirectionDisbursement {
		req.Payer, req.Payee = cashbox, other
	}
	return req, true
}
