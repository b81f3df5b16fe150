package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/types"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/settlement"
	"stockflow/internal/domain/workflow"
)

// PaymentRequest allocates a payment. Parties are "warehouse:CODE" or
// "counterparty:CODE".
type PaymentRequest struct {
	Payer      string          `json:"payer" binding:"required"`
	Payee      string          `json:"payee" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" binding:"max=50"`
	DocumentID *string         `json:"documentId"`
}

// ToDomain converts the request.
func (r PaymentRequest) ToDomain() (settlement.PaymentRequest, error) {
	docID, err := parseOptionalID("documentId", r.DocumentID)
	if err != nil {
		return settlement.PaymentRequest{}, err
	}
	return settlement.PaymentRequest{
		Payer:      ledger.Party(r.Payer),
		Payee:      ledger.Party(r.Payee),
		Amount:     r.Amount,
		Method:     r.Method,
		DocumentID: docID,
	}, nil
}

// AllocationResponse is one portion of a payment.
type AllocationResponse struct {
	DebtEntryID      string          `json:"debtEntryId"`
	SourceDocumentID string          `json:"sourceDocumentId"`
	Amount           decimal.Decimal `json:"amount"`
}

// PaymentResponse represents a payment and its allocations.
type PaymentResponse struct {
	ID               string               `json:"id"`
	Payer            string               `json:"payer"`
	Payee            string               `json:"payee"`
	Amount           decimal.Decimal      `json:"amount"`
	Method           string               `json:"method,omitempty"`
	Unallocated      decimal.Decimal      `json:"unallocated"`
	SourceDocumentID *string              `json:"sourceDocumentId,omitempty"`
	PostedBy         string               `json:"postedBy"`
	PostedAt         time.Time            `json:"postedAt"`
	Allocations      []AllocationResponse `json:"allocations"`
}

// FromPayment maps a payment.
func FromPayment(p *ledger.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:          p.ID.String(),
		Payer:       string(p.Payer),
		Payee:       string(p.Payee),
		Amount:      p.Amount,
		Method:      p.Method,
		Unallocated: p.Unallocated,
		PostedBy:    p.PostedBy,
		PostedAt:    p.PostedAt,
		Allocations: make([]AllocationResponse, 0, len(p.Allocations)),
	}
	if p.SourceDocumentID != nil {
		s := p.SourceDocumentID.String()
		resp.SourceDocumentID = &s
	}
	for _, a := range p.Allocations {
		resp.Allocations = append(resp.Allocations, AllocationResponse{
			DebtEntryID:      a.DebtEntryID.String(),
			SourceDocumentID: a.SourceDocumentID.String(),
			Amount:           a.Amount,
		})
	}
	return resp
}

// DebtListQuery filters debt listings. status takes comma-separated values.
type DebtListQuery struct {
	Debtor   string `form:"debtor"`
	Creditor string `form:"creditor"`
	Status   string `form:"status"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ToFilter converts query parameters to a repository filter.
func (q DebtListQuery) ToFilter() ledger.DebtFilter {
	f := ledger.DebtFilter{Debtor: ledger.Party(q.Debtor), Creditor: ledger.Party(q.Creditor), Limit: q.Limit}
	for _, s := range splitList(q.Status) {
		f.Statuses = append(f.Statuses, ledger.DebtStatus(s))
	}
	return f
}

// DebtResponse represents a debt entry.
type DebtResponse struct {
	ID               string          `json:"id"`
	Debtor           string          `json:"debtor"`
	Creditor         string          `json:"creditor"`
	SourceDocumentID string          `json:"sourceDocumentId"`
	AmountDue        decimal.Decimal `json:"amountDue"`
	AmountPaid       decimal.Decimal `json:"amountPaid"`
	Remaining        decimal.Decimal `json:"remaining"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// FromDebts maps debt entries.
func FromDebts(entries []*ledger.DebtEntry) []DebtResponse {
	out := make([]DebtResponse, 0, len(entries))
	for _, d := range entries {
		out = append(out, DebtResponse{
			ID:               d.ID.String(),
			Debtor:           string(d.Debtor),
			Creditor:         string(d.Creditor),
			SourceDocumentID: d.SourceDocumentID.String(),
			AmountDue:        d.AmountDue,
			AmountPaid:       d.AmountPaid,
			Remaining:        d.Remaining(),
			Status:           string(d.Status),
			CreatedAt:        d.CreatedAt,
			UpdatedAt:        d.UpdatedAt,
		})
	}
	return out
}

// CorrectionResponse is one balance fixed by reconciliation.
type CorrectionResponse struct {
	Warehouse string         `json:"warehouse"`
	ItemKey   string         `json:"itemKey"`
	Before    types.Quantity `json:"before"`
	Expected  types.Quantity `json:"expected"`
	After     types.Quantity `json:"after"`
	Shortfall types.Quantity `json:"shortfall"`
}

// ReconcileResponse summarizes a reconciliation pass.
type ReconcileResponse struct {
	StartedAt        time.Time            `json:"startedAt"`
	FinishedAt       time.Time            `json:"finishedAt"`
	PendingDocuments int                  `json:"pendingDocuments"`
	BalancesChecked  int                  `json:"balancesChecked"`
	Corrections      []CorrectionResponse `json:"corrections"`
}

// FromReport maps a reconciliation report.
func FromReport(r workflow.Report) ReconcileResponse {
	resp := ReconcileResponse{
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		PendingDocuments: r.PendingDocuments,
		BalancesChecked:  r.BalancesChecked,
		Corrections:      make([]CorrectionResponse, 0, len(r.Corrections)),
	}
	for _, c := range r.Corrections {
		resp.Corrections = append(resp.Corrections, CorrectionResponse{
			Warehouse: c.Key.Warehouse,
			ItemKey:   c.Key.ItemKey,
			Before:    c.Before,
			Expected:  c.Expected,
			After:     c.After,
			Shortfall: c.Shortfall,
		})
	}
	return resp
}
