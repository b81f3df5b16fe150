package dto

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/types"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/document"
)

// --- Requests ---

// LineRequest is one document line.
type LineRequest struct {
	ItemKey   string          `json:"itemKey" binding:"required,max=100"`
	ItemKind  string          `json:"itemKind" binding:"omitempty,oneof=VEHICLE PART CASH"`
	Quantity  types.Quantity  `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// ToInput converts the request into a domain line input.
func (r LineRequest) ToInput() document.LineInput {
	return document.LineInput{
		ItemKey:   r.ItemKey,
		ItemKind:  document.ItemKind(r.ItemKind),
		Quantity:  r.Quantity,
		UnitPrice: r.UnitPrice,
	}
}

// CreateDocumentRequest creates a draft.
type CreateDocumentRequest struct {
	Type              string        `json:"type" binding:"required,oneof=PURCHASE_ORDER SALES_INVOICE TRANSFER_NOTE CASH_VOUCHER"`
	SourceWarehouse   string        `json:"sourceWarehouse" binding:"max=50"`
	DestWarehouse     string        `json:"destWarehouse" binding:"max=50"`
	Counterparty      string        `json:"counterparty" binding:"max=100"`
	Comment           string        `json:"comment" binding:"max=1000"`
	Direction         string        `json:"direction" binding:"omitempty,oneof=RECEIPT DISBURSEMENT"`
	PaymentMethod     string        `json:"paymentMethod" binding:"max=50"`
	SettlesDocumentID *string       `json:"settlesDocumentId"`
	Lines             []LineRequest `json:"lines" binding:"dive"`
}

// ToHeader converts the request into a header and line inputs.
func (r CreateDocumentRequest) ToHeader() (document.Header, []document.LineInput, error) {
	settles, err := parseOptionalID("settlesDocumentId", r.SettlesDocumentID)
	if err != nil {
		return document.Header{}, nil, err
	}
	h := document.Header{
		Type:              document.Type(r.Type),
		SourceWarehouse:   r.SourceWarehouse,
		DestWarehouse:     r.DestWarehouse,
		Counterparty:      r.Counterparty,
		Comment:           r.Comment,
		Direction:         document.Direction(r.Direction),
		PaymentMethod:     r.PaymentMethod,
		SettlesDocumentID: settles,
	}
	lines := make([]document.LineInput, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, l.ToInput())
	}
	return h, lines, nil
}

// DocumentListQuery filters document listings. type and state take
// comma-separated values.
type DocumentListQuery struct {
	PageQuery
	Type      string `form:"type"`
	State     string `form:"state"`
	Warehouse string `form:"warehouse"`
}

// ToFilter converts query parameters to a repository filter.
func (q DocumentListQuery) ToFilter() document.Filter {
	limit, offset := q.Normalized()
	f := document.Filter{Warehouse: q.Warehouse, Limit: limit, Offset: offset}
	for _, t := range splitList(q.Type) {
		f.Types = append(f.Types, document.Type(t))
	}
	for _, s := range splitList(q.State) {
		f.States = append(f.States, document.State(s))
	}
	return f
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(strings.ToUpper(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// --- Responses ---

// LineResponse represents a document line.
type LineResponse struct {
	LineID    string          `json:"lineId"`
	LineNo    int             `json:"lineNo"`
	ItemKey   string          `json:"itemKey"`
	ItemKind  string          `json:"itemKind"`
	Quantity  types.Quantity  `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Amount    decimal.Decimal `json:"amount"`
}

// DocumentResponse represents a document with its lines.
type DocumentResponse struct {
	ID                string          `json:"id"`
	Number            string          `json:"number"`
	Type              string          `json:"type"`
	State             string          `json:"state"`
	SourceWarehouse   string          `json:"sourceWarehouse,omitempty"`
	DestWarehouse     string          `json:"destWarehouse,omitempty"`
	Counterparty      string          `json:"counterparty,omitempty"`
	Comment           string          `json:"comment,omitempty"`
	Direction         string          `json:"direction,omitempty"`
	PaymentMethod     string          `json:"paymentMethod,omitempty"`
	SettlesDocumentID *string         `json:"settlesDocumentId,omitempty"`
	CreatedBy         string          `json:"createdBy"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	SubmittedBy       string          `json:"submittedBy,omitempty"`
	SubmittedAt       *time.Time      `json:"submittedAt,omitempty"`
	ApprovedBy        string          `json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time      `json:"approvedAt,omitempty"`
	RejectionReason   string          `json:"rejectionReason,omitempty"`
	CancelReason      string          `json:"cancelReason,omitempty"`
	Version           int             `json:"version"`
	Total             decimal.Decimal `json:"total"`
	Lines             []LineResponse  `json:"lines"`
}

// FromDocument maps a domain document to its response.
func FromDocument(d *document.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:              d.ID.String(),
		Number:          d.Number,
		Type:            string(d.Type),
		State:           string(d.State),
		SourceWarehouse: d.SourceWarehouse,
		DestWarehouse:   d.DestWarehouse,
		Counterparty:    d.Counterparty,
		Comment:         d.Comment,
		Direction:       string(d.Direction),
		PaymentMethod:   d.PaymentMethod,
		CreatedBy:       d.CreatedBy,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		SubmittedBy:     d.SubmittedBy,
		SubmittedAt:     d.SubmittedAt,
		ApprovedBy:      d.ApprovedBy,
		ApprovedAt:      d.ApprovedAt,
		RejectionReason: d.RejectionReason,
		CancelReason:    d.CancelReason,
		Version:         d.Version,
		Total:           d.Total(),
		Lines:           make([]LineResponse, 0, len(d.Lines)),
	}
	if d.SettlesDocumentID != nil {
		s := d.SettlesDocumentID.String()
		resp.SettlesDocumentID = &s
	}
	for _, l := range d.Lines {
		resp.Lines = append(resp.Lines, LineResponse{
			LineID:    l.LineID.String(),
			LineNo:    l.LineNo,
			ItemKey:   l.ItemKey,
			ItemKind:  string(l.ItemKind),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Amount:    l.Amount(),
		})
	}
	return resp
}

// FromDocuments maps a list of documents.
func FromDocuments(docs []*document.Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, FromDocument(d))
	}
	return out
}

// HistoryEntryResponse is one audit trail entry.
type HistoryEntryResponse struct {
	Action    string    `json:"action"`
	FromState string    `json:"fromState,omitempty"`
	ToState   string    `json:"toState"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// FromHistory maps audit entries.
func FromHistory(entries []audit.Entry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			Action:    e.Action,
			FromState: e.FromState,
			ToState:   e.ToState,
			Actor:     e.Actor,
			Reason:    e.Reason,
			At:        e.At,
		})
	}
	return out
}
