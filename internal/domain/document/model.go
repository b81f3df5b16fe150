// Package document holds the document graph (header plus lines) and the
// draft-editing operations. State changes beyond editing belong to workflow.
package document

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// Type of document.
type Type string

const (
	TypePurchaseOrder Type = "PURCHASE_ORDER"
	TypeSalesInvoice  Type = "SALES_INVOICE"
	TypeTransferNote  Type = "TRANSFER_NOTE"
	TypeCashVoucher   Type = "CASH_VOUCHER"
)

// Types lists every supported type.
var Types = []Type{TypePurchaseOrder, TypeSalesInvoice, TypeTransferNote, TypeCashVoucher}

// Valid reports a known type.
func (t Type) Valid() bool { return slices.Contains(Types, t) }

// NumberPrefix is the prefix of the document number series.
func (t Type) NumberPrefix() string {
	switch t {
	case TypePurchaseOrder:
		return "PO"
	case TypeSalesInvoice:
		return "SI"
	case TypeTransferNote:
		return "TN"
	case TypeCashVoucher:
		return "CV"
	}
	return "DOC"
}

// AllowsKind reports whether lines of kind may appear on this type.
func (t Type) AllowsKind(kind ItemKind) bool {
	if t == TypeCashVoucher {
		return kind == KindCash
	}
	return kind == KindVehicle || kind == KindPart
}

// State of the approval workflow.
type State string

const (
	StateDraft           State = "DRAFT"
	StatePendingApproval State = "PENDING_APPROVAL"
	StateApproved        State = "APPROVED"
	StateRejected        State = "REJECTED"
	StateCancelled       State = "CANCELLED"
)

// IsTerminal reports APPROVED and CANCELLED.
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateCancelled
}

// ItemKind of a line.
type ItemKind string

const (
	KindVehicle ItemKind = "VEHICLE"
	KindPart    ItemKind = "PART"
	KindCash    ItemKind = "CASH"
)

// Direction of a cash voucher relative to its cashbox warehouse.
type Direction string

const (
	DirectionReceipt      Direction = "RECEIPT"
	DirectionDisbursement Direction = "DISBURSEMENT"
)

// Header holds the fields set when a draft is created.
type Header struct {
	Type            Type
	SourceWarehouse string
	DestWarehouse   string
	Counterparty    string
	Comment         string

	// Cash voucher fields.
	Direction         Direction
	PaymentMethod     string
	SettlesDocumentID *id.ID
}

// LineItem is one position of a document.
type LineItem struct {
	LineID    id.ID           `db:"line_id" json:"line_id"`
	LineNo    int             `db:"line_no" json:"line_no"`
	ItemKey   string          `db:"item_key" json:"item_key"`
	ItemKind  ItemKind        `db:"item_kind" json:"item_kind"`
	Quantity  types.Quantity  `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// Amount is quantity times unit price.
func (l LineItem) Amount() decimal.Decimal {
	return l.Quantity.Decimal().Mul(l.UnitPrice)
}

// LineInput is a line as submitted by a caller.
type LineInput struct {
	ItemKey   string
	ItemKind  ItemKind
	Quantity  types.Quantity
	UnitPrice decimal.Decimal
}

// Document is the aggregate moved through the workflow.
type Document struct {
	ID                id.ID      `db:"id" json:"id"`
	Number            string     `db:"number" json:"number"`
	Type              Type       `db:"doc_type" json:"type"`
	State             State      `db:"state" json:"state"`
	SourceWarehouse   string     `db:"source_warehouse" json:"source_warehouse,omitempty"`
	DestWarehouse     string     `db:"dest_warehouse" json:"dest_warehouse,omitempty"`
	Counterparty      string     `db:"counterparty" json:"counterparty,omitempty"`
	Comment           string     `db:"comment" json:"comment,omitempty"`
	Direction         Direction  `db:"direction" json:"direction,omitempty"`
	PaymentMethod     string     `db:"payment_method" json:"payment_method,omitempty"`
	SettlesDocumentID *id.ID     `db:"settles_document_id" json:"settles_document_id,omitempty"`
	CreatedBy         string     `db:"created_by" json:"created_by"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	SubmittedBy       string     `db:"submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt       *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedBy        string     `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	RejectionReason   string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CancelReason      string     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	Version           int        `db:"version" json:"version"`
	Lines             []LineItem `db:"-" json:"lines"`
}

// NewDraft builds a DRAFT document from a validated header.
func NewDraft(h Header, createdBy string, now time.Time) *Document {
	return &Document{
		ID:                id.New(),
		Type:              h.Type,
		State:             StateDraft,
		SourceWarehouse:   strings.TrimSpace(h.SourceWarehouse),
		DestWarehouse:     strings.TrimSpace(h.DestWarehouse),
		Counterparty:      strings.TrimSpace(h.Counterparty),
		Comment:           h.Comment,
		Direction:         h.Direction,
		PaymentMethod:     h.PaymentMethod,
		SettlesDocumentID: h.SettlesDocumentID,
		CreatedBy:         createdBy,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
}

// Total is the sum of line amounts.
func (d *Document) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Amount())
	}
	return total
}

// Line finds a line by id.
func (d *Document) Line(lineID id.ID) (LineItem, bool) {
	for _, l := range d.Lines {
		if l.LineID == lineID {
			return l, true
		}
	}
	return LineItem{}, false
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.Lines = slices.Clone(d.Lines)
	if d.SettlesDocumentID != nil {
		v := *d.SettlesDocumentID
		c.SettlesDocumentID = &v
	}
	if d.SubmittedAt != nil {
		v := *d.SubmittedAt
		c.SubmittedAt = &v
	}
	if d.ApprovedAt != nil {
		v := *d.ApprovedAt
		c.ApprovedAt = &v
	}
	return &c
}

// Validate checks the header requirements of the document type.
func (h Header) Validate() error {
	if !h.Type.Valid() {
		return apperror.NewValidation(fmt.Sprintf("unknown document type %q", h.Type)).
			WithDetail("field", "type")
	}
	src := strings.TrimSpace(h.SourceWarehouse)
	dst := strings.TrimSpace(h.DestWarehouse)
	cp := strings.TrimSpace(h.Counterparty)

	required := func(field, value string) error {
		if value == "" {
			return apperror.NewValidation(fmt.Sprintf("%s is required for %s", field, h.Type)).
				WithDetail("field", field)
		}
		return nil
	}

	switch h.Type {
	case TypePurchaseOrder:
		if err := required("dest_warehouse", dst); err != nil {
			return err
		}
		return required("counterparty", cp)
	case TypeSalesInvoice:
		if err := required("source_warehouse", src); err != nil {
			return err
		}
		return required("counterparty", cp)
	case TypeTransferNote:
		if err := required("source_warehouse", src); err != nil {
			return err
		}
		if err := required("dest_warehouse", dst); err != nil {
			return err
		}
		if src == dst {
			return apperror.NewValidation("transfer source and destination warehouses must differ").
				WithDetail(apperror.DetailWarehouse, src)
		}
	case TypeCashVoucher:
		if err := required("source_warehouse", src); err != nil {
			return err
		}
		if (cp == "") == (dst == "") {
			return apperror.NewValidation("cash voucher needs exactly one of counterparty or dest_warehouse").
				WithDetail("field", "counterparty")
		}
		if dst == src {
			return apperror.NewValidation("cash voucher cannot pay its own cashbox").
				WithDetail(apperror.DetailWarehouse, src)
		}
		if h.Direction != DirectionReceipt && h.Direction != DirectionDisbursement {
			return apperror.NewValidation("cash voucher direction must be RECEIPT or DISBURSEMENT").
				WithDetail("field", "direction")
		}
	}
	return nil
}

// Warehouses returns the warehouse codes the header references.
func (h Header) Warehouses() []string {
	var out []string
	for _, w := range []string{h.SourceWarehouse, h.DestWarehouse} {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// normalize fills defaults and validates one line for document type t.
func (in LineInput) normalize(t Type) (LineInput, error) {
	in.ItemKey = strings.TrimSpace(in.ItemKey)
	if in.ItemKey == "" {
		return in, apperror.NewValidation("item_key is required").WithDetail("field", "item_key")
	}
	if in.ItemKind == "" {
		if t == TypeCashVoucher {
			in.ItemKind = KindCash
		} else {
			in.ItemKind = KindPart
		}
	}
	if !t.AllowsKind(in.ItemKind) {
		return in, apperror.NewValidation(fmt.Sprintf("%s lines are not allowed on %s", in.ItemKind, t)).
			WithDetail(apperror.DetailItemKey, in.ItemKey)
	}
	if in.ItemKind == KindVehicle && in.Quantity.IsZero() {
		in.Quantity = types.Units(1)
	}
	if !in.Quantity.IsPositive() {
		return in, apperror.NewValidation("quantity must be positive").
			WithDetail(apperror.DetailItemKey, in.ItemKey)
	}
	if in.ItemKind == KindVehicle && in.Quantity != types.Units(1) {
		return in, apperror.NewValidation("vehicle lines must have quantity 1").
			WithDetail(apperror.DetailItemKey, in.ItemKey)
	}
	if in.UnitPrice.IsNegative() {
		return in, apperror.NewValidation("unit_price must not be negative").
			WithDetail(apperror.DetailItemKey, in.ItemKey)
	}
	return in, nil
}
