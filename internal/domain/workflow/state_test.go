package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockflow/internal/domain/document"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from   document.State
		action Action
		want   document.State
		ok     bool
	}{
		{document.StateDraft, ActionSubmit, document.StatePendingApproval, true},
		{document.StatePendingApproval, ActionApprove, document.StateApproved, true},
		{document.StatePendingApproval, ActionReject, document.StateRejected, true},
		{document.StateDraft, ActionCancel, document.StateCancelled, true},
		{document.StatePendingApproval, ActionCancel, document.StateCancelled, true},
		{document.StateRejected, ActionReopen, document.StateDraft, true},
		{document.StateRejected, ActionSubmit, "", false},
		{document.StateDraft, ActionApprove, "", false},
		{document.StateApproved, ActionReject, "", false},
		{document.StateApproved, ActionCancel, "", false},
		{document.StateCancelled, ActionCancel, "", false},
		{document.StateRejected, ActionCancel, "", false},
		{document.StateDraft, Action("archive"), "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, ok := Next(tt.from, tt.action)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCashPolicyDirection(t *testing.T) {
	doc := &document.Document{
		Type:            document.TypeCashVoucher,
		SourceWarehouse: "W1",
		DestWarehouse:   "W2",
		Direction:       document.DirectionDisbursement,
		Lines:           []document.LineItem{{Quantity: 10_000, UnitPrice: mustDecimal("50")}},
	}

	req, ok := cashPolicy{}.Payment(doc)
	assert.True(t, ok)
	assert.Equal(t, "warehouse:W1", string(req.Payer))
	assert.Equal(t, "warehouse:W2", string(req.Payee))
	assert.True(t, req.Amount.Equal(mustDecimal("50")))

	doc.Direction = document.DirectionReceipt
	req, _ = cashPolicy{}.Payment(doc)
	assert.Equal(t, "warehouse:W2", string(req.Payer))
}
