// Package workflow moves documents through the approval state machine and
// applies each transition's stock, debt and payment effects atomically.
package workflow

import (
	"stockflow/internal/core/security"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/document"
)

// Action requested on a document.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
	ActionReopen  Action = "reopen"
)

type transition struct {
	from       []document.State
	to         document.State
	capability security.Action
	event      string
}

var transitions = map[Action]transition{
	ActionSubmit: {
		from:       []document.State{document.StateDraft},
		to:         document.StatePendingApproval,
		capability: security.ActionDocumentSubmit,
		event:      audit.EventDocumentSubmitted,
	},
	ActionApprove: {
		from:       []document.State{document.StatePendingApproval},
		to:         document.StateApproved,
		capability: security.ActionDocumentApprove,
		event:      audit.EventDocumentApproved,
	},
	ActionReject: {
		from:       []document.State{document.StatePendingApproval},
		to:         document.StateRejected,
		capability: security.ActionDocumentReject,
		event:      audit.EventDocumentRejected,
	},
	ActionCancel: {
		from:       []document.State{document.StateDraft, document.StatePendingApproval},
		to:         document.StateCancelled,
		capability: security.ActionDocumentCancel,
		event:      audit.EventDocumentCancelled,
	},
	ActionReopen: {
		from:       []document.State{document.StateRejected},
		to:         document.StateDraft,
		capability: security.ActionDocumentReopen,
		event:      audit.EventDocumentReopened,
	},
}

// Next returns the state action leads to from s, or false if illegal.
func Next(s document.State, action Action) (document.State, bool) {
	t, ok := transitions[action]
	if !ok {
		return "", false
	}
	for _, from := range t.from {
		if from == s {
			return t.to, true
		}
	}
	return "", false
}
