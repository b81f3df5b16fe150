package security

import (
	"context"

	"stockflow/internal/core/apperror"
)

// Action names a capability.
type Action string

const (
	ActionDocumentCreate  Action = "document.create"
	ActionDocumentEdit    Action = "document.edit"
	ActionDocumentRead    Action = "document.read"
	ActionDocumentSubmit  Action = "document.submit"
	ActionDocumentApprove Action = "document.approve"
	ActionDocumentReject  Action = "document.reject"
	ActionDocumentCancel  Action = "document.cancel"
	ActionDocumentReopen  Action = "document.reopen"
	ActionPaymentAllocate Action = "payment.allocate"
	ActionStockRead       Action = "stock.read"
	ActionStockHold       Action = "stock.hold"
	ActionLedgerReconcile Action = "ledger.reconcile"
)

// Resource describes what the action is applied to. Attributes are exposed
// to rule expressions as resource.<key>.
type Resource struct {
	Kind       string
	ID         string
	Attributes map[string]any
}

// Authorizer answers capability questions. It never mutates anything.
type Authorizer interface {
	Can(ctx context.Context, actor Actor, action Action, resource Resource) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, actor Actor, action Action, resource Resource) bool

// Can implements Authorizer.
func (f AuthorizerFunc) Can(ctx context.Context, actor Actor, action Action, resource Resource) bool {
	return f(ctx, actor, action, resource)
}

// AllowAll grants every action to any authenticated actor.
var AllowAll Authorizer = AuthorizerFunc(func(_ context.Context, actor Actor, _ Action, _ Resource) bool {
	return !actor.IsZero()
})

// Require returns an AuthorizationError when actor lacks the capability.
func Require(ctx context.Context, authz Authorizer, actor Actor, action Action, resource Resource) error {
	if actor.IsZero() {
		return apperror.NewUnauthorized("actor is required")
	}
	if !authz.Can(ctx, actor, action, resource) {
		err := apperror.NewAuthorization(actor.ID, string(action))
		if resource.ID != "" {
			err = err.WithDetail("resource", resource.Kind+":"+resource.ID)
		}
		return err
	}
	return nil
}
