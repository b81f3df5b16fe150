// Package security holds the capability model: who the actor is, what
// actions exist and the Authorizer that decides "actor can do X on Y".
package security

import "slices"

// Common roles used by the default rule set.
const (
	RoleClerk    = "clerk"
	RoleApprover = "approver"
	RoleManager  = "manager"
	RoleCashier  = "cashier"
	RoleAdmin    = "admin"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the actor carries role.
func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// IsZero reports an unauthenticated actor.
func (a Actor) IsZero() bool { return a.ID == "" }

// System is the actor used by background jobs (reconciliation, seeding).
var System = Actor{ID: "system", Name: "system", Roles: []string{RoleAdmin}}
