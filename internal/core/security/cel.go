package security

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"reflect"

	"github.com/google/cel-go/cel"
)

// DefaultRules maps each action to the CEL expression that grants it.
// Expressions see actor (id, roles), action and resource (kind, id, attributes).
var DefaultRules = map[Action]string{
	ActionDocumentCreate:  `actor.roles.exists(r, r in ['clerk', 'manager', 'admin'])`,
	ActionDocumentEdit:    `actor.roles.exists(r, r in ['clerk', 'manager', 'admin'])`,
	ActionDocumentRead:    `size(actor.roles) > 0`,
	ActionDocumentSubmit:  `actor.roles.exists(r, r in ['clerk', 'manager', 'admin'])`,
	ActionDocumentApprove: `actor.roles.exists(r, r in ['approver', 'manager', 'admin'])`,
	ActionDocumentReject:  `actor.roles.exists(r, r in ['approver', 'manager', 'admin'])`,
	ActionDocumentCancel:  `actor.roles.exists(r, r in ['clerk', 'manager', 'admin'])`,
	ActionDocumentReopen:  `actor.roles.exists(r, r in ['clerk', 'manager', 'admin'])`,
	ActionPaymentAllocate: `actor.roles.exists(r, r in ['cashier', 'manager', 'admin'])`,
	ActionStockRead:       `size(actor.roles) > 0`,
	ActionStockHold:       `actor.roles.exists(r, r in ['manager', 'admin'])`,
	ActionLedgerReconcile: `'admin' in actor.roles`,
}

// CELAuthorizer evaluates compiled CEL programs per action.
// Actions without a rule are denied.
type CELAuthorizer struct {
	programs map[Action]cel.Program
}

// NewCELAuthorizer compiles rules. Every expression must evaluate to bool.
func NewCELAuthorizer(rules map[Action]string) (*CELAuthorizer, error) {
	env, err := cel.NewEnv(
		cel.Variable("actor", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("action", cel.StringType),
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	programs := make(map[Action]cel.Program, len(rules))
	for action, expr := range rules {
		ast, iss := env.Compile(expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %s: %w", action, iss.Err())
		}
		if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
			return nil, fmt.Errorf("rule %s must return bool, got %v", action, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program for rule %s: %w", action, err)
		}
		programs[action] = prg
	}

	return &CELAuthorizer{programs: programs}, nil
}

// LoadRules reads a JSON object of action -> expression and overlays it on DefaultRules.
// An empty path returns the defaults.
func LoadRules(path string) (map[Action]string, error) {
	rules := make(map[Action]string, len(DefaultRules))
	for k, v := range DefaultRules {
		rules[k] = v
	}
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var overrides map[Action]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for k, v := range overrides {
		rules[k] = v
	}
	return rules, nil
}

// Can implements Authorizer. Evaluation errors deny.
func (a *CELAuthorizer) Can(_ context.Context, actor Actor, action Action, resource Resource) bool {
	prg, ok := a.programs[action]
	if !ok || actor.IsZero() {
		return false
	}

	roles := actor.Roles
	if roles == nil {
		roles = []string{}
	}
	attrs := resource.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	out, _, err := prg.Eval(map[string]any{
		"actor":  map[string]any{"id": actor.ID, "roles": roles},
		"action": string(action),
		"resource": map[string]any{
			"kind":       resource.Kind,
			"id":         resource.ID,
			"attributes": attrs,
		},
	})
	if err != nil {
		return false
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed
}
