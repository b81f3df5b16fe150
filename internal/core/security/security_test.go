package security

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
)

func TestCELAuthorizerDefaultRules(t *testing.T) {
	authz, err := NewCELAuthorizer(DefaultRules)
	require.NoError(t, err)
	ctx := context.Background()

	clerk := Actor{ID: "u1", Roles: []string{RoleClerk}}
	approver := Actor{ID: "u2", Roles: []string{RoleApprover}}
	admin := Actor{ID: "u3", Roles: []string{RoleAdmin}}

	assert.True(t, authz.Can(ctx, clerk, ActionDocumentSubmit, Resource{}))
	assert.False(t, authz.Can(ctx, clerk, ActionDocumentApprove, Resource{}))
	assert.True(t, authz.Can(ctx, approver, ActionDocumentApprove, Resource{}))
	assert.False(t, authz.Can(ctx, approver, ActionStockHold, Resource{}))
	assert.True(t, authz.Can(ctx, admin, ActionLedgerReconcile, Resource{}))
	assert.False(t, authz.Can(ctx, Actor{}, ActionDocumentRead, Resource{}))
	assert.False(t, authz.Can(ctx, admin, Action("unknown"), Resource{}))
}

func TestCELAuthorizerResourceAttributes(t *testing.T) {
	authz, err := NewCELAuthorizer(map[Action]string{
		ActionDocumentApprove: `resource.attributes.submitted_by != actor.id`,
	})
	require.NoError(t, err)

	res := Resource{Kind: "document", ID: "d1", Attributes: map[string]any{"submitted_by": "u1"}}
	assert.False(t, authz.Can(context.Background(), Actor{ID: "u1"}, ActionDocumentApprove, res))
	assert.True(t, authz.Can(context.Background(), Actor{ID: "u2"}, ActionDocumentApprove, res))
}

func TestCELAuthorizerRejectsBadRules(t *testing.T) {
	_, err := NewCELAuthorizer(map[Action]string{ActionDocumentRead: `actor.id`})
	assert.Error(t, err)

	_, err = NewCELAuthorizer(map[Action]string{ActionDocumentRead: `actor.roles.(`})
	assert.Error(t, err)
}

func TestLoadRulesOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stock.hold": "'clerk' in actor.roles"}`), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, `'clerk' in actor.roles`, rules[ActionStockHold])
	assert.Equal(t, DefaultRules[ActionDocumentApprove], rules[ActionDocumentApprove])
}

func TestRequire(t *testing.T) {
	ctx := context.Background()

	err := Require(ctx, AllowAll, Actor{}, ActionDocumentRead, Resource{})
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	deny := AuthorizerFunc(func(context.Context, Actor, Action, Resource) bool { return false })
	err = Require(ctx, deny, Actor{ID: "u1"}, ActionStockHold, Resource{Kind: "stock", ID: "W1"})
	assert.True(t, apperror.HasCode(err, apperror.CodeAuthorization))

	assert.NoError(t, Require(ctx, AllowAll, Actor{ID: "u1"}, ActionStockHold, Resource{}))
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "stockflow", TTL: time.Minute})

	token, expiresAt, err := svc.Issue(Actor{ID: "u1", Name: "Ann", Roles: []string{RoleClerk}})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	actor, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", actor.ID)
	assert.Equal(t, []string{RoleClerk}, actor.Roles)

	other := NewTokenService(TokenConfig{Secret: "other", Issuer: "stockflow"})
	_, err = other.Validate(token)
	assert.Error(t, err)
}
