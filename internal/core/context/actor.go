// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"stockflow/internal/core/security"
)

type actorContextKey struct{}

// WithActor adds the authenticated actor to context.
func WithActor(ctx context.Context, actor security.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns the actor from context and whether one was set.
func GetActor(ctx context.Context) (security.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(security.Actor)
	return actor, ok
}

// GetActorID returns the actor ID from context or empty string.
func GetActorID(ctx context.Context) string {
	if actor, ok := GetActor(ctx); ok {
		return actor.ID
	}
	return ""
}
