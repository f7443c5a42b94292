package review

import (
	"context"
	"strings"
)

// CurrentUserProvider resolves the acting user for an operation
type CurrentUserProvider interface {
	CurrentUser(ctx context.Context) (string, error)
}

type actorKey struct{}

// WithActor returns a context carrying the acting user id
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFromContext returns the acting user id stored by WithActor
func ActorFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey{}).(string)
	return id, ok && strings.TrimSpace(id) != ""
}

// ContextUserProvider resolves the actor placed in the context by the
// HTTP auth middleware
type ContextUserProvider struct{}

// CurrentUser implements CurrentUserProvider
func (ContextUserProvider) CurrentUser(ctx context.Context) (string, error) {
	id, ok := ActorFromContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return id, nil
}
