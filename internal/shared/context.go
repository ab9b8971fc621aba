package shared

import "context"

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated principal ID in context.
func ContextWithPrincipal(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, principalContextKey{}, id)
}

// PrincipalFromContext extracts the principal ID from context.
func PrincipalFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(principalContextKey{}).(int64)
	return id, ok
}
