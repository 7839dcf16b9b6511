package auth

import "context"

type principalKey struct{}

// PrincipalFunc reports the authenticated principal of the current request, if any.
type PrincipalFunc func(ctx context.Context) (userID string, ok bool)

// WithPrincipal returns a copy of ctx carrying userID as the authenticated principal.
func WithPrincipal(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, principalKey{}, userID)
}

// PrincipalFromContext is the PrincipalFunc backed by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(principalKey{}).(string)
	return userID, ok && userID != ""
}
