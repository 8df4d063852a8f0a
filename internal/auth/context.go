package auth

import "context"

type userContextKey struct{}

// ContextWithUserID stores the authenticated user id in context.
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserIDFromContext extracts the authenticated user id from context.
// The second return value reports whether a user is present.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userContextKey{}).(int64)
	return id, ok
}
