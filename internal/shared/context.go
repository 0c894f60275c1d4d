package shared

import "context"

type (
	sessionContextKey struct{}
	adminContextKey   struct{}
)

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithAdmin stores the authenticated admin user id.
func ContextWithAdmin(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, adminContextKey{}, userID)
}

// AdminFromContext returns the admin user id, zero when anonymous.
func AdminFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(adminContextKey{}).(int64)
	return id
}
