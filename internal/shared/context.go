package shared

import "context"

// RoleTenant is the role of users who may only pay their own invoices.
const RoleTenant = "tenant"

// Caller identifies the user acting on a request.
type Caller struct {
	UserID int64
	Role   string
}

// IsTenant reports whether the caller is restricted to their own lease.
func (c Caller) IsTenant() bool {
	return c.Role == RoleTenant
}

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
