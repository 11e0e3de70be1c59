// README: Authenticated caller identity carried in request context.
package auth

import "context"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleSupport  Role = "support"
	RoleAdmin    Role = "admin"
	// RoleSystem is used for internal actors such as the payment callback.
	RoleSystem Role = "system"
)

// Principal represents the authenticated caller from a session token.
type Principal struct {
	ID   int64
	Role Role
}

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from context (if any).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}
