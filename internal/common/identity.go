package common

import (
	"context"
	"strings"
)

// Identity is the resolved caller identity injected by the server
// middleware. The auth collaborator issues the token; this core only
// sees the outcome. A nil Identity in context means an anonymous viewer.
type Identity struct {
	Email        string
	IsPrivileged bool
}

type contextKey int

const identityContextKey contextKey = iota

// WithIdentity stores an Identity in the request context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the Identity from context, or nil if absent.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey).(*Identity)
	return id
}

// IsPrivileged reports whether the context carries the privileged identity.
// Viewers (anonymous or non-admin) get read-only behavior everywhere.
func IsPrivileged(ctx context.Context) bool {
	id := IdentityFromContext(ctx)
	return id != nil && id.IsPrivileged
}

// ResolveIdentity builds an Identity from an email and the configured
// admin email. Comparison is case-insensitive.
func ResolveIdentity(email, adminEmail string) *Identity {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	return &Identity{
		Email:        email,
		IsPrivileged: adminEmail != "" && email == strings.ToLower(strings.TrimSpace(adminEmail)),
	}
}
