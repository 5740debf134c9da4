// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// UserContext is the caller identity supplied by the identity provider.
// The core treats it as opaque input: it never issues or verifies tokens.
type UserContext struct {
	UserID      string
	Email       string
	Role        string
	Permissions []string
	SessionID   string
}

// HasPermission reports whether perm is in the caller's permission set.
func (u *UserContext) HasPermission(perm string) bool {
	if u == nil {
		return false
	}
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// GetRole returns the caller role or empty string.
func GetRole(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.Role
	}
	return ""
}
