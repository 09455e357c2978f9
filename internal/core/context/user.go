// Package context carries the caller and trace identifiers of a request.
package context

import (
	"context"
	"slices"
)

// UserContext is the authenticated caller.
// Roles feed the approval policy; UserID is what picker and counter assignments are compared with.
type UserContext struct {
	UserID  string
	Email   string
	Roles   []string
	IsAdmin bool
	// TokenID is the jti of the bearer token, kept for log correlation.
	TokenID string
}

// HasAnyRole reports whether the caller is an admin or holds one of roles.
func (u *UserContext) HasAnyRole(roles ...string) bool {
	if u == nil {
		return false
	}
	if u.IsAdmin {
		return true
	}
	for _, r := range roles {
		if slices.Contains(u.Roles, r) {
			return true
		}
	}
	return false
}

// IsAssignee reports whether the caller is the staff member a document or area was assigned to.
func (u *UserContext) IsAssignee(staffID string) bool {
	return u != nil && staffID != "" && u.UserID == staffID
}

type userContextKey struct{}

// WithUser attaches the caller to ctx.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns the caller, or nil for unauthenticated contexts.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns the caller id or "".
func GetUserID(ctx context.Context) string {
	return GetUser(ctx).id()
}

func (u *UserContext) id() string {
	if u == nil {
		return ""
	}
	return u.UserID
}
