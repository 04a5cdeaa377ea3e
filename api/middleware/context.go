package middleware

import (
	"context"

	"github.com/angelmondragon/rentloop-backend/pkg/enums"
)

// principal is the authenticated caller. Requester and vendor are decided per
// order by comparing UserID with the order's parties.
type principal struct {
	UserID string
	Role   enums.UserRole
}

type principalKey struct{}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

func withPrincipal(ctx context.Context, p principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func UserIDFromContext(ctx context.Context) string { return principalFrom(ctx).UserID }

func RoleFromContext(ctx context.Context) enums.UserRole { return principalFrom(ctx).Role }

func WithUserID(ctx context.Context, userID string) context.Context {
	p := principalFrom(ctx)
	p.UserID = userID
	return withPrincipal(ctx, p)
}

func WithRole(ctx context.Context, role enums.UserRole) context.Context {
	p := principalFrom(ctx)
	p.Role = role
	return withPrincipal(ctx, p)
}
