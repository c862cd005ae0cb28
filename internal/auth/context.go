package auth

import (
	"context"

	"github.com/dukerupert/homebudget/internal/model"
)

type authKey struct{}

// AuthContext is what RequireAuth learned about the caller: who they are,
// the one family they belong to, and their role in it.
type AuthContext struct {
	UserID    int64
	FamilyID  int64
	Role      string
	SessionID int64
}

// IsAdmin reports whether the caller administers their family. Unknown roles
// get member rights.
func (ac AuthContext) IsAdmin() bool {
	return ac.Role == model.RoleAdmin
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(authKey{}).(AuthContext)
	return ac, ok
}

// FamilyID scopes every query a handler makes. Zero means unauthenticated
// and matches no rows.
func FamilyID(ctx context.Context) int64 {
	ac, _ := FromContext(ctx)
	return ac.FamilyID
}

func UserID(ctx context.Context) int64 {
	ac, _ := FromContext(ctx)
	return ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	return ok && ac.IsAdmin()
}
