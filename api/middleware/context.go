package middleware

import (
	"context"

	"github.com/angelmondragon/utilitysplit/pkg/enums"
)

type contextKey string

const (
	ctxMemberID contextKey = "member_id"
	ctxRole     contextKey = "actor_role"
)

func MemberIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxMemberID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.MemberRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.MemberRole); ok {
		return v
	}
	return ""
}

// WithMember injects the caller's member id and role into the context.
func WithMember(ctx context.Context, memberID string, role enums.MemberRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxMemberID, memberID)
	return context.WithValue(ctx, ctxRole, role)
}
