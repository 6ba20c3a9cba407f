package bot

import (
	"context"
	"strings"

	"github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/members"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
)

var reasonReplies = map[string]string{
	cycles.ReasonNoActiveCycle: "❌ No active bill found.",
	cycles.ReasonAlreadyPaid:   "✅ You have already paid for this bill.",
	cycles.ReasonNotBilled:     "❌ You are not on the current bill.",
	cycles.ReasonEmptyRoster:   "❌ No active tenants to bill.",
	cycles.ReasonInvalidAmount: "❌ The amount must be greater than zero.",
	cycles.ReasonConcurrent:    "⚠ The bill changed while I was working on it. Please try again.",
}

// failure maps an error to the reply shown in chat. Unexpected errors are
// logged and answered generically.
func (r *Router) failure(ctx context.Context, err error) string {
	if unresolved := members.UnresolvedHandles(err); len(unresolved) > 0 {
		return "❌ Unknown or inactive tenants: " + strings.Join(unresolved, ", ")
	}
	if reply, ok := reasonReplies[cycles.ReasonOf(err)]; ok {
		return reply
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		r.logg.Error(ctx, "command failed", err)
		return "❌ Something went wrong. Please try again."
	}
	switch typed.Code() {
	case pkgerrors.CodeForbidden:
		return "❌ " + capitalize(typed.Message()) + "."
	case pkgerrors.CodeNotFound:
		return "❌ " + capitalize(typed.Message()) + ". Send /start to register."
	case pkgerrors.CodeValidation, pkgerrors.CodeConflict:
		return "❌ " + capitalize(typed.Message()) + "."
	case pkgerrors.CodeGateway:
		r.logg.Error(ctx, "payment gateway failed", err)
		return "❌ Could not create your payment link right now. Please try again later."
	default:
		r.logg.Error(ctx, "command failed", err)
		return "❌ Something went wrong. Please try again."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
