package members

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/utilitysplit/api/middleware"
	"github.com/angelmondragon/utilitysplit/api/responses"
	"github.com/angelmondragon/utilitysplit/api/validators"
	membersvc "github.com/angelmondragon/utilitysplit/internal/members"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
)

const (
	maxDisplayNameLength = 64
	maxHandleLength      = 32
)

// AdminService covers the admin-only member operations.
type AdminService interface {
	Tenants(ctx context.Context, actorID string) ([]models.Member, error)
	SetMemberActive(ctx context.Context, actorID, memberID string, active bool) (*models.Member, error)
}

// Registry registers the calling member.
type Registry interface {
	Register(ctx context.Context, input membersvc.RegisterInput) (*membersvc.RegisterResult, error)
}

type memberView struct {
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	Handle      *string   `json:"handle,omitempty"`
	Role        string    `json:"role"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type registerRequest struct {
	DisplayName string `json:"display_name" validate:"required"`
	Handle      string `json:"handle"`
}

func toMemberView(m *models.Member) memberView {
	return memberView{
		MemberID:    m.MemberID,
		DisplayName: m.DisplayName,
		Handle:      m.Handle,
		Role:        m.Role.String(),
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
	}
}

// AdminListMembers lists every registered member, active or not.
func AdminListMembers(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		list, err := svc.Tenants(ctx, middleware.MemberIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		views := make([]memberView, 0, len(list))
		for i := range list {
			views = append(views, toMemberView(&list[i]))
		}
		responses.WriteSuccess(w, map[string]any{"members": views})
	}
}

// AdminSetMemberActive toggles whether a member is billed on future cycles.
func AdminSetMemberActive(svc AdminService, active bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		memberID, err := validators.PathParam(r, "memberId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		member, err := svc.SetMemberActive(ctx, middleware.MemberIDFromContext(ctx), memberID, active)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toMemberView(member))
	}
}

// RegisterMember registers the caller under the member id in their token.
// Registering again refreshes the display name and handle.
func RegisterMember(registry Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if registry == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member registry unavailable"))
			return
		}

		var req registerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := registry.Register(ctx, membersvc.RegisterInput{
			MemberID:    middleware.MemberIDFromContext(ctx),
			DisplayName: validators.SanitizeString(req.DisplayName, maxDisplayNameLength),
			Handle:      validators.SanitizeString(req.Handle, maxHandleLength),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, toMemberView(result.Member))
	}
}
