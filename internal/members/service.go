package members

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/utilitysplit/pkg/db"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	"github.com/angelmondragon/utilitysplit/pkg/enums"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"gorm.io/gorm"
)

// Service is the member registry.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*RegisterResult, error)
	Get(ctx context.Context, memberID string) (*models.Member, error)
	SetActive(ctx context.Context, memberID string, active bool) (*models.Member, error)
	ListActive(ctx context.Context) ([]models.Member, error)
	ListAll(ctx context.Context) ([]models.Member, error)
	ResolveByHandles(ctx context.Context, handles []string) ([]models.Member, error)
	IsAdmin(memberID string) bool
}

// RegisterInput carries the identity reported by the messaging platform.
type RegisterInput struct {
	MemberID    string
	DisplayName string
	Handle      string
}

// RegisterResult reports the stored member and whether it was newly created.
type RegisterResult struct {
	Member  *models.Member
	Created bool
}

// ServiceParams wires the registry.
type ServiceParams struct {
	Repo    Repository
	AdminID string
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	adminID string
	logg    *logger.Logger
}

// NewService builds the member registry.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "members repository required")
	}
	if strings.TrimSpace(params.AdminID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "admin id required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:    params.Repo,
		adminID: strings.TrimSpace(params.AdminID),
		logg:    params.Logger,
	}, nil
}

func (s *service) IsAdmin(memberID string) bool {
	return memberID != "" && memberID == s.adminID
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	memberID := strings.TrimSpace(input.MemberID)
	if memberID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	handle := normalizeOptionalHandle(input.Handle)
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = fallbackDisplayName(memberID, handle)
	}

	existing, err := s.repo.FindByID(ctx, memberID)
	switch {
	case err == nil:
		return s.refresh(ctx, existing, displayName, handle)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}

	role := enums.MemberRoleTenant
	if s.IsAdmin(memberID) {
		role = enums.MemberRoleAdmin
	}
	member := &models.Member{
		MemberID:    memberID,
		DisplayName: displayName,
		Handle:      handle,
		Role:        role,
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, member); err != nil {
		if db.IsUniqueViolation(err, "") {
			// lost a race with a concurrent registration of the same identity
			existing, findErr := s.repo.FindByID(ctx, memberID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load member")
			}
			return &RegisterResult{Member: existing}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create member")
	}

	ctx = s.logg.WithMemberID(ctx, memberID)
	s.logg.Info(s.logg.WithField(ctx, "role", role.String()), "member registered")
	return &RegisterResult{Member: member, Created: true}, nil
}

func (s *service) refresh(ctx context.Context, member *models.Member, displayName string, handle *string) (*RegisterResult, error) {
	updates := map[string]any{}
	if member.DisplayName != displayName {
		updates["display_name"] = displayName
		member.DisplayName = displayName
	}
	if !sameHandle(member.Handle, handle) && handle != nil {
		updates["handle"] = *handle
		member.Handle = handle
	}
	if s.IsAdmin(member.MemberID) && member.Role != enums.MemberRoleAdmin {
		updates["role"] = enums.MemberRoleAdmin
		member.Role = enums.MemberRoleAdmin
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, member.MemberID, updates); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update member")
		}
	}
	return &RegisterResult{Member: member}, nil
}

func (s *service) Get(ctx context.Context, memberID string) (*models.Member, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	member, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	return member, nil
}

func (s *service) SetActive(ctx context.Context, memberID string, active bool) (*models.Member, error) {
	member, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.IsAdmin() && !active {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "the administrator cannot be deactivated")
	}
	if member.IsActive == active {
		return member, nil
	}
	if err := s.repo.Update(ctx, member.MemberID, map[string]any{"is_active": active}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update member")
	}
	member.IsActive = active

	ctx = s.logg.WithMemberID(ctx, member.MemberID)
	s.logg.Info(s.logg.WithField(ctx, "is_active", active), "member eligibility changed")
	return member, nil
}

func (s *service) ListActive(ctx context.Context) ([]models.Member, error) {
	members, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active members")
	}
	return members, nil
}

func (s *service) ListAll(ctx context.Context) ([]models.Member, error) {
	members, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	return members, nil
}

// ResolveByHandles maps every handle to an active member, preserving the
// order of first appearance. Any unresolved handle fails the whole call.
func (s *service) ResolveByHandles(ctx context.Context, handles []string) ([]models.Member, error) {
	if len(handles) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one handle required")
	}

	normalized := make([]string, 0, len(handles))
	seen := make(map[string]struct{}, len(handles))
	var malformed []string
	for _, raw := range handles {
		h, ok := NormalizeHandle(raw)
		if !ok {
			malformed = append(malformed, raw)
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		normalized = append(normalized, h)
	}
	if len(malformed) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "malformed handles").
			WithDetails(map[string]any{"malformed": malformed})
	}

	found, err := s.repo.FindActiveByHandles(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve handles")
	}
	byHandle := make(map[string]models.Member, len(found))
	for _, m := range found {
		if m.Handle != nil {
			byHandle[*m.Handle] = m
		}
	}

	resolved := make([]models.Member, 0, len(normalized))
	var unresolved []string
	for _, h := range normalized {
		m, ok := byHandle[h]
		if !ok {
			unresolved = append(unresolved, "@"+h)
			continue
		}
		resolved = append(resolved, m)
	}
	if len(unresolved) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "some handles did not match an active member").
			WithDetails(map[string]any{"reason": ReasonPartialMatch, "unresolved": unresolved})
	}
	return resolved, nil
}

// ReasonPartialMatch tags the validation error returned when some handles do
// not resolve.
const ReasonPartialMatch = "partial_match"

// UnresolvedHandles extracts the handles listed by a partial-match error.
func UnresolvedHandles(err error) []string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return nil
	}
	details, ok := typed.Details().(map[string]any)
	if !ok || details["reason"] != ReasonPartialMatch {
		return nil
	}
	unresolved, _ := details["unresolved"].([]string)
	return unresolved
}

func fallbackDisplayName(memberID string, handle *string) string {
	if handle != nil {
		return *handle
	}
	return memberID
}

func sameHandle(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
