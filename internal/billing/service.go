// Package billing holds the administrator and member use cases shared by the
// HTTP API and the chat bot.
package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/members"
	"github.com/angelmondragon/utilitysplit/internal/notify"
	"github.com/angelmondragon/utilitysplit/internal/reconcile"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type cycleEngine interface {
	CreateCycle(ctx context.Context, input cycles.CreateInput) (*models.BillingCycle, error)
	ActiveCycle(ctx context.Context) (*models.BillingCycle, error)
	Get(ctx context.Context, id uuid.UUID) (*models.BillingCycle, error)
	Outstanding(ctx context.Context, cycleID *uuid.UUID) (*cycles.Summary, error)
	History(ctx context.Context, params cycles.HistoryParams) (*cycles.HistoryResult, error)
}

type manualRecorder interface {
	RecordManualPayment(ctx context.Context, adminID string, payment reconcile.ManualPayment) (*reconcile.Result, error)
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Members        members.Service
	Cycles         cycleEngine
	Reconciler     manualRecorder
	Notifier       notify.Notifier
	Logger         *logger.Logger
	CurrencySymbol string
}

// Service orchestrates billing operations on behalf of a caller.
type Service struct {
	members    members.Service
	cycles     cycleEngine
	reconciler manualRecorder
	notifier   notify.Notifier
	logg       *logger.Logger
	symbol     string
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Members == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "member registry required")
	}
	if params.Cycles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cycle engine required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reconciler required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{
		members:    params.Members,
		cycles:     params.Cycles,
		reconciler: params.Reconciler,
		notifier:   params.Notifier,
		logg:       params.Logger,
		symbol:     params.CurrencySymbol,
	}, nil
}

func (s *Service) requireAdmin(actorID, action string) error {
	if !s.members.IsAdmin(actorID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the administrator can "+action)
	}
	return nil
}

// CreateBillInput describes a new bill. With no handles every active member
// is billed.
type CreateBillInput struct {
	TotalAmount decimal.Decimal
	Handles     []string
}

// CreateBill opens a new cycle, replacing any active one, and announces it in
// the group.
func (s *Service) CreateBill(ctx context.Context, actorID string, input CreateBillInput) (*models.BillingCycle, error) {
	if err := s.requireAdmin(actorID, "create bills"); err != nil {
		return nil, err
	}
	if !input.TotalAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total amount must be positive").
			WithDetails(map[string]any{"reason": cycles.ReasonInvalidAmount})
	}

	var (
		roster []models.Member
		err    error
	)
	if len(input.Handles) > 0 {
		roster, err = s.members.ResolveByHandles(ctx, input.Handles)
	} else {
		roster, err = s.members.ListActive(ctx)
	}
	if err != nil {
		return nil, err
	}

	cycle, err := s.cycles.CreateCycle(ctx, cycles.CreateInput{
		TotalAmount: input.TotalAmount,
		Roster:      roster,
		CreatedBy:   actorID,
	})
	if err != nil {
		return nil, err
	}

	if d := s.notifier.SendToGroup(ctx, s.announcement(cycle)); !d.OK() {
		s.logg.Error(s.logg.WithCycleID(ctx, cycle.ID.String()), "bill announcement not delivered", d.Err)
	}
	return cycle, nil
}

func (s *Service) announcement(cycle *models.BillingCycle) string {
	var b strings.Builder
	b.WriteString("⚡ New Utility Bill Created!\n\n")
	fmt.Fprintf(&b, "Total Amount: %s\n", notify.Money(s.symbol, cycle.TotalAmount))
	fmt.Fprintf(&b, "Total People: %d\n", len(cycle.Roster))
	fmt.Fprintf(&b, "Per Person: %s\n", notify.Money(s.symbol, cycle.SplitAmount))
	fmt.Fprintf(&b, "Due Date: %s\n\n", cycle.DueDate.Format("Mon Jan 2 2006"))
	b.WriteString("Send /pay to get your payment link before the due date.")
	return b.String()
}

// SetMemberActive activates or deactivates a member.
func (s *Service) SetMemberActive(ctx context.Context, actorID, memberID string, active bool) (*models.Member, error) {
	if err := s.requireAdmin(actorID, "change tenants"); err != nil {
		return nil, err
	}
	return s.members.SetActive(ctx, memberID, active)
}

// Tenants lists every registered member.
func (s *Service) Tenants(ctx context.Context, actorID string) ([]models.Member, error) {
	if err := s.requireAdmin(actorID, "view tenants"); err != nil {
		return nil, err
	}
	return s.members.ListAll(ctx)
}

// MarkPaid records an out-of-band payment against the active cycle.
func (s *Service) MarkPaid(ctx context.Context, actorID, memberID string, amount decimal.Decimal, reference string) (*reconcile.Result, error) {
	if err := s.requireAdmin(actorID, "record payments"); err != nil {
		return nil, err
	}
	cycle, err := s.cycles.ActiveCycle(ctx)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "there is no active bill").
			WithDetails(map[string]any{"reason": cycles.ReasonNoActiveCycle})
	}
	return s.recordManual(ctx, actorID, cycle, memberID, amount, reference)
}

// MarkPaidOnCycle records an out-of-band payment against a specific cycle.
// Closed cycles and members outside the roster yield an out-of-scope result.
func (s *Service) MarkPaidOnCycle(ctx context.Context, actorID string, cycleID uuid.UUID, memberID string, amount decimal.Decimal, reference string) (*reconcile.Result, error) {
	if err := s.requireAdmin(actorID, "record payments"); err != nil {
		return nil, err
	}
	cycle, err := s.cycles.Get(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	return s.recordManual(ctx, actorID, cycle, memberID, amount, reference)
}

func (s *Service) recordManual(ctx context.Context, actorID string, cycle *models.BillingCycle, memberID string, amount decimal.Decimal, reference string) (*reconcile.Result, error) {
	if amount.IsZero() {
		amount = cycle.SplitAmount
	}
	return s.reconciler.RecordManualPayment(ctx, actorID, reconcile.ManualPayment{
		CycleID:   cycle.ID,
		MemberID:  memberID,
		Amount:    amount,
		Reference: reference,
	})
}

// Balance summarises the active cycle.
func (s *Service) Balance(ctx context.Context) (*cycles.Summary, error) {
	return s.cycles.Outstanding(ctx, nil)
}

// History pages through past bills, newest first.
func (s *Service) History(ctx context.Context, params cycles.HistoryParams) (*cycles.HistoryResult, error) {
	return s.cycles.History(ctx, params)
}
