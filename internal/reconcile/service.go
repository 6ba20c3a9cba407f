package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/notify"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	"github.com/angelmondragon/utilitysplit/pkg/enums"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/angelmondragon/utilitysplit/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reasons a confirmation was not applied.
const (
	ReasonOutOfScope = "out_of_scope"
	ReasonDuplicate  = "duplicate"
)

type cycleMutator interface {
	Mutate(ctx context.Context, cycleID uuid.UUID, fn func(m *cycles.Mutation) error) (*models.BillingCycle, error)
}

type adminChecker interface {
	IsAdmin(memberID string) bool
}

// ConfirmedPayment is a gateway-confirmed charge.
type ConfirmedPayment struct {
	CycleID   uuid.UUID
	MemberID  string
	Amount    decimal.Decimal
	Reference string
}

// ManualPayment is an out-of-band payment recorded by an administrator.
type ManualPayment struct {
	CycleID   uuid.UUID
	MemberID  string
	Amount    decimal.Decimal
	Reference string
}

// Result reports what happened to a confirmation. Reason is set when the
// payment was not applied.
type Result struct {
	Applied     bool
	CycleClosed bool
	Reason      string
	Payment     *models.CyclePayment
	PaidCount   int
	RosterSize  int
}

// ServiceParams wires the reconciler.
type ServiceParams struct {
	Cycles         cycleMutator
	Admins         adminChecker
	Notifier       notify.Notifier
	Metrics        *metrics.ReconcileMetrics
	Logger         *logger.Logger
	CurrencySymbol string
}

// Service applies payment confirmations to billing cycles.
type Service struct {
	cycles   cycleMutator
	admins   adminChecker
	notifier notify.Notifier
	metrics  *metrics.ReconcileMetrics
	logg     *logger.Logger
	symbol   string
}

// NewService builds the reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Cycles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cycle engine required")
	}
	if params.Admins == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "admin checker required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{
		cycles:   params.Cycles,
		admins:   params.Admins,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
		symbol:   params.CurrencySymbol,
	}, nil
}

// RecordConfirmedPayment applies a gateway confirmation. Confirmations that no
// longer apply, or were already applied, are reported in the result rather
// than as errors so the gateway stops redelivering them.
func (s *Service) RecordConfirmedPayment(ctx context.Context, payment ConfirmedPayment) (*Result, error) {
	if err := validate(payment.CycleID, payment.MemberID, payment.Amount, payment.Reference); err != nil {
		return nil, err
	}
	result, err := s.record(ctx, entry{
		cycleID:   payment.CycleID,
		memberID:  payment.MemberID,
		amount:    payment.Amount,
		reference: strings.TrimSpace(payment.Reference),
		source:    enums.PaymentSourceGateway,
	})
	if err != nil && pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		s.reject(ctx, payment.CycleID, payment.MemberID, ReasonOutOfScope)
		return &Result{Reason: ReasonOutOfScope}, nil
	}
	return result, err
}

// RecordManualPayment records a payment made outside the gateway, e.g. cash.
// Only administrators may call it; the dedup contract is the same.
func (s *Service) RecordManualPayment(ctx context.Context, adminID string, payment ManualPayment) (*Result, error) {
	if !s.admins.IsAdmin(adminID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the administrator can record payments")
	}
	reference := strings.TrimSpace(payment.Reference)
	if reference == "" {
		reference = "manual-" + uuid.NewString()
	}
	if err := validate(payment.CycleID, payment.MemberID, payment.Amount, reference); err != nil {
		return nil, err
	}
	recordedBy := adminID
	return s.record(ctx, entry{
		cycleID:    payment.CycleID,
		memberID:   payment.MemberID,
		amount:     payment.Amount,
		reference:  reference,
		source:     enums.PaymentSourceManual,
		recordedBy: &recordedBy,
	})
}

type entry struct {
	cycleID    uuid.UUID
	memberID   string
	amount     decimal.Decimal
	reference  string
	source     enums.PaymentSource
	recordedBy *string
}

func (s *Service) record(ctx context.Context, e entry) (*Result, error) {
	result := &Result{}
	cycle, err := s.cycles.Mutate(ctx, e.cycleID, func(m *cycles.Mutation) error {
		c := m.Cycle
		result.RosterSize = len(c.Roster)
		result.PaidCount = len(c.Payments)
		if !c.IsActive || !c.OnRoster(e.memberID) {
			result.Reason = ReasonOutOfScope
			return nil
		}
		if c.HasReference(e.reference) || c.PaymentFor(e.memberID) != nil {
			result.Reason = ReasonDuplicate
			return nil
		}

		payment, err := m.AppendPayment(models.CyclePayment{
			MemberID:   e.memberID,
			Amount:     e.amount,
			Reference:  e.reference,
			Source:     e.source,
			RecordedBy: e.recordedBy,
		})
		if err != nil {
			return err
		}
		result.Applied = true
		result.Payment = payment
		result.PaidCount = len(c.Payments)
		if len(c.Payments) == len(c.Roster) {
			result.CycleClosed = m.Close()
		}
		return nil
	})
	if err != nil {
		if cycles.ReasonOf(err) == cycles.ReasonDuplicate {
			s.reject(ctx, e.cycleID, e.memberID, ReasonDuplicate)
			return &Result{Reason: ReasonDuplicate}, nil
		}
		return nil, err
	}

	if !result.Applied {
		s.reject(ctx, e.cycleID, e.memberID, result.Reason)
		return result, nil
	}

	s.metrics.IncApplied(e.source.String())
	if result.CycleClosed {
		s.metrics.IncClosed()
	}
	logCtx := s.logg.WithCycleID(s.logg.WithMemberID(ctx, e.memberID), e.cycleID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"reference":    e.reference,
		"amount":       e.amount.String(),
		"source":       e.source.String(),
		"cycle_closed": result.CycleClosed,
	}), "payment applied")

	s.announce(logCtx, cycle, result)
	return result, nil
}

func (s *Service) reject(ctx context.Context, cycleID uuid.UUID, memberID, reason string) {
	s.metrics.IncRejected(reason)
	logCtx := s.logg.WithCycleID(s.logg.WithMemberID(ctx, memberID), cycleID.String())
	s.logg.Info(s.logg.WithField(logCtx, "reason", reason), "payment not applied")
}

// announce runs after commit. Delivery problems are logged, never returned.
func (s *Service) announce(ctx context.Context, cycle *models.BillingCycle, result *Result) {
	payment := result.Payment
	name := payment.MemberID
	for _, entry := range cycle.Roster {
		if entry.MemberID == payment.MemberID {
			name = entry.Mention()
			break
		}
	}
	amount := notify.Money(s.symbol, payment.Amount)

	receipt := fmt.Sprintf("✅ %s paid %s (ref %s).\nProgress: %d/%d paid.", name, amount, payment.Reference, result.PaidCount, result.RosterSize)
	s.check(ctx, "group receipt", s.notifier.SendToGroup(ctx, receipt))

	direct := fmt.Sprintf("Thank you! Your payment of %s was received.", amount)
	if d := s.notifier.SendToMember(ctx, payment.MemberID, direct); !d.OK() && !d.IsUnreachable() {
		s.check(ctx, "member receipt", d)
	}

	if result.CycleClosed {
		s.check(ctx, "cycle closed", s.notifier.SendToGroup(ctx, "🎉 All payments completed, bill closed."))
	}
}

func (s *Service) check(ctx context.Context, what string, d notify.Delivery) {
	if d.OK() {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"notification": what,
		"status":       string(d.Status),
		"error":        fmt.Sprint(d.Err),
	}), "notification not delivered")
}

func validate(cycleID uuid.UUID, memberID string, amount decimal.Decimal, reference string) error {
	switch {
	case cycleID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "cycle id required")
	case strings.TrimSpace(memberID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	case !amount.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be greater than zero")
	case !amount.Equal(amount.Round(cycles.SplitPrecision)):
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount has too many decimal places")
	case strings.TrimSpace(reference) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	return nil
}
