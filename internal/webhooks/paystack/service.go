// Package paystackwebhook turns authenticated Paystack callbacks into
// reconciled payments.
package paystackwebhook

import (
	"context"

	"github.com/angelmondragon/utilitysplit/internal/gateway"
	"github.com/angelmondragon/utilitysplit/internal/reconcile"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
)

type verifier interface {
	VerifyCallback(rawBody []byte, signature string) (gateway.Event, error)
}

type reconciler interface {
	RecordConfirmedPayment(ctx context.Context, payment reconcile.ConfirmedPayment) (*reconcile.Result, error)
}

type guard interface {
	Seen(ctx context.Context, reference string) (bool, error)
	MarkProcessed(ctx context.Context, reference string) error
}

// Outcome summarises how a callback was handled. Every outcome is
// acknowledged to the gateway with 200.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeReplayed   Outcome = "replayed"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeOutOfScope Outcome = "out_of_scope"
	OutcomeIgnored    Outcome = "ignored"
)

type ServiceParams struct {
	Gateway    verifier
	Reconciler reconciler
	Guard      guard
	Logger     *logger.Logger
}

type Service struct {
	gateway    verifier
	reconciler reconciler
	guard      guard
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reconciler required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "idempotency guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{
		gateway:    params.Gateway,
		reconciler: params.Reconciler,
		guard:      params.Guard,
		logg:       params.Logger,
	}, nil
}

// Handle verifies the signature before touching any state. A bad signature
// is CodeUnauthorized; a malformed charge is CodeValidation.
func (s *Service) Handle(ctx context.Context, rawBody []byte, signature string) (Outcome, error) {
	event, err := s.gateway.VerifyCallback(rawBody, signature)
	if err != nil {
		return "", err
	}

	charge, ok := event.(gateway.ChargeSucceeded)
	if !ok {
		s.logg.Info(s.logg.WithField(ctx, "event_type", event.Type()), "ignoring gateway event")
		return OutcomeIgnored, nil
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"reference": charge.Reference,
		"member_id": charge.MemberID,
		"cycle_id":  charge.CycleID.String(),
	})

	seen, err := s.guard.Seen(ctx, charge.Reference)
	if err != nil {
		// fall through to the reconciler, which dedups on its own
		s.logg.Warn(ctx, "idempotency guard unavailable: "+err.Error())
	} else if seen {
		return OutcomeReplayed, nil
	}

	result, err := s.reconciler.RecordConfirmedPayment(ctx, reconcile.ConfirmedPayment{
		CycleID:   charge.CycleID,
		MemberID:  charge.MemberID,
		Amount:    charge.Amount,
		Reference: charge.Reference,
	})
	if err != nil {
		return "", err
	}
	if err := s.guard.MarkProcessed(context.WithoutCancel(ctx), charge.Reference); err != nil {
		s.logg.Warn(ctx, "idempotency key not recorded: "+err.Error())
	}

	switch {
	case result.Applied:
		return OutcomeApplied, nil
	case result.Reason == reconcile.ReasonOutOfScope:
		return OutcomeOutOfScope, nil
	default:
		return OutcomeDuplicate, nil
	}
}
