// Package paylinks hands a member a checkout link for their share of the
// active bill.
package paylinks

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/gateway"
	"github.com/angelmondragon/utilitysplit/internal/notify"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type chargeSource interface {
	ChargeFor(ctx context.Context, memberID string) (*cycles.Charge, error)
}

type memberReader interface {
	Get(ctx context.Context, memberID string) (*models.Member, error)
}

// ServiceParams wire the payment-link flow.
type ServiceParams struct {
	Cycles         chargeSource
	Members        memberReader
	Gateway        gateway.PaymentGateway
	Notifier       notify.Notifier
	Logger         *logger.Logger
	CurrencySymbol string
}

// Service produces payment links.
type Service struct {
	cycles   chargeSource
	members  memberReader
	gateway  gateway.PaymentGateway
	notifier notify.Notifier
	logg     *logger.Logger
	symbol   string
}

// LinkResult describes a generated link. Delivered is false when the member
// could not be messaged privately and was pointed at the bot in the group.
type LinkResult struct {
	CycleID   uuid.UUID
	URL       string
	Reference string
	Amount    decimal.Decimal
	DueDate   time.Time
	Delivered bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Cycles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cycle engine required")
	}
	if params.Members == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "member registry required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{
		cycles:   params.Cycles,
		members:  params.Members,
		gateway:  params.Gateway,
		notifier: params.Notifier,
		logg:     params.Logger,
		symbol:   params.CurrencySymbol,
	}, nil
}

// RequestLink charges the member's current share through the gateway and
// sends them the link. The gateway gets exactly one attempt. A private
// delivery failure never fails the call. Eligibility follows the cycle
// roster, so a member deactivated after billing still gets a link.
func (s *Service) RequestLink(ctx context.Context, memberID string) (*LinkResult, error) {
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}

	charge, err := s.cycles.ChargeFor(ctx, memberID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCycleID(s.logg.WithMemberID(ctx, memberID), charge.CycleID.String())

	checkout, err := s.gateway.InitializeCharge(ctx, gateway.ChargeRequest{
		MemberID: memberID,
		CycleID:  charge.CycleID,
		Amount:   charge.Amount,
	})
	if err != nil {
		if !pkgerrors.Is(err, pkgerrors.CodeGateway) && !pkgerrors.Is(err, pkgerrors.CodeValidation) {
			err = pkgerrors.Wrap(pkgerrors.CodeGateway, err, "initialize payment")
		}
		s.logg.Error(ctx, "payment link not created", err)
		return nil, err
	}

	result := &LinkResult{
		CycleID:   charge.CycleID,
		URL:       checkout.URL,
		Reference: checkout.Reference,
		Amount:    charge.Amount,
		DueDate:   charge.DueDate,
	}

	text := fmt.Sprintf("💳 Your share of the utility bill is %s, due %s.\nTap below to pay.",
		notify.Money(s.symbol, charge.Amount), charge.DueDate.Format("Mon 2 Jan 2006"))
	delivery := s.notifier.SendToMember(ctx, memberID, text, notify.Action{Label: "Pay now", URL: checkout.URL})
	switch {
	case delivery.OK():
		result.Delivered = true
	case delivery.IsUnreachable():
		s.logg.Warn(ctx, "member unreachable in private chat; pointing them to the bot")
		fallback := fmt.Sprintf("%s, I couldn't send you a private message. Please open a chat with me, press Start, then send /pay again.", member.Mention())
		if d := s.notifier.SendToGroup(ctx, fallback); !d.OK() {
			s.logg.Error(ctx, "group fallback not delivered", d.Err)
		}
	default:
		s.logg.Error(ctx, "payment link not delivered", delivery.Err)
	}
	return result, nil
}
