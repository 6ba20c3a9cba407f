// Package gateway defines the payment processor capability used by the
// payment-link flow and the webhook intake.
package gateway

import (
	"context"

	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidSignature is returned when a callback fails authentication.
var ErrInvalidSignature = pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")

// ChargeRequest asks the processor for a checkout for one member's share.
type ChargeRequest struct {
	MemberID string
	CycleID  uuid.UUID
	Amount   decimal.Decimal
}

// Checkout is where the payer completes the charge.
type Checkout struct {
	URL       string
	Reference string
}

// Event is a verified, decoded callback: ChargeSucceeded or Other.
type Event interface {
	Type() string
}

// ChargeSucceeded confirms that a member paid Amount toward CycleID.
type ChargeSucceeded struct {
	Reference string
	Amount    decimal.Decimal
	MemberID  string
	CycleID   uuid.UUID
}

func (ChargeSucceeded) Type() string { return "charge.success" }

// Other is any authentic event this system does not act on.
type Other struct {
	Kind string
}

func (o Other) Type() string { return o.Kind }

// PaymentGateway initializes charges and authenticates callbacks.
type PaymentGateway interface {
	InitializeCharge(ctx context.Context, req ChargeRequest) (*Checkout, error)
	VerifyCallback(rawBody []byte, signature string) (Event, error)
}
