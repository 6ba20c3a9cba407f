package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/paystack"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	metaMemberID = "member_id"
	metaCycleID  = "cycle_id"
)

type paystackAPI interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.Authorization, error)
	VerifySignature(body []byte, signature string) bool
}

// PaystackParams configure the Paystack-backed gateway.
type PaystackParams struct {
	Client      paystackAPI
	EmailDomain string
	CallbackURL string
	Currency    string
}

// Paystack implements PaymentGateway on top of the Paystack REST API.
type Paystack struct {
	client      paystackAPI
	emailDomain string
	callbackURL string
	currency    string
}

// NewPaystack builds the gateway adapter.
func NewPaystack(params PaystackParams) (*Paystack, error) {
	if params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack client required")
	}
	domain := strings.TrimSpace(params.EmailDomain)
	if domain == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payer email domain required")
	}
	return &Paystack{
		client:      params.Client,
		emailDomain: domain,
		callbackURL: params.CallbackURL,
		currency:    params.Currency,
	}, nil
}

// MinorUnits converts an amount to kobo, rounding up so a share is never
// under-collected.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Ceil().IntPart()
}

// InitializeCharge makes a single attempt; any failure is a gateway error.
func (p *Paystack) InitializeCharge(ctx context.Context, req ChargeRequest) (*Checkout, error) {
	if req.MemberID == "" || req.CycleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member and cycle are required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}
	auth, err := p.client.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       req.MemberID + "@" + p.emailDomain,
		Amount:      MinorUnits(req.Amount),
		Currency:    p.currency,
		CallbackURL: p.callbackURL,
		Metadata: map[string]string{
			metaMemberID: req.MemberID,
			metaCycleID:  req.CycleID.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "initialize payment")
	}
	return &Checkout{URL: auth.AuthorizationURL, Reference: auth.Reference}, nil
}

// VerifyCallback authenticates the raw body before decoding anything.
func (p *Paystack) VerifyCallback(rawBody []byte, signature string) (Event, error) {
	if !p.client.VerifySignature(rawBody, signature) {
		return nil, ErrInvalidSignature
	}
	return DecodePaystackEvent(rawBody)
}

// DecodePaystackEvent strictly decodes an already-authenticated body.
// charge.success needs a reference, a positive amount and metadata naming the
// member and the cycle; every other event type decodes to Other.
func DecodePaystackEvent(rawBody []byte) (Event, error) {
	var env paystack.Event
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}
	if env.Event == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event type missing")
	}
	if env.Event != paystack.EventChargeSuccess {
		return Other{Kind: env.Event}, nil
	}

	var data paystack.ChargeData
	if len(env.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge data missing")
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed charge data")
	}
	reference := strings.TrimSpace(data.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing")
	}
	if data.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}

	meta, err := decodeMetadata(data.Metadata)
	if err != nil {
		return nil, err
	}
	memberID := strings.TrimSpace(meta[metaMemberID])
	if memberID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge metadata missing member_id")
	}
	cycleID, err := uuid.Parse(strings.TrimSpace(meta[metaCycleID]))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge metadata missing cycle_id")
	}

	return ChargeSucceeded{
		Reference: reference,
		Amount:    decimal.NewFromInt(data.Amount).Shift(-2),
		MemberID:  memberID,
		CycleID:   cycleID,
	}, nil
}

func decodeMetadata(raw json.RawMessage) (map[string]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge metadata missing")
	}
	var fields map[string]any
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed charge metadata")
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}
