// Package notify defines how the billing core talks to people: a direct
// message to one member or a post in the household group.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMemberUnreachable marks a member the transport cannot message
// privately, e.g. one who never opened a chat with the bot.
var ErrMemberUnreachable = errors.New("member unreachable")

// Action is a link rendered as a clickable button.
type Action struct {
	Label string
	URL   string
}

// DeliveryStatus classifies the outcome of a send.
type DeliveryStatus string

const (
	StatusDelivered   DeliveryStatus = "delivered"
	StatusUnreachable DeliveryStatus = "unreachable"
	StatusFailed      DeliveryStatus = "failed"
)

// Delivery is the typed result of a send. Senders never return bare errors so
// callers decide locally how to degrade.
type Delivery struct {
	Status DeliveryStatus
	Err    error
}

// Delivered builds a successful delivery.
func Delivered() Delivery {
	return Delivery{Status: StatusDelivered}
}

// Unreachable builds a delivery for a member that cannot be messaged.
func Unreachable(err error) Delivery {
	if err == nil {
		err = ErrMemberUnreachable
	} else if !errors.Is(err, ErrMemberUnreachable) {
		err = errors.Join(ErrMemberUnreachable, err)
	}
	return Delivery{Status: StatusUnreachable, Err: err}
}

// Failed builds a delivery that failed for a transport reason.
func Failed(err error) Delivery {
	return Delivery{Status: StatusFailed, Err: err}
}

// OK reports whether the message reached its recipient.
func (d Delivery) OK() bool {
	return d.Status == StatusDelivered
}

// IsUnreachable reports whether the recipient could not be messaged privately.
func (d Delivery) IsUnreachable() bool {
	return d.Status == StatusUnreachable
}

// Notifier sends chat messages on behalf of the billing core.
type Notifier interface {
	SendToMember(ctx context.Context, memberID, text string, actions ...Action) Delivery
	SendToGroup(ctx context.Context, text string, actions ...Action) Delivery
}

// Money renders an amount for display, rounded to two decimal places.
func Money(symbol string, amount decimal.Decimal) string {
	return symbol + amount.StringFixed(2)
}

// JoinMentions renders a list of member mentions for a chat message.
func JoinMentions(mentions []string) string {
	return strings.Join(mentions, ", ")
}
