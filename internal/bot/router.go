// Package bot maps chat commands onto billing operations.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/angelmondragon/utilitysplit/internal/billing"
	"github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/members"
	"github.com/angelmondragon/utilitysplit/internal/notify"
	"github.com/angelmondragon/utilitysplit/internal/paylinks"
	"github.com/angelmondragon/utilitysplit/internal/reconcile"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

const historyPageSize = 5

type registry interface {
	Register(ctx context.Context, input members.RegisterInput) (*members.RegisterResult, error)
}

type billingOps interface {
	CreateBill(ctx context.Context, actorID string, input billing.CreateBillInput) (*models.BillingCycle, error)
	SetMemberActive(ctx context.Context, actorID, memberID string, active bool) (*models.Member, error)
	Tenants(ctx context.Context, actorID string) ([]models.Member, error)
	MarkPaid(ctx context.Context, actorID, memberID string, amount decimal.Decimal, reference string) (*reconcile.Result, error)
	Balance(ctx context.Context) (*cycles.Summary, error)
	History(ctx context.Context, params cycles.HistoryParams) (*cycles.HistoryResult, error)
}

type linkRequester interface {
	RequestLink(ctx context.Context, memberID string) (*paylinks.LinkResult, error)
}

type RouterParams struct {
	Members        registry
	Billing        billingOps
	Links          linkRequester
	Logger         *logger.Logger
	CurrencySymbol string
}

// Router turns one incoming message into at most one reply.
type Router struct {
	members registry
	billing billingOps
	links   linkRequester
	logg    *logger.Logger
	symbol  string
}

func NewRouter(params RouterParams) (*Router, error) {
	if params.Members == nil || params.Billing == nil || params.Links == nil {
		return nil, fmt.Errorf("members, billing and links are required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Router{
		members: params.Members,
		billing: params.Billing,
		links:   params.Links,
		logg:    params.Logger,
		symbol:  params.CurrencySymbol,
	}, nil
}

// Handle returns the reply for msg, or "" when nothing should be sent.
func (r *Router) Handle(ctx context.Context, msg *tgbotapi.Message) string {
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return ""
	}
	caller := userID(msg.From)
	ctx = r.logg.WithFields(r.logg.WithMemberID(ctx, caller), map[string]any{"command": msg.Command()})

	var (
		reply string
		err   error
	)
	switch msg.Command() {
	case "start":
		reply, err = r.start(ctx, msg.From)
	case "newbill":
		reply, err = r.newBill(ctx, caller, msg.CommandArguments())
	case "activate", "register":
		reply, err = r.setActive(ctx, caller, msg, true)
	case "deactivate", "remove":
		reply, err = r.setActive(ctx, caller, msg, false)
	case "tenants":
		reply, err = r.tenants(ctx, caller)
	case "pay":
		reply, err = r.pay(ctx, caller)
	case "balance":
		reply, err = r.balance(ctx)
	case "history":
		reply, err = r.history(ctx)
	case "markpaid":
		reply, err = r.markPaid(ctx, caller, msg)
	case "help":
		reply = helpText
	default:
		return ""
	}
	if err != nil {
		return r.failure(ctx, err)
	}
	return reply
}

const helpText = "Commands:\n" +
	"/start – register yourself\n" +
	"/pay – get your payment link\n" +
	"/balance – who has paid on the current bill\n" +
	"/history – recent bills\n\n" +
	"Admin:\n" +
	"/newbill <amount> [@handle ...]\n" +
	"/activate, /deactivate – reply to a tenant's message\n" +
	"/tenants\n" +
	"/markpaid [amount] [reference] – reply to a tenant's message"

func (r *Router) start(ctx context.Context, from *tgbotapi.User) (string, error) {
	res, err := r.members.Register(ctx, identity(from))
	if err != nil {
		return "", err
	}
	if res.Created {
		return fmt.Sprintf("✅ Registered successfully as %s", res.Member.Role), nil
	}
	return fmt.Sprintf("👋 Welcome back, %s\nRole: %s", res.Member.DisplayName, res.Member.Role), nil
}

func (r *Router) newBill(ctx context.Context, caller, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "❌ Usage: /newbill 120000 [@handle ...]", nil
	}
	amount, err := parseAmount(fields[0])
	if err != nil {
		return "❌ Usage: /newbill 120000 [@handle ...]", nil
	}
	cycle, err := r.billing.CreateBill(ctx, caller, billing.CreateBillInput{TotalAmount: amount, Handles: fields[1:]})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Bill created for %d people, %s each.", len(cycle.Roster), notify.Money(r.symbol, cycle.SplitAmount)), nil
}

func (r *Router) setActive(ctx context.Context, caller string, msg *tgbotapi.Message, active bool) (string, error) {
	target := repliedUser(msg)
	if target == nil {
		return fmt.Sprintf("⚠ Reply to the tenant's message with /%s", msg.Command()), nil
	}
	if active {
		if _, err := r.members.Register(ctx, identity(target)); err != nil {
			return "", err
		}
	}
	member, err := r.billing.SetMemberActive(ctx, caller, userID(target), active)
	if err != nil {
		return "", err
	}
	if active {
		return fmt.Sprintf("✅ %s is active and will be included in new bills.", member.DisplayName), nil
	}
	return fmt.Sprintf("🗑 %s deactivated and will be left out of new bills.", member.DisplayName), nil
}

func (r *Router) tenants(ctx context.Context, caller string) (string, error) {
	list, err := r.billing.Tenants(ctx, caller)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "No tenants registered yet.", nil
	}
	var b strings.Builder
	b.WriteString("🏠 Registered Tenants:\n\n")
	for i, m := range list {
		status := ""
		if !m.IsActive {
			status = " (inactive)"
		}
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, m.DisplayName, status)
	}
	return b.String(), nil
}

func (r *Router) pay(ctx context.Context, caller string) (string, error) {
	link, err := r.links.RequestLink(ctx, caller)
	if err != nil {
		return "", err
	}
	if link.Delivered {
		return "📬 I've sent your payment link in a private message.", nil
	}
	// the link flow already asked the member to open a private chat
	return "", nil
}

func (r *Router) balance(ctx context.Context) (string, error) {
	summary, err := r.billing.Balance(ctx)
	if err != nil {
		return "", err
	}
	cycle := summary.Cycle
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Current bill: %s total, %s per person, due %s\n",
		notify.Money(r.symbol, cycle.TotalAmount), notify.Money(r.symbol, cycle.SplitAmount), cycle.DueDate.Format("Mon Jan 2"))
	fmt.Fprintf(&b, "Paid: %d/%d\n", len(summary.Paid), len(cycle.Roster))
	for _, p := range summary.Paid {
		fmt.Fprintf(&b, "✅ %s – %s\n", p.Member.DisplayName, notify.Money(r.symbol, p.Payment.Amount))
	}
	for _, m := range summary.Unpaid {
		fmt.Fprintf(&b, "⏳ %s\n", m.Mention())
	}
	fmt.Fprintf(&b, "Outstanding: %s", notify.Money(r.symbol, summary.Remaining))
	return b.String(), nil
}

func (r *Router) history(ctx context.Context) (string, error) {
	page, err := r.billing.History(ctx, cycles.HistoryParams{Limit: historyPageSize})
	if err != nil {
		return "", err
	}
	if len(page.Items) == 0 {
		return "No bills yet.", nil
	}
	var b strings.Builder
	b.WriteString("🧾 Recent bills:\n")
	for _, c := range page.Items {
		status := "open"
		if !c.IsActive {
			status = "closed"
		}
		fmt.Fprintf(&b, "• %s – %s, %d/%d paid (%s)\n",
			c.CreatedAt.Format("2 Jan 2006"), notify.Money(r.symbol, c.TotalAmount), len(c.Payments), len(c.Roster), status)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Router) markPaid(ctx context.Context, caller string, msg *tgbotapi.Message) (string, error) {
	target := repliedUser(msg)
	if target == nil {
		return "⚠ Reply to the tenant's message with /markpaid [amount] [reference]", nil
	}
	fields := strings.Fields(msg.CommandArguments())
	amount := decimal.Zero
	reference := ""
	if len(fields) > 0 {
		parsed, err := parseAmount(fields[0])
		if err != nil {
			return "❌ Usage: /markpaid [amount] [reference]", nil
		}
		amount = parsed
	}
	if len(fields) > 1 {
		reference = fields[1]
	}
	res, err := r.billing.MarkPaid(ctx, caller, userID(target), amount, reference)
	if err != nil {
		return "", err
	}
	switch {
	case res.Applied:
		// the reconciler posts the receipt to the group
		return "", nil
	case res.Reason == reconcile.ReasonDuplicate:
		return "⚠ That payment is already recorded.", nil
	default:
		return "⚠ That member is not on the current bill.", nil
	}
}

func identity(u *tgbotapi.User) members.RegisterInput {
	return members.RegisterInput{
		MemberID:    userID(u),
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Handle:      u.UserName,
	}
}

func userID(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}

func repliedUser(msg *tgbotapi.Message) *tgbotapi.User {
	if msg.ReplyToMessage == nil {
		return nil
	}
	return msg.ReplyToMessage.From
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
