// Package reminders decides who gets nudged about the active bill and how
// loudly. Planning is a pure function of the clock and the cycle; sending is
// left to the caller.
package reminders

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angelmondragon/utilitysplit/internal/notify"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	"github.com/angelmondragon/utilitysplit/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// NotificationPlan is the group reminder to send for one tick.
type NotificationPlan struct {
	CycleID  uuid.UUID
	Urgency  enums.Urgency
	DaysLeft int
	Unpaid   []models.CycleMember
	Amount   decimal.Decimal
	Text     string
}

// DaysLeft returns the whole days until due, rounded up. Overdue cycles
// yield zero or a negative count.
func DaysLeft(now, due time.Time) int {
	return int(math.Ceil(float64(due.Sub(now)) / float64(day)))
}

// Plan returns the reminder for cycle at now, or nil when there is nothing
// to send: no cycle, a closed cycle, or nobody left unpaid.
func Plan(now time.Time, cycle *models.BillingCycle, currencySymbol string) *NotificationPlan {
	if cycle == nil || !cycle.IsActive {
		return nil
	}
	var unpaid []models.CycleMember
	for _, entry := range cycle.Roster {
		if cycle.PaymentFor(entry.MemberID) == nil {
			unpaid = append(unpaid, entry)
		}
	}
	if len(unpaid) == 0 {
		return nil
	}

	daysLeft := DaysLeft(now, cycle.DueDate)
	urgency := enums.UrgencyForDaysLeft(daysLeft)
	plan := &NotificationPlan{
		CycleID:  cycle.ID,
		Urgency:  urgency,
		DaysLeft: daysLeft,
		Unpaid:   unpaid,
		Amount:   cycle.SplitAmount,
	}
	plan.Text = render(plan, currencySymbol)
	return plan
}

func render(plan *NotificationPlan, symbol string) string {
	mentions := make([]string, 0, len(plan.Unpaid))
	for _, entry := range plan.Unpaid {
		mentions = append(mentions, entry.Mention())
	}

	var b strings.Builder
	switch plan.Urgency {
	case enums.UrgencyFinal:
		if plan.DaysLeft <= 0 {
			b.WriteString("🚨 FINAL NOTICE: the utility bill is overdue.")
		} else {
			b.WriteString("🚨 FINAL NOTICE: the utility bill is due within 24 hours.")
		}
	case enums.UrgencyUrgent:
		b.WriteString("⚠️ URGENT: only 2 days left to pay the utility bill.")
	default:
		fmt.Fprintf(&b, "📢 Reminder: the utility bill is due in %d days.", plan.DaysLeft)
	}
	fmt.Fprintf(&b, "\nStill unpaid: %s", notify.JoinMentions(mentions))
	fmt.Fprintf(&b, "\nAmount per person: %s", notify.Money(symbol, plan.Amount))
	b.WriteString("\nSend /pay to get your payment link.")
	return b.String()
}
