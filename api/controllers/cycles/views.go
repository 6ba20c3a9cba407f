package cycles

import (
	"time"

	"github.com/shopspring/decimal"

	cyclesvc "github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/reconcile"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
)

type rosterEntry struct {
	MemberID    string  `json:"member_id"`
	DisplayName string  `json:"display_name"`
	Handle      *string `json:"handle,omitempty"`
}

type paymentView struct {
	MemberID   string    `json:"member_id"`
	Amount     string    `json:"amount"`
	Reference  string    `json:"reference"`
	Source     string    `json:"source"`
	RecordedBy *string   `json:"recorded_by,omitempty"`
	PaidAt     time.Time `json:"paid_at"`
}

type cycleView struct {
	ID             string        `json:"id"`
	TotalAmount    string        `json:"total_amount"`
	SplitAmount    string        `json:"split_amount"`
	DueDate        time.Time     `json:"due_date"`
	IsActive       bool          `json:"is_active"`
	LateFeeApplied bool          `json:"late_fee_applied"`
	ClosedAt       *time.Time    `json:"closed_at,omitempty"`
	Roster         []rosterEntry `json:"roster"`
	Payments       []paymentView `json:"payments"`
	CreatedAt      time.Time     `json:"created_at"`
}

type summaryView struct {
	Cycle     cycleView     `json:"cycle"`
	Paid      []paymentView `json:"paid"`
	Unpaid    []rosterEntry `json:"unpaid"`
	Collected string        `json:"collected"`
	Remaining string        `json:"remaining"`
}

type historyView struct {
	Cycles []cycleView `json:"cycles"`
	Cursor string      `json:"cursor"`
}

type paymentResultView struct {
	Applied     bool         `json:"applied"`
	CycleClosed bool         `json:"cycle_closed"`
	PaidCount   int          `json:"paid_count"`
	RosterSize  int          `json:"roster_size"`
	Payment     *paymentView `json:"payment,omitempty"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toRosterEntry(m models.CycleMember) rosterEntry {
	return rosterEntry{MemberID: m.MemberID, DisplayName: m.DisplayName, Handle: m.Handle}
}

func toPaymentView(p models.CyclePayment) paymentView {
	return paymentView{
		MemberID:   p.MemberID,
		Amount:     money(p.Amount),
		Reference:  p.Reference,
		Source:     string(p.Source),
		RecordedBy: p.RecordedBy,
		PaidAt:     p.PaidAt,
	}
}

func toCycleView(c *models.BillingCycle) cycleView {
	view := cycleView{
		ID:             c.ID.String(),
		TotalAmount:    money(c.TotalAmount),
		SplitAmount:    money(c.SplitAmount),
		DueDate:        c.DueDate,
		IsActive:       c.IsActive,
		LateFeeApplied: c.LateFeeApplied,
		ClosedAt:       c.ClosedAt,
		Roster:         make([]rosterEntry, 0, len(c.Roster)),
		Payments:       make([]paymentView, 0, len(c.Payments)),
		CreatedAt:      c.CreatedAt,
	}
	for _, m := range c.Roster {
		view.Roster = append(view.Roster, toRosterEntry(m))
	}
	for _, p := range c.Payments {
		view.Payments = append(view.Payments, toPaymentView(p))
	}
	return view
}

func toSummaryView(s *cyclesvc.Summary) summaryView {
	view := summaryView{
		Cycle:     toCycleView(s.Cycle),
		Paid:      make([]paymentView, 0, len(s.Paid)),
		Unpaid:    make([]rosterEntry, 0, len(s.Unpaid)),
		Collected: money(s.Collected),
		Remaining: money(s.Remaining),
	}
	for _, entry := range s.Paid {
		view.Paid = append(view.Paid, toPaymentView(entry.Payment))
	}
	for _, m := range s.Unpaid {
		view.Unpaid = append(view.Unpaid, toRosterEntry(m))
	}
	return view
}

func toPaymentResultView(r *reconcile.Result) paymentResultView {
	view := paymentResultView{
		Applied:     r.Applied,
		CycleClosed: r.CycleClosed,
		PaidCount:   r.PaidCount,
		RosterSize:  r.RosterSize,
	}
	if r.Payment != nil {
		p := toPaymentView(*r.Payment)
		view.Payment = &p
	}
	return view
}
