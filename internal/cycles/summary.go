package cycles

import (
	"context"

	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaidEntry pairs a roster entry with its recorded payment.
type PaidEntry struct {
	Member  models.CycleMember
	Payment models.CyclePayment
}

// Summary is the outstanding balance view of one cycle.
type Summary struct {
	Cycle     *models.BillingCycle
	Paid      []PaidEntry
	Unpaid    []models.CycleMember
	Collected decimal.Decimal
	Remaining decimal.Decimal
}

// Summarize splits a loaded cycle's roster into paid and unpaid members.
func Summarize(cycle *models.BillingCycle) *Summary {
	summary := &Summary{
		Cycle:     cycle,
		Collected: decimal.Zero,
		Remaining: decimal.Zero,
	}
	for _, entry := range cycle.Roster {
		payment := cycle.PaymentFor(entry.MemberID)
		if payment == nil {
			summary.Unpaid = append(summary.Unpaid, entry)
			continue
		}
		summary.Paid = append(summary.Paid, PaidEntry{Member: entry, Payment: *payment})
		summary.Collected = summary.Collected.Add(payment.Amount)
	}
	if cycle.IsActive {
		summary.Remaining = cycle.SplitAmount.Mul(decimal.NewFromInt(int64(len(summary.Unpaid))))
	}
	return summary
}

// Outstanding summarizes the given cycle, or the active one when cycleID is nil.
func (e *Engine) Outstanding(ctx context.Context, cycleID *uuid.UUID) (*Summary, error) {
	var (
		cycle *models.BillingCycle
		err   error
	)
	if cycleID != nil {
		cycle, err = e.Get(ctx, *cycleID)
	} else {
		cycle, err = e.ActiveCycle(ctx)
		if err == nil && cycle == nil {
			err = errNoActiveCycle()
		}
	}
	if err != nil {
		return nil, err
	}
	return Summarize(cycle), nil
}

// HistoryParams pages through past cycles, newest first.
type HistoryParams struct {
	Limit  int
	Cursor string
}

// HistoryResult wraps a page of cycles and the cursor for the next page.
type HistoryResult struct {
	Items  []models.BillingCycle
	Cursor string
}

// History lists cycles with their payments, newest first.
func (e *Engine) History(ctx context.Context, params HistoryParams) (*HistoryResult, error) {
	query := listParams{Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := e.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cycles")
	}
	cursor := ""
	if next != nil {
		cursor = next.Encode()
	}
	return &HistoryResult{Items: rows, Cursor: cursor}, nil
}
