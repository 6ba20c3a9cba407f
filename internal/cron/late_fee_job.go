package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/notify"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/shopspring/decimal"
)

type lateFeeApplier interface {
	ApplyLateFee(ctx context.Context, multiplier decimal.Decimal) (*cycles.LateFeeResult, error)
}

// LateFeeJobParams configure the overdue late-fee job.
type LateFeeJobParams struct {
	Logger         *logger.Logger
	Cycles         lateFeeApplier
	Notifier       notify.Notifier
	Multiplier     decimal.Decimal
	CurrencySymbol string
}

// NewLateFeeJob builds the cron job that applies the one-shot late fee to an
// overdue cycle.
func NewLateFeeJob(params LateFeeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cycles == nil {
		return nil, fmt.Errorf("late fee applier required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &lateFeeJob{
		logg:       params.Logger,
		cycles:     params.Cycles,
		notifier:   params.Notifier,
		multiplier: params.Multiplier,
		symbol:     params.CurrencySymbol,
	}, nil
}

type lateFeeJob struct {
	logg       *logger.Logger
	cycles     lateFeeApplier
	notifier   notify.Notifier
	multiplier decimal.Decimal
	symbol     string
}

func (j *lateFeeJob) Name() string { return "cycle-late-fee" }

func (j *lateFeeJob) Run(ctx context.Context) error {
	result, err := j.cycles.ApplyLateFee(ctx, j.multiplier)
	if err != nil {
		return fmt.Errorf("apply late fee: %w", err)
	}
	if !result.Applied {
		return nil
	}

	cycle := result.Cycle
	text := fmt.Sprintf("⏰ The utility bill is overdue and a late fee has been applied.\nAmount per person is now %s for everyone who has not paid yet.",
		notify.Money(j.symbol, cycle.SplitAmount))
	logCtx := j.logg.WithCycleID(ctx, cycle.ID.String())
	// the fee is already committed and the next tick is a no-op, so a lost
	// announcement is logged rather than failing the run
	if d := j.notifier.SendToGroup(logCtx, text); !d.OK() {
		j.logg.Warn(j.logg.WithFields(logCtx, map[string]any{
			"status": string(d.Status),
			"error":  fmt.Sprint(d.Err),
		}), "late fee announcement not delivered")
		return nil
	}
	j.logg.Info(logCtx, "late fee applied")
	return nil
}
