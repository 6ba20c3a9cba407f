package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/utilitysplit/internal/notify"
	"github.com/angelmondragon/utilitysplit/internal/reminders"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
)

type activeCycleReader interface {
	ActiveCycle(ctx context.Context) (*models.BillingCycle, error)
}

// ReminderJobParams configure the unpaid-member reminder job.
type ReminderJobParams struct {
	Logger         *logger.Logger
	Cycles         activeCycleReader
	Notifier       notify.Notifier
	CurrencySymbol string
}

// NewReminderJob builds the cron job that nudges the group about unpaid shares.
func NewReminderJob(params ReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cycles == nil {
		return nil, fmt.Errorf("cycle reader required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &reminderJob{
		logg:     params.Logger,
		cycles:   params.Cycles,
		notifier: params.Notifier,
		symbol:   params.CurrencySymbol,
		now:      time.Now,
	}, nil
}

type reminderJob struct {
	logg     *logger.Logger
	cycles   activeCycleReader
	notifier notify.Notifier
	symbol   string
	now      func() time.Time
}

func (j *reminderJob) Name() string { return "cycle-reminder" }

func (j *reminderJob) Run(ctx context.Context) error {
	cycle, err := j.cycles.ActiveCycle(ctx)
	if err != nil {
		return fmt.Errorf("load active cycle: %w", err)
	}
	plan := reminders.Plan(j.now().UTC(), cycle, j.symbol)
	if plan == nil {
		j.logg.Info(ctx, "no reminder to send")
		return nil
	}

	logCtx := j.logg.WithCycleID(ctx, plan.CycleID.String())
	logCtx = j.logg.WithFields(logCtx, map[string]any{
		"urgency":   plan.Urgency.String(),
		"days_left": plan.DaysLeft,
		"unpaid":    len(plan.Unpaid),
	})
	if d := j.notifier.SendToGroup(logCtx, plan.Text); !d.OK() {
		return fmt.Errorf("send reminder: %s: %w", d.Status, d.Err)
	}
	j.logg.Info(logCtx, "reminder sent")
	return nil
}
