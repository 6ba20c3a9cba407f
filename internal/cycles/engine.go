package cycles

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/utilitysplit/pkg/db"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// SplitPrecision is the number of decimal places kept for stored split
	// amounts and payments; the split is rounded half-up to this scale.
	SplitPrecision = 10
	// TotalPrecision is the scale of a bill total.
	TotalPrecision = 2

	defaultGracePeriod = 7 * 24 * time.Hour
	createLockKey      = "cycles:create"
)

// DefaultLateFeeMultiplier scales the split once a cycle is overdue.
var DefaultLateFeeMultiplier = decimal.RequireFromString("1.10")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EngineParams wires the billing cycle engine.
type EngineParams struct {
	DB                txRunner
	Repo              Repository
	Logger            *logger.Logger
	GracePeriod       time.Duration
	LateFeeMultiplier decimal.Decimal
	Clock             func() time.Time
}

// Engine owns the billing cycle state machine. Every write to a cycle goes
// through Mutate, which serializes writers per cycle.
type Engine struct {
	db      txRunner
	repo    Repository
	logg    *logger.Logger
	grace   time.Duration
	lateFee decimal.Decimal
	now     func() time.Time
	locks   *keyLocker
}

// NewEngine builds the billing cycle engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cycles repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	lateFee := params.LateFeeMultiplier
	if lateFee.IsZero() {
		lateFee = DefaultLateFeeMultiplier
	}
	if !lateFee.GreaterThan(decimal.NewFromInt(1)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "late fee multiplier must be greater than 1")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		db:      params.DB,
		repo:    params.Repo,
		logg:    params.Logger,
		grace:   grace,
		lateFee: lateFee,
		now:     clock,
		locks:   newKeyLocker(),
	}, nil
}

// CreateInput describes a new bill.
type CreateInput struct {
	TotalAmount decimal.Decimal
	Roster      []models.Member
	CreatedBy   string
}

// CreateCycle closes the active cycle, if any, and opens a new one billed to
// roster.
func (e *Engine) CreateCycle(ctx context.Context, input CreateInput) (*models.BillingCycle, error) {
	if !input.TotalAmount.IsPositive() {
		return nil, reasonError(pkgerrors.CodeValidation, ReasonInvalidAmount, "the bill amount must be greater than zero")
	}
	if !input.TotalAmount.Equal(input.TotalAmount.Round(TotalPrecision)) {
		return nil, reasonError(pkgerrors.CodeValidation, ReasonInvalidAmount, "the bill amount can have at most two decimal places")
	}
	createdBy := strings.TrimSpace(input.CreatedBy)
	if createdBy == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "creator required")
	}
	roster := dedupeRoster(input.Roster)
	if len(roster) == 0 {
		return nil, errEmptyRoster()
	}

	releaseCreate, err := e.locks.Acquire(ctx, createLockKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire create lock")
	}
	defer releaseCreate()

	current, err := e.ActiveCycle(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		releaseCurrent, err := e.locks.Acquire(ctx, lockKey(current.ID))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cycle lock")
		}
		defer releaseCurrent()
	}

	now := e.now().UTC()
	split := input.TotalAmount.DivRound(decimal.NewFromInt(int64(len(roster))), SplitPrecision)
	cycle := &models.BillingCycle{
		ID:          uuid.New(),
		TotalAmount: input.TotalAmount,
		SplitAmount: split,
		DueDate:     now.Add(e.grace),
		IsActive:    true,
		CreatedBy:   createdBy,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, m := range roster {
		cycle.Roster = append(cycle.Roster, models.CycleMember{
			CycleID:     cycle.ID,
			MemberID:    m.MemberID,
			DisplayName: m.DisplayName,
			Handle:      m.Handle,
			Position:    i,
		})
	}

	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		if current != nil {
			previous, err := repo.LockByID(ctx, current.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock active cycle")
			}
			if closeCycle(previous, now) {
				ok, err := repo.UpdateVersioned(ctx, previous, previous.Version)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close active cycle")
				}
				if !ok {
					return errConcurrentUpdate()
				}
			}
		}
		if err := repo.Create(ctx, cycle); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "another bill became active, try again")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cycle")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := e.logg.WithCycleID(ctx, cycle.ID.String())
	fields := map[string]any{
		"total_amount": cycle.TotalAmount.String(),
		"split_amount": cycle.SplitAmount.String(),
		"roster_size":  len(cycle.Roster),
	}
	if current != nil {
		fields["closed_cycle_id"] = current.ID.String()
	}
	e.logg.Info(e.logg.WithFields(logCtx, fields), "billing cycle created")
	return cycle, nil
}

// ActiveCycle returns the active cycle, or nil when there is none.
func (e *Engine) ActiveCycle(ctx context.Context) (*models.BillingCycle, error) {
	cycle, err := e.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cycle")
	}
	return cycle, nil
}

// Get loads a cycle by id.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*models.BillingCycle, error) {
	cycle, err := e.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cycle")
	}
	return cycle, nil
}

// Charge is what a member currently owes on the active cycle.
type Charge struct {
	CycleID        uuid.UUID
	MemberID       string
	Amount         decimal.Decimal
	DueDate        time.Time
	LateFeeApplied bool
}

// ChargeFor returns the member's outstanding share of the active cycle.
func (e *Engine) ChargeFor(ctx context.Context, memberID string) (*Charge, error) {
	cycle, err := e.ActiveCycle(ctx)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, errNoActiveCycle()
	}
	if !cycle.OnRoster(memberID) {
		return nil, errNotBilled()
	}
	if cycle.PaymentFor(memberID) != nil {
		return nil, errAlreadyPaid()
	}
	return &Charge{
		CycleID:        cycle.ID,
		MemberID:       memberID,
		Amount:         cycle.SplitAmount,
		DueDate:        cycle.DueDate,
		LateFeeApplied: cycle.LateFeeApplied,
	}, nil
}

// LateFeeResult reports whether a late fee was applied and the resulting cycle.
type LateFeeResult struct {
	Applied bool
	Cycle   *models.BillingCycle
}

// ApplyLateFee scales the active cycle's split once it is overdue. A zero
// multiplier selects the configured default.
func (e *Engine) ApplyLateFee(ctx context.Context, multiplier decimal.Decimal) (*LateFeeResult, error) {
	if multiplier.IsZero() {
		multiplier = e.lateFee
	}
	if !multiplier.GreaterThan(decimal.NewFromInt(1)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "late fee multiplier must be greater than 1")
	}

	active, err := e.ActiveCycle(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return &LateFeeResult{}, nil
	}

	applied := false
	cycle, err := e.Mutate(ctx, active.ID, func(m *Mutation) error {
		c := m.Cycle
		if !c.IsActive || c.LateFeeApplied || !m.Now().After(c.DueDate) {
			return nil
		}
		c.SplitAmount = c.SplitAmount.Mul(multiplier).Round(SplitPrecision)
		c.LateFeeApplied = true
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		logCtx := e.logg.WithCycleID(ctx, cycle.ID.String())
		e.logg.Info(e.logg.WithFields(logCtx, map[string]any{
			"multiplier":   multiplier.String(),
			"split_amount": cycle.SplitAmount.String(),
		}), "late fee applied")
	}
	return &LateFeeResult{Applied: applied, Cycle: cycle}, nil
}

// Close deactivates the cycle. Closing a closed cycle is a no-op.
func (e *Engine) Close(ctx context.Context, cycleID uuid.UUID) (*models.BillingCycle, error) {
	return e.Mutate(ctx, cycleID, func(m *Mutation) error {
		m.Close()
		return nil
	})
}

// Mutate runs fn against the locked cycle inside one transaction and
// persists the result with a version check. Errors returned by fn roll the
// transaction back and are returned unchanged.
func (e *Engine) Mutate(ctx context.Context, cycleID uuid.UUID, fn func(m *Mutation) error) (*models.BillingCycle, error) {
	release, err := e.locks.Acquire(ctx, lockKey(cycleID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cycle lock")
	}
	defer release()

	var result *models.BillingCycle
	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		cycle, err := repo.LockByID(ctx, cycleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cycle")
		}

		before := snapshotOf(cycle)
		m := &Mutation{Cycle: cycle, ctx: ctx, repo: repo, now: e.now().UTC()}
		if err := fn(m); err != nil {
			return err
		}

		if m.appended || snapshotOf(cycle) != before {
			ok, err := repo.UpdateVersioned(ctx, cycle, before.version)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cycle")
			}
			if !ok {
				return errConcurrentUpdate()
			}
		}
		result = cycle
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Mutation is the view of a locked cycle handed to Mutate callbacks.
type Mutation struct {
	Cycle *models.BillingCycle

	ctx      context.Context
	repo     Repository
	now      time.Time
	appended bool
}

// Now is the timestamp shared by every write in this mutation.
func (m *Mutation) Now() time.Time {
	return m.now
}

// AppendPayment inserts the payment and adds it to the in-memory cycle.
func (m *Mutation) AppendPayment(payment models.CyclePayment) (*models.CyclePayment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CycleID = m.Cycle.ID
	if payment.PaidAt.IsZero() {
		payment.PaidAt = m.now
	}
	if err := m.repo.AppendPayment(m.ctx, &payment); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, errDuplicatePayment(err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment")
	}
	m.Cycle.Payments = append(m.Cycle.Payments, payment)
	m.appended = true
	return &m.Cycle.Payments[len(m.Cycle.Payments)-1], nil
}

// Close deactivates the cycle and reports whether this call closed it.
func (m *Mutation) Close() bool {
	return closeCycle(m.Cycle, m.now)
}

func closeCycle(cycle *models.BillingCycle, now time.Time) bool {
	if !cycle.IsActive {
		return false
	}
	cycle.IsActive = false
	closedAt := now
	cycle.ClosedAt = &closedAt
	return true
}

type cycleSnapshot struct {
	split   string
	active  bool
	lateFee bool
	closed  bool
	version int64
}

func snapshotOf(c *models.BillingCycle) cycleSnapshot {
	return cycleSnapshot{
		split:   c.SplitAmount.String(),
		active:  c.IsActive,
		lateFee: c.LateFeeApplied,
		closed:  c.ClosedAt != nil,
		version: c.Version,
	}
}

func lockKey(cycleID uuid.UUID) string {
	return "cycle:" + cycleID.String()
}

func dedupeRoster(roster []models.Member) []models.Member {
	seen := make(map[string]struct{}, len(roster))
	out := make([]models.Member, 0, len(roster))
	for _, m := range roster {
		id := strings.TrimSpace(m.MemberID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, m)
	}
	return out
}
