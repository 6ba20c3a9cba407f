package reconcile

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/notify/notifytest"
	"github.com/angelmondragon/utilitysplit/pkg/db"
	"github.com/angelmondragon/utilitysplit/pkg/db/dbtest"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	"github.com/angelmondragon/utilitysplit/pkg/enums"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/angelmondragon/utilitysplit/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminID = "admin"

type staticAdmins struct{}

func (staticAdmins) IsAdmin(memberID string) bool { return memberID == adminID }

type harness struct {
	engine   *cycles.Engine
	service  *Service
	notifier *notifytest.Recorder
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "reconcile-test", Output: io.Discard})
	engine, err := cycles.NewEngine(cycles.EngineParams{
		DB:     db.Wrap(conn),
		Repo:   cycles.NewRepository(conn),
		Logger: logg,
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	recorder := notifytest.New()
	service, err := NewService(ServiceParams{
		Cycles:         engine,
		Admins:         staticAdmins{},
		Notifier:       recorder,
		Metrics:        metrics.NewReconcileMetrics(reg),
		Logger:         logg,
		CurrencySymbol: "₦",
	})
	require.NoError(t, err)
	return &harness{engine: engine, service: service, notifier: recorder, registry: reg}
}

func (h *harness) createCycle(t *testing.T, total string, ids ...string) *models.BillingCycle {
	t.Helper()
	roster := make([]models.Member, 0, len(ids))
	for _, id := range ids {
		handle := strings.ToLower(id)
		roster = append(roster, models.Member{MemberID: id, DisplayName: id, Handle: &handle, Role: enums.MemberRoleTenant, IsActive: true})
	}
	cycle, err := h.engine.CreateCycle(context.Background(), cycles.CreateInput{
		TotalAmount: decimal.RequireFromString(total),
		Roster:      roster,
		CreatedBy:   adminID,
	})
	require.NoError(t, err)
	return cycle
}

func (h *harness) confirm(t *testing.T, cycleID uuid.UUID, memberID, ref string) *Result {
	t.Helper()
	res, err := h.service.RecordConfirmedPayment(context.Background(), ConfirmedPayment{
		CycleID:   cycleID,
		MemberID:  memberID,
		Amount:    decimal.NewFromInt(100),
		Reference: ref,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) payments(t *testing.T, cycleID uuid.UUID) []models.CyclePayment {
	t.Helper()
	cycle, err := h.engine.Get(context.Background(), cycleID)
	require.NoError(t, err)
	return cycle.Payments
}

func TestReconcileScenarioThreeMembers(t *testing.T) {
	h := newHarness(t)
	cycle := h.createCycle(t, "300", "A", "B", "C")
	require.True(t, cycle.SplitAmount.Equal(decimal.NewFromInt(100)))

	res := h.confirm(t, cycle.ID, "A", "r1")
	assert.True(t, res.Applied)
	assert.False(t, res.CycleClosed)
	payments := h.payments(t, cycle.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, "A", payments[0].MemberID)
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(100)))

	res = h.confirm(t, cycle.ID, "A", "r1")
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonDuplicate, res.Reason)
	assert.Len(t, h.payments(t, cycle.ID), 1)

	res = h.confirm(t, cycle.ID, "B", "r2")
	assert.True(t, res.Applied)
	assert.False(t, res.CycleClosed)

	res = h.confirm(t, cycle.ID, "C", "r3")
	assert.True(t, res.Applied)
	assert.True(t, res.CycleClosed)

	stored, err := h.engine.Get(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.NotNil(t, stored.ClosedAt)

	for _, member := range []string{"A", "B", "C"} {
		res = h.confirm(t, cycle.ID, member, "late-"+member)
		assert.False(t, res.Applied)
		assert.Equal(t, ReasonOutOfScope, res.Reason)
	}
	assert.Len(t, h.payments(t, cycle.ID), 3)

	groups := h.notifier.GroupTexts()
	require.Len(t, groups, 4)
	assert.Contains(t, groups[0], "@a paid ₦100.00")
	assert.Contains(t, groups[0], "Progress: 1/3 paid.")
	assert.Contains(t, groups[2], "Progress: 3/3 paid.")
	assert.Contains(t, groups[3], "All payments completed, bill closed")
	assert.Len(t, h.notifier.DirectTo("A"), 1)

	assert.Equal(t, float64(3), sumCounter(t, h.registry, "payments_applied_total"))
	assert.Equal(t, float64(1), sumCounter(t, h.registry, "cycles_closed_total"))
	assert.Equal(t, float64(4), sumCounter(t, h.registry, "payments_rejected_total"))
}

func TestDuplicateMemberWithNewReferenceIsIgnored(t *testing.T) {
	h := newHarness(t)
	cycle := h.createCycle(t, "200", "A", "B")

	require.True(t, h.confirm(t, cycle.ID, "A", "r1").Applied)
	res := h.confirm(t, cycle.ID, "A", "r9")
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonDuplicate, res.Reason)

	res = h.confirm(t, cycle.ID, "B", "r1")
	assert.False(t, res.Applied, "reference reuse by another member is a duplicate")
	assert.Len(t, h.payments(t, cycle.ID), 1)
}

func TestOutOfScopeConfirmationsNeverMutate(t *testing.T) {
	h := newHarness(t)
	old := h.createCycle(t, "200", "A", "B")
	current := h.createCycle(t, "300", "A", "B", "C")

	res := h.confirm(t, current.ID, "Z", "rz")
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonOutOfScope, res.Reason)

	res = h.confirm(t, old.ID, "A", "ra")
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonOutOfScope, res.Reason)

	res = h.confirm(t, uuid.New(), "A", "rb")
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonOutOfScope, res.Reason)

	assert.Empty(t, h.payments(t, old.ID))
	assert.Empty(t, h.payments(t, current.ID))
	assert.Empty(t, h.notifier.GroupTexts())
}

func TestConcurrentConfirmationsCloseExactlyOnce(t *testing.T) {
	h := newHarness(t)
	const n = 12
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("M%02d", i)
	}
	cycle := h.createCycle(t, "1200", ids...)

	var closes int32
	var applied int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		for dup := 0; dup < 2; dup++ {
			wg.Add(1)
			go func(member, ref string) {
				defer wg.Done()
				res, err := h.service.RecordConfirmedPayment(context.Background(), ConfirmedPayment{
					CycleID:   cycle.ID,
					MemberID:  member,
					Amount:    decimal.NewFromInt(100),
					Reference: ref,
				})
				if !assert.NoError(t, err) {
					return
				}
				if res.Applied {
					atomic.AddInt32(&applied, 1)
				}
				if res.CycleClosed {
					atomic.AddInt32(&closes, 1)
				}
			}(ids[i], "ref-"+ids[i])
		}
	}
	wg.Wait()

	assert.Equal(t, int32(n), applied)
	assert.Equal(t, int32(1), closes)
	payments := h.payments(t, cycle.ID)
	assert.Len(t, payments, n)

	stored, err := h.engine.Get(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestRecordManualPayment(t *testing.T) {
	h := newHarness(t)
	cycle := h.createCycle(t, "200", "A", "B")
	ctx := context.Background()

	_, err := h.service.RecordManualPayment(ctx, "A", ManualPayment{CycleID: cycle.ID, MemberID: "B", Amount: decimal.NewFromInt(100)})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	res, err := h.service.RecordManualPayment(ctx, adminID, ManualPayment{CycleID: cycle.ID, MemberID: "B", Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	require.True(t, res.Applied)
	assert.True(t, strings.HasPrefix(res.Payment.Reference, "manual-"))
	assert.Equal(t, enums.PaymentSourceManual, res.Payment.Source)
	require.NotNil(t, res.Payment.RecordedBy)
	assert.Equal(t, adminID, *res.Payment.RecordedBy)

	res, err = h.service.RecordManualPayment(ctx, adminID, ManualPayment{CycleID: cycle.ID, MemberID: "B", Amount: decimal.NewFromInt(100), Reference: "cash"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonDuplicate, res.Reason)

	_, err = h.service.RecordManualPayment(ctx, adminID, ManualPayment{CycleID: uuid.New(), MemberID: "B", Amount: decimal.NewFromInt(100)})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestManualPaymentKeepsSplitScale(t *testing.T) {
	h := newHarness(t)
	cycle := h.createCycle(t, "100", "A", "B", "C")

	res, err := h.service.RecordManualPayment(context.Background(), adminID, ManualPayment{
		CycleID:  cycle.ID,
		MemberID: "B",
		Amount:   cycle.SplitAmount,
	})
	require.NoError(t, err)
	require.True(t, res.Applied)

	stored := h.payments(t, cycle.ID)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Amount.Equal(decimal.RequireFromString("33.3333333333")), "got %s", stored[0].Amount)
}

func TestRecordConfirmedPaymentValidatesInput(t *testing.T) {
	h := newHarness(t)
	cycle := h.createCycle(t, "100", "A")
	cases := []ConfirmedPayment{
		{MemberID: "A", Amount: decimal.NewFromInt(1), Reference: "r"},
		{CycleID: cycle.ID, Amount: decimal.NewFromInt(1), Reference: "r"},
		{CycleID: cycle.ID, MemberID: "A", Amount: decimal.Zero, Reference: "r"},
		{CycleID: cycle.ID, MemberID: "A", Amount: decimal.NewFromInt(1), Reference: "  "},
		{CycleID: cycle.ID, MemberID: "A", Amount: decimal.RequireFromString("1.00000000001"), Reference: "r"},
	}
	for i, tc := range cases {
		_, err := h.service.RecordConfirmedPayment(context.Background(), tc)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "case %d", i)
	}
}

func TestNotificationFailuresDoNotFailReconciliation(t *testing.T) {
	h := newHarness(t)
	h.notifier.GroupErr = fmt.Errorf("telegram down")
	h.notifier.Unreachable["A"] = true
	cycle := h.createCycle(t, "100", "A")

	res := h.confirm(t, cycle.ID, "A", "r1")
	assert.True(t, res.Applied)
	assert.True(t, res.CycleClosed)
}

func sumCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
