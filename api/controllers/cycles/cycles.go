package cycles

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/utilitysplit/api/middleware"
	"github.com/angelmondragon/utilitysplit/api/responses"
	"github.com/angelmondragon/utilitysplit/api/validators"
	"github.com/angelmondragon/utilitysplit/internal/billing"
	cyclesvc "github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/reconcile"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/angelmondragon/utilitysplit/pkg/pagination"
)

// Service is the slice of the billing service the cycle routes use.
type Service interface {
	CreateBill(ctx context.Context, actorID string, input billing.CreateBillInput) (*models.BillingCycle, error)
	Balance(ctx context.Context) (*cyclesvc.Summary, error)
	History(ctx context.Context, params cyclesvc.HistoryParams) (*cyclesvc.HistoryResult, error)
	MarkPaidOnCycle(ctx context.Context, actorID string, cycleID uuid.UUID, memberID string, amount decimal.Decimal, reference string) (*reconcile.Result, error)
}

type createCycleRequest struct {
	TotalAmount decimal.Decimal `json:"total_amount" validate:"gt=0"`
	Handles     []string        `json:"handles" validate:"omitempty,max=50,dive,required,max=33"`
}

type manualPaymentRequest struct {
	MemberID  string          `json:"member_id" validate:"required,max=64"`
	Amount    decimal.Decimal `json:"amount" validate:"gte=0"`
	Reference string          `json:"reference" validate:"max=128"`
}

// AdminCreateCycle opens a new bill, replacing the active one.
func AdminCreateCycle(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		var req createCycleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		cycle, err := svc.CreateBill(ctx, middleware.MemberIDFromContext(ctx), billing.CreateBillInput{
			TotalAmount: req.TotalAmount,
			Handles:     req.Handles,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toCycleView(cycle))
	}
}

// ActiveCycle returns the outstanding balance of the active bill.
func ActiveCycle(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		summary, err := svc.Balance(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSummaryView(summary))
	}
}

// CycleHistory pages through bills, newest first.
func CycleHistory(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.History(ctx, cyclesvc.HistoryParams{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		view := historyView{Cycles: make([]cycleView, 0, len(result.Items)), Cursor: result.Cursor}
		for i := range result.Items {
			view.Cycles = append(view.Cycles, toCycleView(&result.Items[i]))
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminRecordPayment records an out-of-band payment on a cycle. A zero or
// missing amount means the member's share.
func AdminRecordPayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		cycleID, err := validators.PathUUID(r, "cycleId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req manualPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.MarkPaidOnCycle(ctx, middleware.MemberIDFromContext(ctx), cycleID, req.MemberID, req.Amount, req.Reference)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !result.Applied {
			responses.WriteError(ctx, logg, w, rejection(result.Reason))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPaymentResultView(result))
	}
}

func rejection(reason string) error {
	details := map[string]any{"reason": reason}
	if reason == reconcile.ReasonDuplicate {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment already recorded").WithDetails(details)
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "member is not billed on an open cycle").WithDetails(details)
}
