package payments

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/utilitysplit/api/middleware"
	"github.com/angelmondragon/utilitysplit/api/responses"
	"github.com/angelmondragon/utilitysplit/internal/paylinks"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
)

// LinkService issues payment links for the active cycle.
type LinkService interface {
	RequestLink(ctx context.Context, memberID string) (*paylinks.LinkResult, error)
}

type linkView struct {
	CycleID   string    `json:"cycle_id"`
	URL       string    `json:"url"`
	Reference string    `json:"reference"`
	Amount    string    `json:"amount"`
	DueDate   time.Time `json:"due_date"`
	Delivered bool      `json:"delivered"`
}

// RequestPaymentLink creates a checkout for the caller's share and sends it
// to them privately. The link is returned either way; delivered reports
// whether the private message went through.
func RequestPaymentLink(svc LinkService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment link service unavailable"))
			return
		}

		result, err := svc.RequestLink(ctx, middleware.MemberIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, linkView{
			CycleID:   result.CycleID.String(),
			URL:       result.URL,
			Reference: result.Reference,
			Amount:    result.Amount.StringFixed(2),
			DueDate:   result.DueDate,
			Delivered: result.Delivered,
		})
	}
}
