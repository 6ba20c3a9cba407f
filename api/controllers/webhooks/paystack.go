package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/utilitysplit/api/responses"
	paystackwebhook "github.com/angelmondragon/utilitysplit/internal/webhooks/paystack"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/angelmondragon/utilitysplit/pkg/paystack"
)

const maxWebhookBytes = 1 << 20

// PaystackWebhookService processes a verified gateway callback.
type PaystackWebhookService interface {
	Handle(ctx context.Context, rawBody []byte, signature string) (paystackwebhook.Outcome, error)
}

// PaystackWebhook accepts gateway callbacks. Every handled outcome answers
// 200 so the gateway stops redelivering; a bad signature answers 401.
func PaystackWebhook(svc PaystackWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(paystack.SignatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paystack signature missing"))
			return
		}

		outcome, err := svc.Handle(ctx, payload, signature)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}
