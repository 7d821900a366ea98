package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/inkwell-systems/comicforge-backend/api/responses"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
)

type razorpayWebhookService interface {
	Process(ctx context.Context, body []byte, signature, eventID string) error
}

// RazorpayWebhook settles payment lifecycle events pushed by the gateway.
// Anything the service chooses to ignore is still acknowledged with 200 so
// the gateway stops redelivering it.
func RazorpayWebhook(svc razorpayWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		// The signature covers the exact bytes on the wire, so the body is
		// read before any JSON decoding touches it.
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(signatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "webhook signature missing"))
			return
		}

		if err := svc.Process(ctx, payload, signature, r.Header.Get(eventIDHeader)); err != nil {
			// replays and already-settled rows surface as conflicts, but the
			// gateway must still see 200 or it redelivers forever
			if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeConflict {
				if logg != nil {
					logg.Info(ctx, "webhook replay acknowledged: "+appErr.Message())
				}
				responses.WriteSuccess(w, nil)
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
