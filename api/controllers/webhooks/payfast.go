package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/rentloop-backend/api/responses"
	"github.com/angelmondragon/rentloop-backend/internal/webhooks/payfast"
	pkgerrors "github.com/angelmondragon/rentloop-backend/pkg/errors"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
)

const maxNotificationBytes = 64 << 10

type PayFastWebhookService interface {
	Authenticate(n *payfast.Notification) error
	Handle(ctx context.Context, n *payfast.Notification) (payfast.Outcome, error)
}

type payfastWebhookGuard interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// PayFastWebhook handles PayFast instant transaction notifications.
func PayFastWebhook(svc PayFastWebhookService, guard payfastWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "notification exceeds %d bytes", tooLarge.Limit))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		notification, err := payfast.ParseForm(string(body))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.Authenticate(notification); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		deliveryID := notification.IdempotencyID()
		if guard != nil && deliveryID != "" {
			alreadyProcessed, err := guard.CheckAndMark(ctx, deliveryID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if alreadyProcessed {
				responses.WriteAck(w)
				return
			}
		}

		outcome, err := svc.Handle(ctx, notification)
		if err != nil {
			if guard != nil && deliveryID != "" {
				_ = guard.Delete(ctx, deliveryID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"pf_payment_id":  notification.PFPaymentID,
				"payment_status": notification.PaymentStatus,
				"outcome":        string(outcome),
			})
			logg.Info(logCtx, "payfast notification processed")
		}
		responses.WriteAck(w)
	}
}
