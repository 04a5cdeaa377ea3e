// Package wallet exposes merchant wallet views and admin payouts.
package wallet

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rentloop-backend/api/middleware"
	"github.com/angelmondragon/rentloop-backend/api/responses"
	"github.com/angelmondragon/rentloop-backend/api/validators"
	internalwallet "github.com/angelmondragon/rentloop-backend/internal/wallet"
	pkgerrors "github.com/angelmondragon/rentloop-backend/pkg/errors"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
	"github.com/angelmondragon/rentloop-backend/pkg/pagination"
)

type payoutRequest struct {
	PaymentIDs []string `json:"payment_ids,omitempty" validate:"omitempty,dive,uuid"`
}

// Summary returns the authenticated vendor's wallet balances.
func Summary(svc internalwallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		summary, err := svc.Summary(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Transactions pages through the vendor's payment records, newest first.
func Transactions(svc internalwallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.Transactions(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminPayout flags a merchant's settled records as paid out.
func AdminPayout(svc internalwallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		actorID := middleware.UserIDFromContext(r.Context())
		if actorID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		merchantID := strings.TrimSpace(chi.URLParam(r, "merchantId"))
		if merchantID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required"))
			return
		}

		var payload payoutRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids := make([]uuid.UUID, 0, len(payload.PaymentIDs))
		for _, raw := range payload.PaymentIDs {
			// validated above
			ids = append(ids, uuid.MustParse(raw))
		}

		result, err := svc.Payout(r.Context(), internalwallet.PayoutInput{
			MerchantID: merchantID,
			PaymentIDs: ids,
			ActorID:    actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"merchant_id":  merchantID,
				"payout_count": result.Count,
				"payout_total": result.Total.StringFixed(2),
			})
			logg.Info(ctx, "wallet.payout.recorded")
		}
		responses.WriteSuccess(w, result)
	}
}
