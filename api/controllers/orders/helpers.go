// Package orders exposes the requester and vendor order endpoints.
package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rentloop-backend/api/middleware"
	"github.com/angelmondragon/rentloop-backend/api/validators"
	internalorders "github.com/angelmondragon/rentloop-backend/internal/orders"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentloop-backend/pkg/errors"
	"github.com/angelmondragon/rentloop-backend/pkg/pagination"
)

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

func requireUser(r *http.Request) (string, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return userID, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

// listFilters reads the status query parameter, comma separated or repeated.
func listFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	values, err := validators.ParseQueryList(r, "status", len(enums.AllOrderStatuses()))
	if err != nil {
		return filters, err
	}
	for _, value := range values {
		status, err := enums.ParseOrderStatus(value)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
				WithDetails(map[string]any{"field": "status"})
		}
		filters.Statuses = append(filters.Statuses, status)
	}
	return filters, nil
}
