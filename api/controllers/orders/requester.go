package orders

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentloop-backend/api/responses"
	"github.com/angelmondragon/rentloop-backend/api/validators"
	internalorders "github.com/angelmondragon/rentloop-backend/internal/orders"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentloop-backend/pkg/errors"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
)

type createOrderItemRequest struct {
	ItemID     string          `json:"item_id" validate:"required"`
	Name       string          `json:"name" validate:"required,max=200"`
	ImageURL   *string         `json:"image_url,omitempty" validate:"omitempty,url"`
	Quantity   int             `json:"quantity" validate:"required,min=1"`
	UnitPrice  decimal.Decimal `json:"unit_price" validate:"money"`
	VendorID   string          `json:"vendor_id" validate:"required"`
	VendorName string          `json:"vendor_name" validate:"required"`
}

type createOrderRequest struct {
	RequesterName  string                   `json:"requester_name" validate:"required,max=200"`
	RequesterEmail string                   `json:"requester_email" validate:"required,email"`
	RequesterPhone *string                  `json:"requester_phone,omitempty" validate:"omitempty,max=32"`
	VendorEmail    string                   `json:"vendor_email" validate:"required,email"`
	PaymentMethod  string                   `json:"payment_method" validate:"required,oneof=card cash"`
	Notes          *string                  `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items          []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type cancelOrderRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Create places a new order on behalf of the authenticated requester.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]internalorders.Item, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, internalorders.Item{
				ItemID:     strings.TrimSpace(item.ItemID),
				Name:       validators.SanitizeString(item.Name, 200),
				ImageURL:   item.ImageURL,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
				VendorID:   strings.TrimSpace(item.VendorID),
				VendorName: validators.SanitizeString(item.VendorName, 200),
			})
		}

		order, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			Requester: internalorders.Party{
				ID:    userID,
				Name:  validators.SanitizeString(payload.RequesterName, 200),
				Email: strings.TrimSpace(payload.RequesterEmail),
				Phone: payload.RequesterPhone,
			},
			VendorEmail:   strings.TrimSpace(payload.VendorEmail),
			Items:         items,
			PaymentMethod: enums.PaymentMethod(payload.PaymentMethod),
			Notes:         payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderView(order))
	}
}

// List returns the authenticated requester's orders.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := listFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListForRequester(r.Context(), userID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order visible to either party.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// History returns the status audit trail of an order.
func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.History(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"order_id": orderID, "history": history})
	}
}

// Cancel cancels an order as either party. Mounted on both the requester and vendor routes.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cancelOrderRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID: orderID,
			ActorID: userID,
			Reason:  payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// CollectionToken issues the single-use QR token to the requester.
func CollectionToken(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.GenerateCollectionToken(r.Context(), internalorders.GenerateTokenInput{
			OrderID:     orderID,
			RequesterID: userID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
