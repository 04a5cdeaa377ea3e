package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
)

// ListFilters narrows order lists by status.
type ListFilters struct {
	Statuses []enums.OrderStatus
}

// Party identifies the requester or vendor on an order.
type Party struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
}

// ItemView is one order line as returned to clients.
type ItemView struct {
	ItemID     string          `json:"item_id"`
	Name       string          `json:"name"`
	ImageURL   *string         `json:"image_url,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
	VendorID   string          `json:"vendor_id"`
	VendorName string          `json:"vendor_name"`
}

// OrderView is the client representation of an order. The collection token
// itself is never included; only the requester receives it when issued.
type OrderView struct {
	ID                       uuid.UUID            `json:"id"`
	Requester                Party                `json:"requester"`
	Vendor                   Party                `json:"vendor"`
	Items                    []ItemView           `json:"items"`
	Subtotal                 decimal.Decimal      `json:"subtotal"`
	PlatformFee              decimal.Decimal      `json:"platform_fee"`
	Total                    decimal.Decimal      `json:"total"`
	Status                   enums.OrderStatus    `json:"status"`
	PaymentMethod            enums.PaymentMethod  `json:"payment_method"`
	PaymentStatus            *enums.PaymentStatus `json:"payment_status,omitempty"`
	PaymentID                *string              `json:"payment_id,omitempty"`
	PaymentReference         *string              `json:"payment_reference,omitempty"`
	PaidAmount               *decimal.Decimal     `json:"paid_amount,omitempty"`
	CollectionTokenExpiresAt *time.Time           `json:"collection_token_expires_at,omitempty"`
	Notes                    *string              `json:"notes,omitempty"`
	VendorNotes              *string              `json:"vendor_notes,omitempty"`
	CancellationReason       *string              `json:"cancellation_reason,omitempty"`
	CreatedAt                time.Time            `json:"created_at"`
	UpdatedAt                time.Time            `json:"updated_at"`
	ApprovedAt               *time.Time           `json:"approved_at,omitempty"`
	PaymentDueAt             *time.Time           `json:"payment_due_at,omitempty"`
	ExpiresAt                *time.Time           `json:"expires_at,omitempty"`
	CompletedAt              *time.Time           `json:"completed_at,omitempty"`
	CancelledAt              *time.Time           `json:"cancelled_at,omitempty"`
	ExpiredAt                *time.Time           `json:"expired_at,omitempty"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// StatusUpdateView is one audit trail entry.
type StatusUpdateView struct {
	Status    enums.OrderStatus `json:"status"`
	Note      string            `json:"note"`
	Actor     string            `json:"actor"`
	CreatedAt time.Time         `json:"created_at"`
}

// CollectionTokenResult is returned to the requester for QR rendering.
type CollectionTokenResult struct {
	OrderID   uuid.UUID `json:"order_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpireResult summarises one expiry sweep.
type ExpireResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
}

// NewOrderView maps a stored order into its client representation.
func NewOrderView(order *models.Order) OrderView {
	items := make([]ItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemView{
			ItemID:     item.ItemID,
			Name:       item.Name,
			ImageURL:   item.ImageURL,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			LineTotal:  item.LineTotal,
			VendorID:   item.VendorID,
			VendorName: item.VendorName,
		})
	}
	return OrderView{
		ID: order.ID,
		Requester: Party{
			ID:    order.RequesterID,
			Name:  order.RequesterName,
			Email: order.RequesterEmail,
			Phone: order.RequesterPhone,
		},
		Vendor: Party{
			ID:    order.VendorID,
			Name:  order.VendorName,
			Email: order.VendorEmail,
		},
		Items:                    items,
		Subtotal:                 order.Subtotal,
		PlatformFee:              order.PlatformFee,
		Total:                    order.Total,
		Status:                   order.Status,
		PaymentMethod:            order.PaymentMethod,
		PaymentStatus:            order.PaymentStatus,
		PaymentID:                order.PaymentID,
		PaymentReference:         order.PaymentReference,
		PaidAmount:               order.PaidAmount,
		CollectionTokenExpiresAt: order.CollectionTokenExpiresAt,
		Notes:                    order.Notes,
		VendorNotes:              order.VendorNotes,
		CancellationReason:       order.CancellationReason,
		CreatedAt:                order.CreatedAt,
		UpdatedAt:                order.UpdatedAt,
		ApprovedAt:               order.ApprovedAt,
		PaymentDueAt:             order.PaymentDueAt,
		ExpiresAt:                order.ExpiresAt,
		CompletedAt:              order.CompletedAt,
		CancelledAt:              order.CancelledAt,
		ExpiredAt:                order.ExpiredAt,
	}
}
