package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentloop-backend/pkg/enums"
)

// Order is a rental request from one requester to one vendor.
type Order struct {
	ID uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`

	RequesterID    string  `gorm:"column:requester_id;not null"`
	RequesterName  string  `gorm:"column:requester_name;not null"`
	RequesterEmail string  `gorm:"column:requester_email;not null"`
	RequesterPhone *string `gorm:"column:requester_phone"`
	VendorID       string  `gorm:"column:vendor_id;not null"`
	VendorName     string  `gorm:"column:vendor_name;not null"`
	VendorEmail    string  `gorm:"column:vendor_email;not null"`

	Subtotal    decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	PlatformFee decimal.Decimal `gorm:"column:platform_fee;type:numeric(12,2);not null"`
	Total       decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`

	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`

	PaymentID        *string              `gorm:"column:payment_id"`
	PaymentReference *string              `gorm:"column:payment_reference"`
	PaidAmount       *decimal.Decimal     `gorm:"column:paid_amount;type:numeric(12,2)"`
	PaymentStatus    *enums.PaymentStatus `gorm:"column:payment_status;type:text"`

	CollectionToken          *string    `gorm:"column:collection_token"`
	CollectionTokenExpiresAt *time.Time `gorm:"column:collection_token_expires_at"`

	Notes              *string `gorm:"column:notes"`
	CancellationReason *string `gorm:"column:cancellation_reason"`
	VendorNotes        *string `gorm:"column:vendor_notes"`

	ApprovedAt   *time.Time `gorm:"column:approved_at"`
	PaymentDueAt *time.Time `gorm:"column:payment_due_at"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at"`
	ExpiredAt    *time.Time `gorm:"column:expired_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

// BeforeCreate assigns an id when the caller did not.
func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// IsParty reports whether userID is the requester or the vendor of the order.
func (o *Order) IsParty(userID string) bool {
	return userID != "" && (o.RequesterID == userID || o.VendorID == userID)
}
