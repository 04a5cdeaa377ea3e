package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentloop-backend/pkg/enums"
)

// OrderCreatedEvent tells the vendor a new rental request is waiting.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	RequesterID   string              `json:"requesterId"`
	VendorID      string              `json:"vendorId"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	Total         decimal.Decimal     `json:"total"`
	ExpiresAt     time.Time           `json:"expiresAt"`
}

// OrderStatusChangedEvent covers approve, decline, cancel, expire and complete.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	RequesterID string            `json:"requesterId"`
	VendorID    string            `json:"vendorId"`
	Status      enums.OrderStatus `json:"status"`
	Reason      string            `json:"reason,omitempty"`
	ChangedAt   time.Time         `json:"changedAt"`
	DueAt       *time.Time        `json:"dueAt,omitempty"`
}

// OrderPaymentReceivedEvent is emitted once per order when payment is confirmed.
type OrderPaymentReceivedEvent struct {
	OrderID          uuid.UUID       `json:"orderId"`
	RequesterID      string          `json:"requesterId"`
	VendorID         string          `json:"vendorId"`
	PaymentID        string          `json:"paymentId"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	ReceivedAt       time.Time       `json:"receivedAt"`
}

// PayoutRecordedEvent reports payment records flagged as paid to a merchant.
type PayoutRecordedEvent struct {
	MerchantID       string          `json:"merchantId"`
	PaymentRecordIDs []uuid.UUID     `json:"paymentRecordIds"`
	Count            int             `json:"count"`
	Total            decimal.Decimal `json:"total"`
	PaidAt           time.Time       `json:"paidAt"`
}
