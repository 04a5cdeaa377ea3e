// Package payments persists the payment records that back merchant wallets.
package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentloop-backend/pkg/commission"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
)

// RecordInput describes a payment against one order.
type RecordInput struct {
	OrderID           uuid.UUID
	Gross             decimal.Decimal
	Rate              decimal.Decimal
	Status            enums.PaymentRecordStatus
	Method            enums.PaymentMethod
	PayerID           string
	MerchantID        string
	ExternalPaymentID *string
	GatewayReference  *string
	ItemName          *string
	MerchantPaid      bool
	PaidAt            *time.Time
}

// NewRecord splits the gross amount and builds the row to upsert.
func NewRecord(input RecordInput) models.PaymentRecord {
	split := commission.SplitAmount(input.Gross, input.Rate)
	orderID := input.OrderID
	record := models.PaymentRecord{
		OrderID:           &orderID,
		Amount:            commission.Round(input.Gross),
		Commission:        split.Commission,
		MerchantAmount:    split.Net,
		CommissionRate:    input.Rate,
		Status:            input.Status,
		PaymentMethod:     input.Method,
		PayerID:           input.PayerID,
		MerchantID:        input.MerchantID,
		ExternalPaymentID: input.ExternalPaymentID,
		GatewayReference:  input.GatewayReference,
		ItemName:          input.ItemName,
		MerchantPaid:      input.MerchantPaid,
	}
	if input.MerchantPaid {
		record.MerchantPayoutDate = input.PaidAt
	}
	return record
}
