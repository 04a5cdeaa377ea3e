package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentloop-backend/pkg/enums"
)

// PaymentRecord is the settlement row backing the merchant wallet.
type PaymentRecord struct {
	ID                 uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            *uuid.UUID                `gorm:"column:order_id;type:uuid;uniqueIndex"`
	Amount             decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null"`
	Commission         decimal.Decimal           `gorm:"column:commission;type:numeric(12,2);not null"`
	MerchantAmount     decimal.Decimal           `gorm:"column:merchant_amount;type:numeric(12,2);not null"`
	CommissionRate     decimal.Decimal           `gorm:"column:commission_rate;type:numeric(5,4);not null"`
	Status             enums.PaymentRecordStatus `gorm:"column:status;type:text;not null"`
	PaymentMethod      enums.PaymentMethod       `gorm:"column:payment_method;type:text;not null"`
	MerchantPaid       bool                      `gorm:"column:merchant_paid;not null;default:false"`
	MerchantPayoutDate *time.Time                `gorm:"column:merchant_payout_date"`
	PayerID            string                    `gorm:"column:payer_id;not null"`
	MerchantID         string                    `gorm:"column:merchant_id;not null;index"`
	ExternalPaymentID  *string                   `gorm:"column:external_payment_id"`
	GatewayReference   *string                   `gorm:"column:gateway_reference"`
	ItemName           *string                   `gorm:"column:item_name"`
	CreatedAt          time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

func (p *PaymentRecord) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
