// Package wallet reports merchant earnings and records payouts.
package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentloop-backend/internal/payments"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentloop-backend/pkg/errors"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/rentloop-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Summary is the wallet view for one merchant.
type Summary struct {
	MerchantID     string          `json:"merchant_id"`
	Available      decimal.Decimal `json:"available"`
	Pending        decimal.Decimal `json:"pending"`
	PaidOut        decimal.Decimal `json:"paid_out"`
	CompletedSales decimal.Decimal `json:"completed_sales"`
	AvailableCount int64           `json:"available_count"`
	PendingCount   int64           `json:"pending_count"`
	PaidOutCount   int64           `json:"paid_out_count"`
	CompletedCount int64           `json:"completed_count"`
}

// Transaction is one payment record as shown in the wallet.
type Transaction struct {
	ID                 uuid.UUID                 `json:"id"`
	OrderID            *uuid.UUID                `json:"order_id,omitempty"`
	Amount             decimal.Decimal           `json:"amount"`
	Commission         decimal.Decimal           `json:"commission"`
	MerchantAmount     decimal.Decimal           `json:"merchant_amount"`
	Status             enums.PaymentRecordStatus `json:"status"`
	PaymentMethod      enums.PaymentMethod       `json:"payment_method"`
	MerchantPaid       bool                      `json:"merchant_paid"`
	MerchantPayoutDate *time.Time                `json:"merchant_payout_date,omitempty"`
	ItemName           *string                   `json:"item_name,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
}

// TransactionList is a page of wallet transactions.
type TransactionList struct {
	Transactions []Transaction `json:"transactions"`
	NextCursor   string        `json:"next_cursor,omitempty"`
}

// PayoutInput selects which settled records to mark as paid to the merchant.
type PayoutInput struct {
	MerchantID string
	PaymentIDs []uuid.UUID
	ActorID    string
}

// PayoutResult reports what the payout flagged.
type PayoutResult struct {
	MerchantID       string          `json:"merchant_id"`
	PaymentRecordIDs []uuid.UUID     `json:"payment_record_ids"`
	Count            int             `json:"count"`
	Total            decimal.Decimal `json:"total"`
	PaidAt           time.Time       `json:"paid_at"`
}

type Service interface {
	Summary(ctx context.Context, merchantID string) (*Summary, error)
	Transactions(ctx context.Context, merchantID string, params pagination.Params) (*TransactionList, error)
	Payout(ctx context.Context, input PayoutInput) (*PayoutResult, error)
}

type service struct {
	repo   *payments.Repository
	tx     txRunner
	outbox outbox.Emitter
	now    func() time.Time
}

// NewService builds the wallet service. now may be nil.
func NewService(repo *payments.Repository, tx txRunner, emitter outbox.Emitter, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: repo, tx: tx, outbox: emitter, now: now}, nil
}

func (s *service) Summary(ctx context.Context, merchantID string) (*Summary, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id required")
	}
	totals, err := s.repo.TotalsForMerchant(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet totals")
	}
	return &Summary{
		MerchantID:     merchantID,
		Available:      totals.Available,
		Pending:        totals.Pending,
		PaidOut:        totals.PaidOut,
		CompletedSales: totals.CompletedSales,
		AvailableCount: totals.AvailableCount,
		PendingCount:   totals.PendingCount,
		PaidOutCount:   totals.PaidOutCount,
		CompletedCount: totals.CompletedCount,
	}, nil
}

func (s *service) Transactions(ctx context.Context, merchantID string, params pagination.Params) (*TransactionList, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id required")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByMerchant(ctx, merchantID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet transactions")
	}
	page, next := pagination.Page(rows, params.Limit, func(r models.PaymentRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	out := make([]Transaction, 0, len(page))
	for _, r := range page {
		out = append(out, Transaction{
			ID:                 r.ID,
			OrderID:            r.OrderID,
			Amount:             r.Amount,
			Commission:         r.Commission,
			MerchantAmount:     r.MerchantAmount,
			Status:             r.Status,
			PaymentMethod:      r.PaymentMethod,
			MerchantPaid:       r.MerchantPaid,
			MerchantPayoutDate: r.MerchantPayoutDate,
			ItemName:           r.ItemName,
			CreatedAt:          r.CreatedAt,
		})
	}
	return &TransactionList{Transactions: out, NextCursor: next}, nil
}

// Payout flags eligible records as paid. No money moves here; the transfer
// happens out of band and this is the bookkeeping for it.
func (s *service) Payout(ctx context.Context, input PayoutInput) (*PayoutResult, error) {
	merchantID := strings.TrimSpace(input.MerchantID)
	if merchantID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id required")
	}
	if strings.TrimSpace(input.ActorID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	now := s.now()
	result := &PayoutResult{MerchantID: merchantID, PaymentRecordIDs: []uuid.UUID{}, Total: decimal.Zero, PaidAt: now}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.LockPayable(ctx, merchantID, input.PaymentIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select payable records")
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(rows))
		total := decimal.Zero
		for _, row := range rows {
			ids = append(ids, row.ID)
			total = total.Add(row.MerchantAmount)
		}
		affected, err := repo.MarkMerchantPaid(ctx, ids, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark records paid")
		}
		if int(affected) != len(ids) {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment records changed during payout")
		}
		result.PaymentRecordIDs = ids
		result.Count = len(ids)
		result.Total = total.Round(2)

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutRecorded,
			AggregateType: enums.AggregateMerchant,
			AggregateID:   merchantID,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: string(enums.UserRoleAdmin)},
			OccurredAt:    now,
			Data: payloads.PayoutRecordedEvent{
				MerchantID:       merchantID,
				PaymentRecordIDs: ids,
				Count:            len(ids),
				Total:            result.Total,
				PaidAt:           now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
