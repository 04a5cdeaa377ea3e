package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/rentloop-backend/pkg/commission"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	"github.com/angelmondragon/rentloop-backend/pkg/pagination"
)

// Totals aggregates the merchant's payment records.
type Totals struct {
	Available      decimal.Decimal
	Pending        decimal.Decimal
	PaidOut        decimal.Decimal
	CompletedSales decimal.Decimal
	AvailableCount int64
	PendingCount   int64
	PaidOutCount   int64
	CompletedCount int64
}

// Repository reads and writes payment_records.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// upsertColumns never includes merchant_paid or merchant_payout_date so a
// replayed notification cannot undo a recorded payout.
var upsertColumns = []string{
	"amount",
	"commission",
	"merchant_amount",
	"commission_rate",
	"status",
	"payment_method",
	"payer_id",
	"merchant_id",
	"external_payment_id",
	"gateway_reference",
	"item_name",
	"updated_at",
}

// UpsertByOrder inserts the record or refreshes the existing row for the same order.
// A row already marked PAID keeps its status. The stored row is returned.
func (r *Repository) UpsertByOrder(ctx context.Context, record models.PaymentRecord) (*models.PaymentRecord, error) {
	if record.OrderID == nil || *record.OrderID == uuid.Nil {
		return nil, errors.New("payment record order id required")
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Neq{Column: clause.Column{Table: models.PaymentRecord{}.TableName(), Name: "status"}, Value: enums.PaymentRecordPaid},
			}},
		}).
		Create(&record).Error
	if err != nil {
		return nil, err
	}
	return r.FindByOrder(ctx, *record.OrderID)
}

func (r *Repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// TotalsForMerchant computes the wallet aggregates in a single pass.
func (r *Repository) TotalsForMerchant(ctx context.Context, merchantID string) (Totals, error) {
	var row struct {
		Available      decimal.Decimal
		Pending        decimal.Decimal
		PaidOut        decimal.Decimal
		CompletedSales decimal.Decimal
		AvailableCount int64
		PendingCount   int64
		PaidOutCount   int64
		CompletedCount int64
	}
	settled := enums.SettledPaymentRecordStatuses
	err := r.db.WithContext(ctx).Raw(`
SELECT
  COALESCE(SUM(CASE WHEN status IN ? AND merchant_paid = ? THEN merchant_amount ELSE 0 END), 0) AS available,
  COALESCE(SUM(CASE WHEN status = ? THEN merchant_amount ELSE 0 END), 0) AS pending,
  COALESCE(SUM(CASE WHEN merchant_paid = ? THEN merchant_amount ELSE 0 END), 0) AS paid_out,
  COALESCE(SUM(CASE WHEN status IN ? THEN amount ELSE 0 END), 0) AS completed_sales,
  COUNT(CASE WHEN status IN ? AND merchant_paid = ? THEN 1 END) AS available_count,
  COUNT(CASE WHEN status = ? THEN 1 END) AS pending_count,
  COUNT(CASE WHEN merchant_paid = ? THEN 1 END) AS paid_out_count,
  COUNT(CASE WHEN status IN ? THEN 1 END) AS completed_count
FROM payment_records
WHERE merchant_id = ?`,
		settled, false,
		enums.PaymentRecordPending,
		true,
		settled,
		settled, false,
		enums.PaymentRecordPending,
		true,
		settled,
		merchantID,
	).Scan(&row).Error
	if err != nil {
		return Totals{}, err
	}
	// sqlite sums numerics as floats; postgres is exact already.
	return Totals{
		Available:      commission.Round(row.Available),
		Pending:        commission.Round(row.Pending),
		PaidOut:        commission.Round(row.PaidOut),
		CompletedSales: commission.Round(row.CompletedSales),
		AvailableCount: row.AvailableCount,
		PendingCount:   row.PendingCount,
		PaidOutCount:   row.PaidOutCount,
		CompletedCount: row.CompletedCount,
	}, nil
}

// ListByMerchant returns records newest first, one extra row past the limit for cursor detection.
func (r *Repository) ListByMerchant(ctx context.Context, merchantID string, params pagination.Params) ([]models.PaymentRecord, error) {
	query, err := pagination.Keyset(r.db.WithContext(ctx).Where("merchant_id = ?", merchantID), params)
	if err != nil {
		return nil, err
	}
	var rows []models.PaymentRecord
	err = query.Find(&rows).Error
	return rows, err
}

// LockPayable selects settled, unpaid records for the merchant and locks them for update.
func (r *Repository) LockPayable(ctx context.Context, merchantID string, ids []uuid.UUID) ([]models.PaymentRecord, error) {
	query := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("merchant_id = ? AND merchant_paid = ? AND status IN ?", merchantID, false, enums.SettledPaymentRecordStatuses)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	var rows []models.PaymentRecord
	err := query.Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// MarkMerchantPaid flags the records as paid out. Rows already paid are left alone.
func (r *Repository) MarkMerchantPaid(ctx context.Context, ids []uuid.UUID, paidAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("id IN ? AND merchant_paid = ?", ids, false).
		Updates(map[string]any{
			"merchant_paid":        true,
			"merchant_payout_date": paidAt,
			"updated_at":           paidAt,
		})
	return res.RowsAffected, res.Error
}

// UpsertTx runs UpsertByOrder inside the caller's transaction.
func (r *Repository) UpsertTx(ctx context.Context, tx *gorm.DB, record models.PaymentRecord) (*models.PaymentRecord, error) {
	return r.WithTx(tx).UpsertByOrder(ctx, record)
}

// CancelPendingTx cancels the order's record while it is still PENDING, stamped with now.
func (r *Repository) CancelPendingTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, now time.Time) error {
	return r.WithTx(tx).db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentRecordPending).
		Updates(map[string]any{
			"status":     enums.PaymentRecordCancelled,
			"updated_at": now,
		}).Error
}
