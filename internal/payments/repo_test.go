package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentloop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	"github.com/angelmondragon/rentloop-backend/pkg/pagination"
)

var testRate = decimal.RequireFromString("0.08")

func seedRecord(t *testing.T, db *gorm.DB, merchantID string, gross string, status enums.PaymentRecordStatus, paid bool, createdAt time.Time) models.PaymentRecord {
	t.Helper()
	record := NewRecord(RecordInput{
		OrderID:      uuid.New(),
		Gross:        decimal.RequireFromString(gross),
		Rate:         testRate,
		Status:       status,
		Method:       enums.PaymentMethodCard,
		PayerID:      "payer-1",
		MerchantID:   merchantID,
		MerchantPaid: paid,
	})
	record.CreatedAt = createdAt
	require.NoError(t, db.Create(&record).Error)
	return record
}

func TestNewRecordKeepsCommissionInvariant(t *testing.T) {
	for _, gross := range []string{"0.01", "0.13", "99.99", "1234.57", "10000.00"} {
		record := NewRecord(RecordInput{OrderID: uuid.New(), Gross: decimal.RequireFromString(gross), Rate: testRate})
		sum := record.Commission.Add(record.MerchantAmount)
		assert.True(t, sum.Sub(record.Amount).Abs().LessThanOrEqual(decimal.RequireFromString("0.01")), "gross %s split %s + %s", gross, record.Commission, record.MerchantAmount)
	}
}

func TestUpsertByOrderRefreshesWithoutResettingPayout(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	orderID := uuid.New()

	pending := NewRecord(RecordInput{
		OrderID:    orderID,
		Gross:      decimal.RequireFromString("108.00"),
		Rate:       testRate,
		Status:     enums.PaymentRecordPending,
		Method:     enums.PaymentMethodCard,
		PayerID:    "payer-1",
		MerchantID: "vendor-1",
	})
	first, err := repo.UpsertByOrder(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentRecordPending, first.Status)

	pfID := "pf-1"
	completed := pending
	completed.ID = uuid.Nil
	completed.Status = enums.PaymentRecordCompleted
	completed.ExternalPaymentID = &pfID
	second, err := repo.UpsertByOrder(ctx, completed)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, enums.PaymentRecordCompleted, second.Status)
	require.NotNil(t, second.ExternalPaymentID)
	assert.Equal(t, "pf-1", *second.ExternalPaymentID)

	n, err := repo.MarkMerchantPaid(ctx, []uuid.UUID{second.ID}, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	completed.ID = uuid.Nil
	third, err := repo.UpsertByOrder(ctx, completed)
	require.NoError(t, err)
	assert.True(t, third.MerchantPaid)

	var count int64
	require.NoError(t, db.Model(&models.PaymentRecord{}).Where("order_id = ?", orderID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestTotalsForMerchant(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	seedRecord(t, db, "vendor-1", "100.00", enums.PaymentRecordCompleted, false, now)
	seedRecord(t, db, "vendor-1", "50.00", enums.PaymentRecordPaid, true, now)
	seedRecord(t, db, "vendor-1", "20.00", enums.PaymentRecordPending, false, now)
	seedRecord(t, db, "vendor-1", "10.00", enums.PaymentRecordFailed, false, now)
	seedRecord(t, db, "vendor-2", "999.00", enums.PaymentRecordCompleted, false, now)

	totals, err := repo.TotalsForMerchant(context.Background(), "vendor-1")
	require.NoError(t, err)

	assert.True(t, totals.Available.Equal(decimal.RequireFromString("92.00")), "available %s", totals.Available)
	assert.True(t, totals.PaidOut.Equal(decimal.RequireFromString("46.00")), "paid out %s", totals.PaidOut)
	assert.True(t, totals.Pending.Equal(decimal.RequireFromString("18.40")), "pending %s", totals.Pending)
	assert.True(t, totals.CompletedSales.Equal(decimal.RequireFromString("150.00")), "sales %s", totals.CompletedSales)
	assert.EqualValues(t, 1, totals.AvailableCount)
	assert.EqualValues(t, 1, totals.PendingCount)
	assert.EqualValues(t, 1, totals.PaidOutCount)
	assert.EqualValues(t, 2, totals.CompletedCount)
}

func TestLockPayableFiltersIneligible(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	eligible := seedRecord(t, db, "vendor-1", "100.00", enums.PaymentRecordCompleted, false, now)
	seedRecord(t, db, "vendor-1", "50.00", enums.PaymentRecordPaid, true, now)
	seedRecord(t, db, "vendor-1", "20.00", enums.PaymentRecordPending, false, now)
	other := seedRecord(t, db, "vendor-2", "30.00", enums.PaymentRecordCompleted, false, now)

	rows, err := repo.LockPayable(context.Background(), "vendor-1", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, eligible.ID, rows[0].ID)

	rows, err = repo.LockPayable(context.Background(), "vendor-1", []uuid.UUID{other.ID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListByMerchantPaginates(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		seedRecord(t, db, "vendor-1", "10.00", enums.PaymentRecordCompleted, false, base.Add(time.Duration(i)*time.Hour))
	}

	rows, err := repo.ListByMerchant(context.Background(), "vendor-1", pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	page, next := pagination.Page(rows, 2, func(r models.PaymentRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	rest, err := repo.ListByMerchant(context.Background(), "vendor-1", pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.True(t, rest[0].CreatedAt.Equal(base))
}
