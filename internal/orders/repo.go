package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	"github.com/angelmondragon/rentloop-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) AppendStatusUpdate(ctx context.Context, update *models.OrderStatusUpdate) error {
	return r.db.WithContext(ctx).Create(update).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ConsumeCollectionToken(ctx context.Context, id uuid.UUID, token string, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND collection_token = ?", id, enums.OrderStatusPaymentReceived, token).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByRequester(ctx context.Context, requesterID string, params pagination.Params, filters ListFilters) ([]models.Order, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("requester_id = ?", requesterID), params, filters)
}

func (r *repository) ListByVendor(ctx context.Context, vendorID string, params pagination.Params, filters ListFilters) ([]models.Order, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("vendor_id = ?", vendorID), params, filters)
}

func (r *repository) list(ctx context.Context, query *gorm.DB, params pagination.Params, filters ListFilters) ([]models.Order, error) {
	if len(filters.Statuses) > 0 {
		query = query.Where("status IN ?", filters.Statuses)
	}
	query, err := pagination.Keyset(query, params)
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	err = query.Preload("Items", orderedItems).Find(&orders).Error
	return orders, err
}

func (r *repository) FindExpirable(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Where("(status = ? AND expires_at < ?) OR (status = ? AND payment_due_at < ?)",
			enums.OrderStatusAwaitingApproval, now,
			enums.OrderStatusAwaitingPayment, now,
		).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListStatusUpdates(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusUpdate, error) {
	var updates []models.OrderStatusUpdate
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&updates).Error
	return updates, err
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
