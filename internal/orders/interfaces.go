package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentloop-backend/internal/collection"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	"github.com/angelmondragon/rentloop-backend/pkg/pagination"
)

// Repository defines persistence operations for the orders tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	AppendStatusUpdate(ctx context.Context, update *models.OrderStatusUpdate) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// Transition applies updates only while the order is still in one of from.
	Transition(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, updates map[string]any) (bool, error)
	// ConsumeCollectionToken completes the order only if token is the one stored.
	ConsumeCollectionToken(ctx context.Context, id uuid.UUID, token string, updates map[string]any) (bool, error)
	ListByRequester(ctx context.Context, requesterID string, params pagination.Params, filters ListFilters) ([]models.Order, error)
	ListByVendor(ctx context.Context, vendorID string, params pagination.Params, filters ListFilters) ([]models.Order, error)
	FindExpirable(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	ListStatusUpdates(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusUpdate, error)
}

// PaymentRecorder writes the payment record that backs an order inside the order's transaction.
type PaymentRecorder interface {
	UpsertTx(ctx context.Context, tx *gorm.DB, record models.PaymentRecord) (*models.PaymentRecord, error)
	CancelPendingTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, now time.Time) error
}

// TokenCodec seals and opens collection tokens.
type TokenCodec interface {
	Seal(payload collection.Payload) (string, error)
	Open(token string) (collection.Payload, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
