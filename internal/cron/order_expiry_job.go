package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/rentloop-backend/internal/orders"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
)

type staleOrderExpirer interface {
	ExpireStaleOrders(ctx context.Context) (orders.ExpireResult, error)
}

// OrderExpiryJobParams configure the stale order sweep.
type OrderExpiryJobParams struct {
	Logger *logger.Logger
	Orders staleOrderExpirer
}

// NewOrderExpiryJob builds the job that expires orders left awaiting approval
// or payment past their windows.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &orderExpiryJob{logg: params.Logger, orders: params.Orders}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders staleOrderExpirer
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	result, err := j.orders.ExpireStaleOrders(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": result.Scanned,
		"expired": result.Expired,
		"skipped": result.Skipped,
	})
	if err != nil {
		return fmt.Errorf("expire stale orders: %w", err)
	}
	j.logg.Info(logCtx, "order expiry sweep complete")
	return nil
}
