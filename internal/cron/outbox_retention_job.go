package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/rentloop-backend/pkg/logger"
)

const (
	outboxRetentionDays = 30
	retentionBatchSize  = 500
	day                 = 24 * time.Hour
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	// Retention is in days; zero means outboxRetentionDays.
	Retention int
	BatchSize int
}

type outboxRetentionRepo interface {
	DeletePublishedBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	CountParked(ctx context.Context) (int64, error)
}

// outboxRetentionJob prunes published outbox rows in bounded batches.
// Unpublished and parked rows are never deleted; parked rows are reported so
// an operator can replay or drop them.
type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxRetentionRepo
	retention time.Duration
	batch     int
	now       func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	days := params.Retention
	if days <= 0 {
		days = outboxRetentionDays
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = retentionBatchSize
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: time.Duration(days) * day,
		batch:     batch,
		now:       time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("outbox retention interrupted after %d rows: %w", total, err)
		}
		n, err := j.repo.DeletePublishedBatch(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("outbox retention: %w", err)
		}
		total += n
		if n < int64(j.batch) {
			break
		}
	}

	parked, err := j.repo.CountParked(ctx)
	if err != nil {
		return fmt.Errorf("outbox retention: count parked: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": int(j.retention / day),
		"rows_deleted":   total,
		"rows_parked":    parked,
	})
	if parked > 0 {
		j.logg.Warn(logCtx, "outbox has parked events awaiting an operator")
	}
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
