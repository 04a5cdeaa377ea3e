package payfast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/rentloop-backend/pkg/redis"
)

// IdempotencyGuard short-circuits repeated deliveries of the same notification.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark reports whether id was already seen, marking it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("notification id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, id), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases id so a gateway retry is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("notification id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, id))
}
