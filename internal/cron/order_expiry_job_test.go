package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/rentloop-backend/internal/orders"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
)

type stubExpirer struct {
	result orders.ExpireResult
	err    error
	calls  int
}

func (s *stubExpirer) ExpireStaleOrders(context.Context) (orders.ExpireResult, error) {
	s.calls++
	return s.result, s.err
}

func TestOrderExpiryJobRunsSweep(t *testing.T) {
	expirer := &stubExpirer{result: orders.ExpireResult{Scanned: 3, Expired: 2, Skipped: 1}}
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{Logger: logger.Nop(), Orders: expirer})
	if err != nil {
		t.Fatalf("NewOrderExpiryJob: %v", err)
	}
	if job.Name() != "order-expiry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected one sweep, got %d", expirer.calls)
	}
}

func TestOrderExpiryJobSurfacesPartialFailure(t *testing.T) {
	expirer := &stubExpirer{result: orders.ExpireResult{Scanned: 2, Expired: 1, Skipped: 1}, err: errors.New("db down")}
	job, _ := NewOrderExpiryJob(OrderExpiryJobParams{Logger: logger.Nop(), Orders: expirer})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to propagate")
	}
}

func TestNewOrderExpiryJobValidates(t *testing.T) {
	if _, err := NewOrderExpiryJob(OrderExpiryJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing orders service to be rejected")
	}
}
