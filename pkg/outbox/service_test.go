package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentloop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
)

func TestEmitStoresEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Nop())

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderApproved,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "order-1",
			Actor:         &ActorRef{UserID: "vendor-1"},
			Data:          map[string]string{"status": "awaiting_payment"},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, "vendor-1", envelope.Actor.UserID)
	assert.JSONEq(t, `{"status":"awaiting_payment"}`, string(envelope.Data))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated, AggregateID: "x"})
	require.ErrorIs(t, err, ErrTransactionRequired)
}

func TestEmitReportsEveryInvalidField(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "bogus", AggregateType: "listing"})
	})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(errors.Unwrap(err)), 4)
	for _, want := range []string{`unknown event type "bogus"`, `unknown aggregate type "listing"`, "aggregate id required", "event data required"} {
		assert.Contains(t, err.Error(), want)
	}

	rows, err := repo.ListByAggregate(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	pending := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: "a", Payload: json.RawMessage(`{}`)}
	exhausted := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: "b", Payload: json.RawMessage(`{}`), AttemptCount: 5}
	require.NoError(t, repo.Insert(conn, pending))
	require.NoError(t, repo.Insert(conn, exhausted))

	var batch []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}))
	require.Len(t, batch, 1)
	assert.Equal(t, "a", batch[0].AggregateID)

	require.NoError(t, repo.MarkPublishedTx(conn, batch[0].ID))

	deleted, err := repo.DeletePublishedBatch(context.Background(), time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestRepositoryRetentionSkipsUnpublishedAndParked(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)

	for i := 0; i < 3; i++ {
		published := old.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			EventType: enums.EventOrderCompleted, AggregateType: enums.AggregateOrder,
			AggregateID: "done", Payload: json.RawMessage(`{}`), PublishedAt: &published,
		}))
	}
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{
		EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder,
		AggregateID: "pending", Payload: json.RawMessage(`{}`),
	}))
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{
		EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder,
		AggregateID: "parked", Payload: json.RawMessage(`{}`), FailedAt: &old,
	}))

	cutoff := time.Now().UTC().Add(-time.Hour)
	deleted, err := repo.DeletePublishedBatch(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
	deleted, err = repo.DeletePublishedBatch(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.EqualValues(t, 2, remaining)

	parked, err := repo.CountParked(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, parked)
}
