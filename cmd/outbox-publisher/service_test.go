package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentloop-backend/pkg/config"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	"github.com/angelmondragon/rentloop-backend/pkg/kafka"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
	"github.com/angelmondragon/rentloop-backend/pkg/metrics"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		orderEvent(t, enums.EventOrderApproved, 0),
		orderEvent(t, enums.EventOrderCompleted, 0),
	}}
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(errors.New("broker unavailable"))
	producer.ExpectSendMessageAndSucceed()
	service := newTestService(t, repo, kafka.NewProducerFrom(producer, logger.Nop()), 5)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("close producer: %v", err)
	}
}

func TestServiceProcessBatchParksUnknownEvents(t *testing.T) {
	event := orderEvent(t, enums.OutboxEventType("order_teleported"), 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	sink := &recordingSink{}
	service := newTestService(t, repo, sink, 5)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected unknown event parked, got %v", repo.terminal)
	}
	if len(sink.topics) != 0 {
		t.Fatalf("unknown event must not be published")
	}
}

func TestServiceProcessBatchParksAfterMaxAttempts(t *testing.T) {
	event := orderEvent(t, enums.EventOrderApproved, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	sink := &recordingSink{err: errors.New("transient")}
	service := newTestService(t, repo, sink, 2)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row parked after max attempts, got %v", repo.terminal)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("parked row should not also be marked failed")
	}
}

func TestServicePublishKeysByAggregate(t *testing.T) {
	event := orderEvent(t, enums.EventOrderApproved, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	sink := &recordingSink{}
	service := newTestService(t, repo, sink, 5)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(sink.topics) != 1 || sink.topics[0] != "rl-order-events" {
		t.Fatalf("unexpected topics %v", sink.topics)
	}
	if sink.keys[0] != event.AggregateID {
		t.Fatalf("expected key %s, got %s", event.AggregateID, sink.keys[0])
	}
	if sink.attrs[0]["event_type"] != string(enums.EventOrderApproved) {
		t.Fatalf("unexpected attrs %v", sink.attrs[0])
	}
}

func TestServiceRecordsRelayOutcomes(t *testing.T) {
	parked := orderEvent(t, enums.OutboxEventType("order_teleported"), 0)
	published := orderEvent(t, enums.EventOrderCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{parked, published}}
	service := newTestService(t, repo, &recordingSink{}, 5)
	reg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxMetrics(reg)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	expected := `
# HELP rentloop_outbox_events_total Outbox rows handled by the relay, by event type and outcome.
# TYPE rentloop_outbox_events_total counter
rentloop_outbox_events_total{event_type="order_completed",outcome="published"} 1
rentloop_outbox_events_total{event_type="order_teleported",outcome="parked"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "rentloop_outbox_events_total"); err != nil {
		t.Fatal(err)
	}
}

func TestServiceEmptyBatchIsNotProcessed(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &recordingSink{}, 5)
	processed, err := service.processBatch(context.Background())
	if err != nil || processed {
		t.Fatalf("expected idle batch, got processed=%v err=%v", processed, err)
	}
}

func TestBackoffGrowsAndResets(t *testing.T) {
	b := backoff{base: time.Second, ceiling: 4 * time.Second}
	for _, want := range []time.Duration{2 * time.Second, 4 * time.Second, 4 * time.Second} {
		got := b.fail()
		if got < want || got >= want+jitterWindow {
			t.Fatalf("expected %s plus jitter, got %s", want, got)
		}
	}
	b.reset()
	if got := b.fail(); got >= 2*time.Second+jitterWindow {
		t.Fatalf("expected reset backoff, got %s", got)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(8*time.Second, time.Second, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap %s, got %s", maxBackoff, got)
	}
	if got := nextBackoff(0, time.Second, maxBackoff); got != 2*time.Second {
		t.Fatalf("expected doubled base, got %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, s sink, maxAttempts int) *Service {
	t.Helper()
	eventRegistry, err := registry.NewEventRegistry("rl-order-events")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Outbox: config.OutboxConfig{
			BatchSize:      2,
			PollIntervalMS: 100,
			MaxAttempts:    maxAttempts,
		},
		Logger:     logger.Nop(),
		DB:         &fakeDB{},
		Sink:       s,
		SinkName:   "test",
		Repository: repo,
		Registry:   eventRegistry,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func orderEvent(tb testing.TB, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{"status":"approved"}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.NewString(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type recordingSink struct {
	err    error
	topics []string
	keys   []string
	attrs  []map[string]string
}

func (r *recordingSink) Ping(context.Context) error { return nil }

func (r *recordingSink) Publish(_ context.Context, topic, key string, _ []byte, attrs map[string]string) error {
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.keys = append(r.keys, key)
	r.attrs = append(r.attrs, attrs)
	return nil
}
