// Package registry maps outbox event types to their broker topic and payload
// schema, and decodes stored rows for the relay.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// describe builds a descriptor whose payload decodes into a fresh *T.
func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row the relay must park instead of retrying.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewEventRegistry routes every order and payout event to ordersTopic. It
// fails if any declared event type has no descriptor.
func NewEventRegistry(ordersTopic string) (*EventRegistry, error) {
	if ordersTopic == "" {
		return nil, errors.New("orders topic is required")
	}

	descriptors := []EventDescriptor{
		describe[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, ordersTopic),
		describe[payloads.OrderPaymentReceivedEvent](enums.EventOrderPaymentReceived, enums.AggregateOrder, ordersTopic),
		describe[payloads.PayoutRecordedEvent](enums.EventPayoutRecorded, enums.AggregateMerchant, ordersTopic),
	}
	for _, eventType := range statusChangeEvents {
		descriptors = append(descriptors, describe[payloads.OrderStatusChangedEvent](eventType, enums.AggregateOrder, ordersTopic))
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		if _, dup := reg.entries[desc.EventType]; dup {
			return nil, fmt.Errorf("event type %s registered twice", desc.EventType)
		}
		reg.entries[desc.EventType] = desc
	}
	if missing := reg.unregistered(); len(missing) > 0 {
		return nil, fmt.Errorf("event types without descriptor: %v", missing)
	}
	return reg, nil
}

// statusChangeEvents share the OrderStatusChangedEvent schema.
var statusChangeEvents = []enums.OutboxEventType{
	enums.EventOrderApproved,
	enums.EventOrderDeclined,
	enums.EventOrderCancelled,
	enums.EventOrderExpired,
	enums.EventOrderCompleted,
}

func (r *EventRegistry) unregistered() []enums.OutboxEventType {
	return slices.DeleteFunc(enums.AllOutboxEventTypes(), func(t enums.OutboxEventType) bool {
		_, ok := r.entries[t]
		return ok
	})
}

// Resolve checks the row against its descriptor and decodes the typed
// payload. Every failure is non-retryable: a malformed row stays malformed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	case event.AggregateID == "":
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
