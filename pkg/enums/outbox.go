package enums

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregateMerchant OutboxAggregateType = "merchant"
)

var aggregateTypes = newValueSet("aggregate type", AggregateOrder, AggregateMerchant)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType names the domain event carried by an outbox row.
type OutboxEventType string

const (
	EventOrderCreated         OutboxEventType = "order_created"
	EventOrderApproved        OutboxEventType = "order_approved"
	EventOrderDeclined        OutboxEventType = "order_declined"
	EventOrderCancelled       OutboxEventType = "order_cancelled"
	EventOrderPaymentReceived OutboxEventType = "order_payment_received"
	EventOrderCompleted       OutboxEventType = "order_completed"
	EventOrderExpired         OutboxEventType = "order_expired"
	EventPayoutRecorded       OutboxEventType = "payout_recorded"
)

var eventTypes = newValueSet("event type",
	EventOrderCreated,
	EventOrderApproved,
	EventOrderDeclined,
	EventOrderCancelled,
	EventOrderPaymentReceived,
	EventOrderCompleted,
	EventOrderExpired,
	EventPayoutRecorded,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) { return eventTypes.parse(value) }

func AllOutboxEventTypes() []OutboxEventType { return eventTypes.all() }
