package enums

// OrderStatus tracks a rental order through approval, payment and collection.
type OrderStatus string

const (
	OrderStatusAwaitingApproval OrderStatus = "awaiting_approval"
	OrderStatusAwaitingPayment  OrderStatus = "awaiting_payment"
	OrderStatusCashPayment      OrderStatus = "cash_payment"
	OrderStatusPaymentReceived  OrderStatus = "payment_received"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusExpired          OrderStatus = "expired"
)

// lifecycle order
var orderStatuses = newValueSet("order status",
	OrderStatusAwaitingApproval,
	OrderStatusAwaitingPayment,
	OrderStatusCashPayment,
	OrderStatusPaymentReceived,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusExpired,
)

func AllOrderStatuses() []OrderStatus { return orderStatuses.all() }

func ParseOrderStatus(value string) (OrderStatus, error) { return orderStatuses.parse(value) }

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

// IsTerminal reports whether no further transition may leave this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}
