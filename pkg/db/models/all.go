package models

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&Order{},
		&OrderItem{},
		&OrderStatusUpdate{},
		&PaymentRecord{},
		&OutboxEvent{},
	}
}
