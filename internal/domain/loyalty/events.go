package loyalty

import "strings"

// EventTypeOrderConfirmed is the type name of the inbound order event
const EventTypeOrderConfirmed = "OrderConfirmed"

// OrderConfirmedEvent is published by the ordering system once an order is
// confirmed. It is the only input of the earn path.
type OrderConfirmedEvent struct {
	CustomerID string  `json:"customer_id"`
	OrderID    string  `json:"order_id"`
	OrderValue float64 `json:"order_value"`
}

// EventType returns the event type name
func (e OrderConfirmedEvent) EventType() string {
	return EventTypeOrderConfirmed
}

// Validate checks the fields required to credit points
func (e OrderConfirmedEvent) Validate() error {
	if strings.TrimSpace(e.CustomerID) == "" {
		return ErrInvalidValues.WithMessage("customer_id is required")
	}
	if strings.TrimSpace(e.OrderID) == "" {
		return ErrInvalidValues.WithMessage("order_id is required")
	}
	return nil
}
