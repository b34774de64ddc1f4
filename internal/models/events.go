package models

import "time"

// Event types
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypeOrderStatus      = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled   = "ORDER_CANCELLED"
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
	EventTypePaymentRefunded  = "PAYMENT_REFUNDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after checkout commits
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  string          `json:"customer_id"`
	FinalAmount int64           `json:"final_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published on every forward transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID string      `json:"order_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
	ActorID string      `json:"actor_id"`
}

// OrderCancelledEvent published when an order is cancelled and restocked
type OrderCancelledEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	Reason  string          `json:"reason"`
	Items   []OrderItemData `json:"items"`
}

// PaymentEvent published on payment completion, failure, or refund
type PaymentEvent struct {
	BaseEvent
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}
