package broker

import (
	"context"
	"time"

	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func newBase(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func orderKey(orderID string) string {
	return "order-" + orderID
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	event.BaseEvent = newBase(models.EventTypeOrderCreated)
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	event.BaseEvent = newBase(models.EventTypeOrderStatus)
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	event.BaseEvent = newBase(models.EventTypeOrderCancelled)
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPayment publishes a payment event of the given type
func (ep *EventPublisher) PublishPayment(ctx context.Context, eventType string, event *models.PaymentEvent) error {
	event.BaseEvent = newBase(eventType)
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// NoopPublisher drops events when Kafka is disabled
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error {
	return nil
}

func (NoopPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}

func (NoopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}

func (NoopPublisher) PublishPayment(context.Context, string, *models.PaymentEvent) error {
	return nil
}
