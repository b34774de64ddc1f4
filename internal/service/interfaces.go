package service

import (
	"context"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
)

// ProductCatalog reads the shared products table
type ProductCatalog interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
}

// AddressBook reads the shared addresses table
type AddressBook interface {
	GetAddress(ctx context.Context, customerID, addressID string) (*models.Address, error)
}

// CartRepository stores whole cart documents
type CartRepository interface {
	GetCart(ctx context.Context, customerID string) (*models.Cart, error)
	SaveCart(ctx context.Context, cart *models.Cart) error
}

// StockLedger is the authoritative available-quantity counter
type StockLedger interface {
	TryDecrement(ctx context.Context, productID string, qty int) (bool, error)
	Increment(ctx context.Context, productID string, qty int) error
	Available(ctx context.Context, productID string) (int, error)
}

// OrderRepository persists orders
type OrderRepository interface {
	NextOrderNumber(ctx context.Context, now time.Time) (string, error)
	CreateOrderWithPayment(ctx context.Context, order *models.Order, payment *models.Payment) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, customerID, key string) (*models.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error)
	TransitionOrder(ctx context.Context, orderID string, t models.OrderTransition) (*models.Order, error)
	SetOrderPayment(ctx context.Context, orderID, paymentID string) error
}

// PaymentRepository persists payments with conditional status updates
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment, from ...models.PaymentStatus) error
}

// PaymentGateway is the external gateway as seen by the reconciler
type PaymentGateway interface {
	KeyID() string
	CreateRemoteIntent(ctx context.Context, amount int64, currency, reference string) (*gateway.RemoteIntent, error)
	FetchRemotePayment(ctx context.Context, paymentRef string) (*gateway.RemotePayment, error)
	Refund(ctx context.Context, paymentRef string, amount int64) (*gateway.RemoteRefund, error)
	VerifySignature(orderRef, paymentRef, signature string) bool
}

// EventPublisher emits domain events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishPayment(ctx context.Context, eventType string, event *models.PaymentEvent) error
}

// Locker serialises work on a key across instances
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}
