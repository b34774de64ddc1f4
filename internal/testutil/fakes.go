package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"

	"github.com/google/uuid"
)

// MemCarts stores cart documents in memory
type MemCarts struct {
	mu    sync.Mutex
	carts map[string]models.Cart

	// FailSave makes SaveCart fail
	FailSave error
}

// NewMemCarts creates an empty cart store
func NewMemCarts() *MemCarts {
	return &MemCarts{carts: make(map[string]models.Cart)}
}

func (c *MemCarts) GetCart(_ context.Context, customerID string) (*models.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[customerID]
	if !ok {
		return nil, fmt.Errorf("cart %s: %w", customerID, models.ErrNotFound)
	}
	cart.Items = append([]models.CartItem(nil), cart.Items...)
	return &cart, nil
}

func (c *MemCarts) SaveCart(_ context.Context, cart *models.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSave != nil {
		return c.FailSave
	}
	cp := *cart
	cp.Items = append([]models.CartItem(nil), cart.Items...)
	c.carts[cart.CustomerID] = cp
	return nil
}

// MemLocker is a process-local lock with the redisclient contract
type MemLocker struct {
	mu    sync.Mutex
	locks map[string]string
}

// NewMemLocker creates an empty locker
func NewMemLocker() *MemLocker {
	return &MemLocker{locks: make(map[string]string)}
}

func (l *MemLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return "", redisclient.ErrLockHeld
	}
	token := uuid.NewString()
	l.locks[key] = token
	return token, nil
}

func (l *MemLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[key] == token {
		delete(l.locks, key)
	}
	return nil
}

// FakeGateway records calls and answers like the gateway would
type FakeGateway struct {
	mu sync.Mutex

	Secret       string
	RemoteStatus string
	FetchErr     error
	RefundErr    error

	IntentCalls int
	FetchCalls  int
	Refunds     []string

	intents  map[string]gateway.RemoteIntent
	captured map[string]gateway.RemotePayment
}

// NewFakeGateway creates a gateway that reports captured payments with RemoteStatus
func NewFakeGateway(secret string) *FakeGateway {
	return &FakeGateway{
		Secret:       secret,
		RemoteStatus: "captured",
		intents:      make(map[string]gateway.RemoteIntent),
		captured:     make(map[string]gateway.RemotePayment),
	}
}

// Capture records that paymentRef paid amount against the gateway order
// orderRef, the way the checkout widget would, and returns the callback signature.
func (g *FakeGateway) Capture(orderRef, paymentRef string, amount int64) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	currency := "INR"
	if intent, ok := g.intents[orderRef]; ok {
		currency = intent.Currency
	}
	g.captured[paymentRef] = gateway.RemotePayment{
		ID:       paymentRef,
		OrderID:  orderRef,
		Amount:   amount,
		Currency: currency,
		Method:   "card",
	}
	return gateway.Sign(g.Secret, orderRef, paymentRef)
}

func (g *FakeGateway) KeyID() string {
	return "key_test"
}

func (g *FakeGateway) CreateRemoteIntent(_ context.Context, amount int64, currency, reference string) (*gateway.RemoteIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.IntentCalls++
	intent := &gateway.RemoteIntent{
		ID:       fmt.Sprintf("order_%d", g.IntentCalls),
		Amount:   amount,
		Currency: currency,
		Receipt:  reference,
		Status:   "created",
	}
	intent.Raw, _ = json.Marshal(intent)
	g.intents[intent.ID] = *intent
	return intent, nil
}

func (g *FakeGateway) FetchRemotePayment(_ context.Context, paymentRef string) (*gateway.RemotePayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.FetchCalls++
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	captured, ok := g.captured[paymentRef]
	if !ok {
		return nil, &gateway.APIError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "payment not found"}
	}
	payment := &captured
	payment.Status = g.RemoteStatus
	payment.Raw, _ = json.Marshal(payment)
	return payment, nil
}

func (g *FakeGateway) Refund(_ context.Context, paymentRef string, amount int64) (*gateway.RemoteRefund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}
	g.Refunds = append(g.Refunds, paymentRef)
	return &gateway.RemoteRefund{
		ID:        fmt.Sprintf("rfnd_%d", len(g.Refunds)),
		PaymentID: paymentRef,
		Amount:    amount,
		Status:    "processed",
	}, nil
}

func (g *FakeGateway) VerifySignature(orderRef, paymentRef, signature string) bool {
	return signature != "" && signature == gateway.Sign(g.Secret, orderRef, paymentRef)
}

// RecordingPublisher keeps every published event type in order
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []string
}

func (p *RecordingPublisher) record(eventType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, eventType)
	return nil
}

// Types returns a copy of the recorded event types
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Events...)
}

func (p *RecordingPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error {
	return p.record(models.EventTypeOrderCreated)
}

func (p *RecordingPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return p.record(models.EventTypeOrderStatus)
}

func (p *RecordingPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return p.record(models.EventTypeOrderCancelled)
}

func (p *RecordingPublisher) PublishPayment(_ context.Context, eventType string, _ *models.PaymentEvent) error {
	return p.record(eventType)
}
