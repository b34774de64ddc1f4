// Package testutil provides in-memory stand-ins for the Postgres store,
// the Redis cart and lock, the payment gateway and the event publisher.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx/types"
)

// MemStore mirrors the conditional-update semantics of store.Store
type MemStore struct {
	mu        sync.Mutex
	products  map[string]*models.Product
	addresses map[string]*models.Address
	orders    map[string]*models.Order
	payments  map[string]*models.Payment
	seq       int64

	// FailCreateOrder makes CreateOrderWithPayment fail, for saga tests
	FailCreateOrder error
}

// NewMemStore creates an empty store
func NewMemStore() *MemStore {
	return &MemStore{
		products:  make(map[string]*models.Product),
		addresses: make(map[string]*models.Address),
		orders:    make(map[string]*models.Order),
		payments:  make(map[string]*models.Payment),
	}
}

// PutProduct inserts or replaces a product
func (m *MemStore) PutProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = &p
}

// PutAddress inserts or replaces an address
func (m *MemStore) PutAddress(a models.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[a.ID] = &a
}

// Stock returns a product's current stock, for assertions
func (m *MemStore) Stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[productID]; ok {
		return p.Stock
	}
	return -1
}

// OrderCount returns the number of stored orders
func (m *MemStore) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *MemStore) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *MemStore) GetProducts(_ context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) TryDecrement(_ context.Context, productID string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return false, fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	if p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (m *MemStore) Increment(_ context.Context, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	p.Stock += qty
	return nil
}

func (m *MemStore) Available(_ context.Context, productID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	return p.Stock, nil
}

func (m *MemStore) AdjustStock(_ context.Context, productID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	p.Stock = max(p.Stock+delta, 0)
	return nil
}

func (m *MemStore) GetAddress(_ context.Context, customerID, addressID string) (*models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.addresses[addressID]
	if !ok || a.CustomerID != customerID {
		return nil, fmt.Errorf("address %s: %w", addressID, models.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *MemStore) NextOrderNumber(_ context.Context, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return fmt.Sprintf("ORD-%04d-%06d", now.Year(), m.seq), nil
}

func (m *MemStore) CreateOrderWithPayment(_ context.Context, order *models.Order, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateOrder != nil {
		return m.FailCreateOrder
	}
	if order.IdempotencyKey != "" {
		for _, o := range m.orders {
			if o.CustomerID == order.CustomerID && o.IdempotencyKey == order.IdempotencyKey {
				return fmt.Errorf("order idempotency key: %w", models.ErrDuplicateKey)
			}
		}
	}
	m.orders[order.ID] = cloneOrder(order)
	m.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (m *MemStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	return cloneOrder(o), nil
}

func (m *MemStore) GetOrderByIdempotencyKey(_ context.Context, customerID, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.CustomerID == customerID && o.IdempotencyKey == key {
			return cloneOrder(o), nil
		}
	}
	return nil, fmt.Errorf("order with key %s: %w", key, models.ErrNotFound)
}

func (m *MemStore) ListOrdersByCustomer(_ context.Context, customerID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) TransitionOrder(_ context.Context, orderID string, t models.OrderTransition) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || !slices.Contains(t.From, o.Status) {
		return nil, fmt.Errorf("order %s: %w", orderID, models.ErrStaleState)
	}
	o.Status = t.Entry.Status
	o.StatusHistory = append(o.StatusHistory, t.Entry)
	if t.CancelledAt != nil {
		at := *t.CancelledAt
		o.CancelledAt = &at
	}
	if t.CancellationReason != "" {
		o.CancellationReason = t.CancellationReason
	}
	o.UpdatedAt = time.Now().UTC()
	return cloneOrder(o), nil
}

func (m *MemStore) SetOrderPayment(_ context.Context, orderID, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, models.ErrStaleState)
	}
	o.PaymentID = paymentID
	return nil
}

// DeletePayment removes a payment, simulating orders created before payments existed
func (m *MemStore) DeletePayment(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.payments, id)
}

func (m *MemStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == payment.OrderID {
			return fmt.Errorf("payment for order %s: %w", payment.OrderID, models.ErrDuplicateKey)
		}
	}
	m.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (m *MemStore) GetPaymentByID(_ context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id, models.ErrNotFound)
	}
	return clonePayment(p), nil
}

func (m *MemStore) GetPaymentByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID {
			return clonePayment(p), nil
		}
	}
	return nil, fmt.Errorf("payment for order %s: %w", orderID, models.ErrNotFound)
}

func (m *MemStore) UpdatePayment(_ context.Context, p *models.Payment, from ...models.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.payments[p.ID]
	if !ok || !slices.Contains(from, stored.Status) {
		return fmt.Errorf("payment %s: %w", p.ID, models.ErrStaleState)
	}
	stored.Status = p.Status
	stored.GatewayOrderRef = p.GatewayOrderRef
	stored.GatewayPaymentRef = p.GatewayPaymentRef
	if len(p.GatewayResponse) > 0 {
		stored.GatewayResponse = append(types.JSONText(nil), p.GatewayResponse...)
	}
	if stored.PaidAt == nil && p.PaidAt != nil {
		at := *p.PaidAt
		stored.PaidAt = &at
	}
	stored.FailureReason = p.FailureReason
	stored.RefundRef = p.RefundRef
	stored.RefundStatus = p.RefundStatus
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append(models.OrderItems(nil), o.Items...)
	cp.StatusHistory = append(models.StatusHistory(nil), o.StatusHistory...)
	if o.CancelledAt != nil {
		at := *o.CancelledAt
		cp.CancelledAt = &at
	}
	return &cp
}

func clonePayment(p *models.Payment) *models.Payment {
	cp := *p
	cp.GatewayResponse = append(types.JSONText(nil), p.GatewayResponse...)
	if p.PaidAt != nil {
		at := *p.PaidAt
		cp.PaidAt = &at
	}
	return &cp
}
