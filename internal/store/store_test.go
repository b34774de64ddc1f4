package store

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests run against a disposable database named by TEST_DATABASE_URL.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires TEST_DATABASE_URL")
	}

	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedProduct(t *testing.T, s *Store, stock int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := s.GetDB().Exec(
		"INSERT INTO products (id, supplier_id, name, price, stock) VALUES ($1, 'sup-1', 'Widget', 10000, $2)",
		id, stock)
	require.NoError(t, err)
	return id
}

func TestTryDecrementNeverOversells(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, s, 5)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TryDecrement(ctx, productID, 1)
			assert.NoError(t, err)
			if ok {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), succeeded.Load())
	stock, err := s.Available(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, stock)

	require.NoError(t, s.Increment(ctx, productID, 2))
	stock, err = s.Available(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, stock)
}

func TestOrderLifecycleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	number, err := s.NextOrderNumber(ctx, now)
	require.NoError(t, err)

	order := &models.Order{
		ID:              uuid.NewString(),
		OrderNumber:     number,
		CustomerID:      "cust-1",
		Items:           models.OrderItems{{ProductID: "p1", SupplierID: "sup-1", Quantity: 2, UnitPrice: 10000, Subtotal: 20000}},
		ShippingAddress: models.ShippingAddress{FullName: "A", Line1: "1 Road", City: "Pune", PostalCode: "411001"},
		PaymentMethod:   models.PaymentMethodCard,
		TotalAmount:     20000,
		Tax:             3600,
		FinalAmount:     28600,
		ShippingCharges: 5000,
		Status:          models.OrderStatusPending,
		StatusHistory:   models.StatusHistory{{Status: models.OrderStatusPending, Timestamp: now}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	payment := &models.Payment{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		CustomerID:    "cust-1",
		TransactionID: "TXN-" + uuid.NewString(),
		Amount:        order.FinalAmount,
		Currency:      "INR",
		PaymentMethod: order.PaymentMethod,
		Status:        models.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.PaymentID = payment.ID
	require.NoError(t, s.CreateOrderWithPayment(ctx, order, payment))

	got, err := s.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Items, got.Items)
	assert.Len(t, got.StatusHistory, 1)

	updated, err := s.TransitionOrder(ctx, order.ID, models.OrderTransition{
		From:  []models.OrderStatus{models.OrderStatusPending},
		Entry: models.StatusEntry{Status: models.OrderStatusConfirmed, Timestamp: now, Note: "paid"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, updated.Status)
	assert.Len(t, updated.StatusHistory, 2)

	_, err = s.TransitionOrder(ctx, order.ID, models.OrderTransition{
		From:  []models.OrderStatus{models.OrderStatusPending},
		Entry: models.StatusEntry{Status: models.OrderStatusConfirmed, Timestamp: now},
	})
	assert.ErrorIs(t, err, models.ErrStaleState)

	p, err := s.GetPaymentByOrderID(ctx, order.ID)
	require.NoError(t, err)
	paidAt := now
	p.Status = models.PaymentStatusCompleted
	p.PaidAt = &paidAt
	p.GatewayResponse = []byte(`{"id":"pay_1"}`)
	require.NoError(t, s.UpdatePayment(ctx, p, models.PaymentStatusPending))
	assert.ErrorIs(t, s.UpdatePayment(ctx, p, models.PaymentStatusPending), models.ErrStaleState)

	_, err = s.GetOrderByID(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
