package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
)

const orderColumns = `id, order_number, customer_id, items, shipping_address, payment_method, notes,
	total_amount, tax, shipping_charges, discount, final_amount, status, status_history, payment_id,
	cancelled_at, cancellation_reason, idempotency_key, created_at, updated_at`

// NextOrderNumber draws from a sequence, so numbers are never reused
func (s *Store) NextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	var seq int64
	if err := s.db.GetContext(ctx, &seq, "SELECT nextval('order_number_seq')"); err != nil {
		return "", fmt.Errorf("failed to draw order number: %w", err)
	}
	return fmt.Sprintf("ORD-%04d-%06d", now.Year(), seq), nil
}

// CreateOrderWithPayment persists the order and its payment in one transaction
func (s *Store) CreateOrderWithPayment(ctx context.Context, order *models.Order, payment *models.Payment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO orders (id, order_number, customer_id, items, shipping_address, payment_method, notes,
			total_amount, tax, shipping_charges, discount, final_amount, status, status_history, payment_id,
			idempotency_key, created_at, updated_at)
		VALUES (:id, :order_number, :customer_id, :items, :shipping_address, :payment_method, :notes,
			:total_amount, :tax, :shipping_charges, :discount, :final_amount, :status, :status_history, :payment_id,
			:idempotency_key, :created_at, :updated_at)`, order)
	if err != nil {
		return translate(err, "insert order %s", order.OrderNumber)
	}

	if err := insertPayment(ctx, tx, payment); err != nil {
		return err
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, translate(err, "order %s", id)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves a customer's order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, customerID, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE customer_id = $1 AND idempotency_key = $2", customerID, key)
	if err != nil {
		return nil, translate(err, "order with idempotency key %s", key)
	}
	return &order, nil
}

// ListOrdersByCustomer retrieves a customer's orders, newest first
func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return orders, err
}

// TransitionOrder applies a status change only while the order is still in
// one of t.From, appending the history entry in the same statement.
func (s *Store) TransitionOrder(ctx context.Context, orderID string, t models.OrderTransition) (*models.Order, error) {
	history, err := models.StatusHistory{t.Entry}.Value()
	if err != nil {
		return nil, err
	}

	var order models.Order
	err = s.db.GetContext(ctx, &order, `
		UPDATE orders
		SET status = $1,
			status_history = status_history || $2::jsonb,
			cancelled_at = COALESCE($3, cancelled_at),
			cancellation_reason = CASE WHEN $4 = '' THEN cancellation_reason ELSE $4 END,
			updated_at = NOW()
		WHERE id = $5 AND status = ANY($6)
		RETURNING `+orderColumns,
		t.Entry.Status, history, t.CancelledAt, t.CancellationReason, orderID, statusStrings(t.From))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, models.ErrStaleState)
		}
		return nil, fmt.Errorf("failed to transition order %s: %w", orderID, err)
	}
	return &order, nil
}

// SetOrderPayment links a lazily created payment to its order
func (s *Store) SetOrderPayment(ctx context.Context, orderID, paymentID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_id = $1, updated_at = NOW() WHERE id = $2", paymentID, orderID)
	if err != nil {
		return err
	}
	return expectOneRow(res, "order %s", orderID)
}
