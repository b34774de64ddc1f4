package store

import (
	"context"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

const paymentColumns = `id, order_id, customer_id, transaction_id, amount, currency, payment_method, status,
	gateway_order_ref, gateway_payment_ref, gateway_response, paid_at, failure_reason, refund_ref,
	refund_status, created_at, updated_at`

// CreatePayment inserts a lazily created payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return insertPayment(ctx, s.db, payment)
}

func insertPayment(ctx context.Context, q sqlx.ExtContext, p *models.Payment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, customer_id, transaction_id, amount, currency, payment_method,
			status, gateway_order_ref, gateway_payment_ref, gateway_response, paid_at, failure_reason,
			refund_ref, refund_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13, $14, $15, $16, $17)`,
		p.ID, p.OrderID, p.CustomerID, p.TransactionID, p.Amount, p.Currency, p.PaymentMethod,
		p.Status, p.GatewayOrderRef, p.GatewayPaymentRef, jsonParam(p.GatewayResponse), p.PaidAt,
		p.FailureReason, p.RefundRef, p.RefundStatus, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return translate(err, "insert payment for order %s", p.OrderID)
	}
	return nil
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT "+paymentColumns+" FROM payments WHERE id = $1", id)
	if err != nil {
		return nil, translate(err, "payment %s", id)
	}
	return &payment, nil
}

// GetPaymentByOrderID retrieves the payment of an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT "+paymentColumns+" FROM payments WHERE order_id = $1", orderID)
	if err != nil {
		return nil, translate(err, "payment for order %s", orderID)
	}
	return &payment, nil
}

// UpdatePayment writes the mutable payment fields while the stored status is
// still one of from. Amount and transaction id are never rewritten.
func (s *Store) UpdatePayment(ctx context.Context, p *models.Payment, from ...models.PaymentStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
			gateway_order_ref = $2,
			gateway_payment_ref = $3,
			gateway_response = COALESCE($4::jsonb, gateway_response),
			paid_at = COALESCE(paid_at, $5),
			failure_reason = $6,
			refund_ref = $7,
			refund_status = $8,
			updated_at = NOW()
		WHERE id = $9 AND status = ANY($10)`,
		p.Status, p.GatewayOrderRef, p.GatewayPaymentRef, jsonParam(p.GatewayResponse), p.PaidAt,
		p.FailureReason, p.RefundRef, p.RefundStatus, p.ID, statusStrings(from))
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", p.ID, err)
	}
	return expectOneRow(res, "payment %s", p.ID)
}

func jsonParam(raw types.JSONText) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
