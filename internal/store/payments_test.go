package store

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentColumnNames = []string{
	"id", "order_id", "customer_id", "transaction_id", "amount", "currency", "payment_method", "status",
	"gateway_order_ref", "gateway_payment_ref", "gateway_response", "paid_at", "failure_reason", "refund_ref",
	"refund_status", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestGetPaymentWithoutGatewayResponse(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT .+ FROM payments WHERE id = \$1`).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows(paymentColumnNames).AddRow(
			"pay-1", "ord-1", "cust-1", "TXN-1", int64(34500), "INR", "card", "pending",
			"", "", nil, nil, "", "", "", now, now))

	p, err := s.GetPaymentByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, int64(34500), p.Amount)
	assert.Nil(t, p.PaidAt)
	assert.JSONEq(t, `{}`, string(p.GatewayResponse))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPaymentByOrderWithGatewayResponse(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT .+ FROM payments WHERE order_id = \$1`).
		WithArgs("ord-1").
		WillReturnRows(sqlmock.NewRows(paymentColumnNames).AddRow(
			"pay-1", "ord-1", "cust-1", "TXN-1", int64(34500), "INR", "card", "completed",
			"order_1", "pay_1", []byte(`{"id":"pay_1","status":"captured"}`), now, "", "", "", now, now))

	p, err := s.GetPaymentByOrderID(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.JSONEq(t, `{"id":"pay_1","status":"captured"}`, string(p.GatewayResponse))
	require.NotNil(t, p.PaidAt)
	assert.True(t, now.Equal(*p.PaidAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPaymentNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM payments WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(paymentColumnNames))

	_, err := s.GetPaymentByID(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
