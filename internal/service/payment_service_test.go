package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"checkout-service/internal/apperr"
	"checkout-service/internal/gateway"
	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(orderRef, paymentRef string) string {
	return gateway.Sign(gatewaySecret, orderRef, paymentRef)
}

func TestCreatePaymentIntentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)

	first, err := f.payments.CreatePaymentIntent(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.True(t, first.RequiresPayment)
	assert.Equal(t, order.PaymentID, first.PaymentID)
	assert.Equal(t, int64(34500), first.Amount)
	assert.Equal(t, "INR", first.Currency)
	assert.Equal(t, "key_test", first.KeyID)
	assert.NotEmpty(t, first.GatewayOrderRef)

	second, err := f.payments.CreatePaymentIntent(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.gateway.IntentCalls)
}

func TestCreatePaymentIntentCashOnDelivery(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, models.PaymentMethodCOD)

	intent, err := f.payments.CreatePaymentIntent(context.Background(), customer, order.ID)
	require.NoError(t, err)
	assert.False(t, intent.RequiresPayment)
	assert.Empty(t, intent.GatewayOrderRef)
	assert.Equal(t, 0, f.gateway.IntentCalls)
}

func TestCreatePaymentIntentRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)

	_, err := f.payments.CreatePaymentIntent(ctx, otherCustomer, order.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.payments.CreatePaymentIntent(ctx, customer, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.pay(t, order)
	_, err = f.payments.CreatePaymentIntent(ctx, customer, order.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "order is confirmed once paid")
}

func TestCreatePaymentIntentCreatesMissingPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodUPI)
	f.store.DeletePayment(order.PaymentID)

	intent, err := f.payments.CreatePaymentIntent(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.NotEqual(t, order.PaymentID, intent.PaymentID)

	reloaded, err := f.orders.GetOrder(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.PaymentID, reloaded.PaymentID)
}

func TestVerifyPaymentConfirmsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)

	payment := f.pay(t, order)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.NotNil(t, payment.PaidAt)
	assert.Equal(t, "pay_1", payment.GatewayPaymentRef)

	reloaded, err := f.orders.GetOrder(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, reloaded.Status)
	assert.Len(t, reloaded.StatusHistory, 2)

	_, err = f.payments.VerifyPayment(ctx, customer, VerifyPaymentRequest{
		PaymentID:         payment.ID,
		GatewayOrderRef:   payment.GatewayOrderRef,
		GatewayPaymentRef: "pay_1",
		Signature:         sign(payment.GatewayOrderRef, "pay_1"),
	})
	assert.ErrorIs(t, err, apperr.ErrPaymentAlreadyCompleted)
	assert.Contains(t, f.events.Types(), models.EventTypePaymentCompleted)
}

func TestVerifyPaymentTamperedSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)
	intent, err := f.payments.CreatePaymentIntent(ctx, customer, order.ID)
	require.NoError(t, err)

	_, err = f.payments.VerifyPayment(ctx, customer, VerifyPaymentRequest{
		PaymentID:         intent.PaymentID,
		GatewayOrderRef:   intent.GatewayOrderRef,
		GatewayPaymentRef: "pay_1",
		Signature:         sign(intent.GatewayOrderRef, "pay_other"),
	})
	assert.ErrorIs(t, err, apperr.ErrSignatureMismatch)
	assert.Equal(t, 0, f.gateway.FetchCalls)

	// replaying the same forged callback is rejected without another failure
	_, err = f.payments.VerifyPayment(ctx, customer, VerifyPaymentRequest{
		PaymentID:         intent.PaymentID,
		GatewayOrderRef:   intent.GatewayOrderRef,
		GatewayPaymentRef: "pay_1",
		Signature:         sign(intent.GatewayOrderRef, "pay_other"),
	})
	assert.ErrorIs(t, err, apperr.ErrSignatureMismatch)
	assert.Equal(t, 1, countEvents(f, models.EventTypePaymentFailed))

	payment, err := f.payments.GetPayment(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.NotEmpty(t, payment.FailureReason)

	reloaded, err := f.orders.GetOrder(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, reloaded.Status)

	// a failed payment may still be retried with a genuine callback
	completed := f.pay(t, order)
	assert.Equal(t, models.PaymentStatusCompleted, completed.Status)
}

func TestVerifyPaymentRejectsForeignOrderRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)
	intent, err := f.payments.CreatePaymentIntent(ctx, customer, order.ID)
	require.NoError(t, err)

	_, err = f.payments.VerifyPayment(ctx, customer, VerifyPaymentRequest{
		PaymentID:         intent.PaymentID,
		GatewayOrderRef:   "order_someone_else",
		GatewayPaymentRef: "pay_1",
		Signature:         sign("order_someone_else", "pay_1"),
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.payments.VerifyPayment(ctx, otherCustomer, VerifyPaymentRequest{
		PaymentID:         intent.PaymentID,
		GatewayOrderRef:   intent.GatewayOrderRef,
		GatewayPaymentRef: "pay_1",
		Signature:         sign(intent.GatewayOrderRef, "pay_1"),
	})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestVerifyPaymentRejectsCallbackForAnotherOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.checkout(t, models.PaymentMethodCard)
	paidIntent, err := f.payments.CreatePaymentIntent(ctx, customer, paid.ID)
	require.NoError(t, err)
	paidSig := f.gateway.Capture(paidIntent.GatewayOrderRef, "pay_A", paidIntent.Amount)
	replay := func(paymentID string) VerifyPaymentRequest {
		return VerifyPaymentRequest{
			PaymentID:         paymentID,
			GatewayOrderRef:   paidIntent.GatewayOrderRef,
			GatewayPaymentRef: "pay_A",
			Signature:         paidSig,
		}
	}

	cod := f.checkout(t, models.PaymentMethodCOD)
	_, err = f.payments.VerifyPayment(ctx, customer, replay(cod.PaymentID))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	noIntent := f.checkout(t, models.PaymentMethodUPI)
	_, err = f.payments.VerifyPayment(ctx, customer, replay(noIntent.PaymentID))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// a correctly signed pair whose gateway payment belongs to another order
	other := f.checkout(t, models.PaymentMethodCard)
	otherIntent, err := f.payments.CreatePaymentIntent(ctx, customer, other.ID)
	require.NoError(t, err)
	_, err = f.payments.VerifyPayment(ctx, customer, VerifyPaymentRequest{
		PaymentID:         otherIntent.PaymentID,
		GatewayOrderRef:   otherIntent.GatewayOrderRef,
		GatewayPaymentRef: "pay_A",
		Signature:         sign(otherIntent.GatewayOrderRef, "pay_A"),
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// paid against the right gateway order but for less than the order total
	_, err = f.payments.VerifyPayment(ctx, customer, VerifyPaymentRequest{
		PaymentID:         otherIntent.PaymentID,
		GatewayOrderRef:   otherIntent.GatewayOrderRef,
		GatewayPaymentRef: "pay_short",
		Signature:         f.gateway.Capture(otherIntent.GatewayOrderRef, "pay_short", 100),
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	for _, order := range []*models.Order{cod, noIntent, other} {
		payment, err := f.payments.GetPayment(ctx, customer, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPending, payment.Status, order.OrderNumber)

		reloaded, err := f.orders.GetOrder(ctx, customer, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPending, reloaded.Status, order.OrderNumber)
	}

	payment, err := f.payments.VerifyPayment(ctx, customer, replay(paidIntent.PaymentID))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
}

func TestVerifyPaymentGatewayFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)
	intent, err := f.payments.CreatePaymentIntent(ctx, customer, order.ID)
	require.NoError(t, err)

	f.gateway.FetchErr = errors.New("gateway timeout")
	_, err = f.payments.VerifyPayment(ctx, customer, VerifyPaymentRequest{
		PaymentID:         intent.PaymentID,
		GatewayOrderRef:   intent.GatewayOrderRef,
		GatewayPaymentRef: "pay_1",
		Signature:         sign(intent.GatewayOrderRef, "pay_1"),
	})
	assert.ErrorIs(t, err, apperr.ErrGateway)
	assert.Equal(t, 502, apperr.From(err).StatusCode())

	payment, err := f.payments.GetPayment(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Contains(t, payment.FailureReason, "gateway timeout")

	reloaded, err := f.orders.GetOrder(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, reloaded.Status)
}

func countEvents(f *fixture, eventType string) int {
	n := 0
	for _, t := range f.events.Types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func TestRecordFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)

	raw := json.RawMessage(`{"code":"BAD_REQUEST_ERROR","description":"Card declined"}`)
	payment, err := f.payments.RecordFailure(ctx, customer, RecordFailureRequest{PaymentID: order.PaymentID, Error: raw})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Equal(t, "Card declined", payment.FailureReason)

	stored, err := f.payments.GetPayment(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(stored.GatewayResponse))

	reloaded, err := f.orders.GetOrder(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, reloaded.Status)

	f.pay(t, order)
	_, err = f.payments.RecordFailure(ctx, customer, RecordFailureRequest{PaymentID: order.PaymentID, Error: raw})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCancelPaidOrderRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)
	f.pay(t, order)

	cancelled, err := f.orders.CancelOrder(ctx, customer, order.ID, CancelOrderRequest{Reason: "late delivery"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	payment, err := f.payments.GetPayment(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, payment.Status)
	assert.Equal(t, models.RefundStatusProcessed, payment.RefundStatus)
	assert.Equal(t, "rfnd_1", payment.RefundRef)
	assert.NotNil(t, payment.PaidAt, "paid_at survives the refund")
	assert.Equal(t, []string{"pay_1"}, f.gateway.Refunds)

	assert.Equal(t, 10, f.store.Stock("p1"))
	assert.Equal(t, 5, f.store.Stock("p2"))
	assert.Contains(t, f.events.Types(), models.EventTypePaymentRefunded)
}

func TestCancelPaidOrderRecordsFailedRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)
	f.pay(t, order)

	f.gateway.RefundErr = errors.New("refund rejected")
	_, err := f.orders.CancelOrder(ctx, admin, order.ID, CancelOrderRequest{})
	require.NoError(t, err)

	payment, err := f.payments.GetPayment(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, payment.Status)
	assert.Equal(t, models.RefundStatusFailed, payment.RefundStatus)
}

func TestVerifyAfterCancellationIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)
	intent, err := f.payments.CreatePaymentIntent(ctx, customer, order.ID)
	require.NoError(t, err)

	// the order is cancelled by an admin while the customer is paying
	_, err = f.orders.CancelOrder(ctx, admin, order.ID, CancelOrderRequest{Reason: "fraud check"})
	require.NoError(t, err)

	_, err = f.payments.VerifyPayment(ctx, customer, VerifyPaymentRequest{
		PaymentID:         intent.PaymentID,
		GatewayOrderRef:   intent.GatewayOrderRef,
		GatewayPaymentRef: "pay_1",
		Signature:         sign(intent.GatewayOrderRef, "pay_1"),
	})
	assert.ErrorIs(t, err, apperr.ErrConflict, "refunded payments cannot be completed")
	assert.Empty(t, f.gateway.Refunds)
}

func TestPaymentCompletingDuringCancellationIsRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)
	intent, err := f.payments.CreatePaymentIntent(ctx, customer, order.ID)
	require.NoError(t, err)

	// the order row is cancelled but its settlement has not run yet
	_, err = f.store.TransitionOrder(ctx, order.ID, models.OrderTransition{
		From:  models.CancellableStatuses,
		Entry: models.StatusEntry{Status: models.OrderStatusCancelled, ActorID: admin.ID},
	})
	require.NoError(t, err)

	_, err = f.payments.VerifyPayment(ctx, customer, VerifyPaymentRequest{
		PaymentID:         intent.PaymentID,
		GatewayOrderRef:   intent.GatewayOrderRef,
		GatewayPaymentRef: "pay_1",
		Signature:         f.gateway.Capture(intent.GatewayOrderRef, "pay_1", intent.Amount),
	})
	require.NoError(t, err)

	payment, err := f.payments.GetPayment(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, payment.Status)
	assert.Equal(t, models.RefundStatusProcessed, payment.RefundStatus)
	assert.Equal(t, []string{"pay_1"}, f.gateway.Refunds)

	reloaded, err := f.orders.GetOrder(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, reloaded.Status)
}

func TestGetPaymentAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.checkout(t, models.PaymentMethodCard)

	_, err := f.payments.GetPayment(ctx, otherCustomer, order.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.payments.GetPayment(ctx, supplier, order.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.payments.GetPayment(ctx, customer, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
