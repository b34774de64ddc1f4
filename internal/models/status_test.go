package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusConfirmed))
	assert.True(t, OrderStatusConfirmed.CanTransitionTo(OrderStatusProcessing))
	assert.True(t, OrderStatusProcessing.CanTransitionTo(OrderStatusShipped))
	assert.True(t, OrderStatusShipped.CanTransitionTo(OrderStatusDelivered))

	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusShipped))
	assert.False(t, OrderStatusShipped.CanTransitionTo(OrderStatusCancelled))
	assert.False(t, OrderStatusDelivered.CanTransitionTo(OrderStatusCancelled))
	assert.False(t, OrderStatusCancelled.CanTransitionTo(OrderStatusPending))

	for _, s := range CancellableStatuses {
		assert.True(t, s.CanTransitionTo(OrderStatusCancelled), s)
	}
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusShipped.IsTerminal())
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, s)

	_, err = ParseOrderStatus("lost")
	assert.Error(t, err)
}

func TestPaymentStatusTransitions(t *testing.T) {
	assert.True(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusRefunded))
	assert.False(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusPending))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusCompleted))

	assert.ElementsMatch(t,
		[]PaymentStatus{PaymentStatusPending, PaymentStatusFailed},
		PaymentSourcesFor(PaymentStatusCompleted))
	assert.ElementsMatch(t,
		[]PaymentStatus{PaymentStatusPending, PaymentStatusFailed, PaymentStatusCompleted},
		PaymentSourcesFor(PaymentStatusRefunded))
}

func TestEffectivePrice(t *testing.T) {
	p := &Product{Price: 10000, DiscountPrice: 8000}
	assert.Equal(t, int64(8000), p.EffectivePrice())

	p.DiscountPrice = 0
	assert.Equal(t, int64(10000), p.EffectivePrice())

	p.DiscountPrice = 12000
	assert.Equal(t, int64(10000), p.EffectivePrice())
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod("cod")
	require.NoError(t, err)
	assert.False(t, m.IsOnline())

	m, err = ParsePaymentMethod("upi")
	require.NoError(t, err)
	assert.True(t, m.IsOnline())

	_, err = ParsePaymentMethod("barter")
	assert.Error(t, err)
}
