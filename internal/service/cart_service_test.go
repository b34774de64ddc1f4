package service

import (
	"context"
	"testing"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCartCreatesEmptyCart(t *testing.T) {
	f := newFixture(t)

	cart, err := f.cart.GetCart(context.Background(), customer)
	require.NoError(t, err)
	assert.Equal(t, customer.ID, cart.CustomerID)
	assert.Empty(t, cart.Items)
}

func TestAddItemMergesAndRestampsPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addToCart(t, customer, "p1", 2)
	f.store.PutProduct(models.Product{ID: "p1", SupplierID: "sup-1", Name: "Kettle", Price: 12000, DiscountPrice: 9000, Stock: 10, IsActive: true})

	cart, err := f.cart.AddItem(ctx, customer, AddItemRequest{ProductID: "p1", Quantity: 3})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, int64(9000), cart.Items[0].PriceSnapshot)
	assert.Equal(t, 10, f.store.Stock("p1"), "cart must not touch stock")
}

func TestAddItemRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cart.AddItem(ctx, customer, AddItemRequest{ProductID: "nope", Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)

	_, err = f.cart.AddItem(ctx, customer, AddItemRequest{ProductID: "retired", Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrProductInactive)

	_, err = f.cart.AddItem(ctx, customer, AddItemRequest{ProductID: "p1", Quantity: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	f.addToCart(t, customer, "p2", 4)
	_, err = f.cart.AddItem(ctx, customer, AddItemRequest{ProductID: "p2", Quantity: 2})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock, "merged quantity exceeds stock")

	_, err = f.cart.AddItem(ctx, supplier, AddItemRequest{ProductID: "p1", Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addToCart(t, customer, "p1", 1)
	f.addToCart(t, customer, "p2", 1)
	cart, err := f.cart.GetCart(ctx, customer)
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	cart, err = f.cart.UpdateItem(ctx, customer, itemID, UpdateItemRequest{Quantity: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, cart.Items[0].Quantity)

	_, err = f.cart.UpdateItem(ctx, customer, itemID, UpdateItemRequest{Quantity: 11})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	_, err = f.cart.UpdateItem(ctx, customer, itemID, UpdateItemRequest{Quantity: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.cart.UpdateItem(ctx, customer, "missing", UpdateItemRequest{Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	cart, err = f.cart.RemoveItem(ctx, customer, itemID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "p2", cart.Items[0].ProductID)

	_, err = f.cart.RemoveItem(ctx, customer, itemID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	cart, err = f.cart.ClearCart(ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}
