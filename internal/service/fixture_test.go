package service

import (
	"context"
	"testing"

	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/testutil"

	"github.com/stretchr/testify/require"
)

const gatewaySecret = "secret_test"

var (
	customer      = auth.Actor{ID: "cust-1", Role: auth.RoleCustomer}
	otherCustomer = auth.Actor{ID: "cust-2", Role: auth.RoleCustomer}
	supplier      = auth.Actor{ID: "sup-1", Role: auth.RoleSupplier}
	otherSupplier = auth.Actor{ID: "sup-9", Role: auth.RoleSupplier}
	admin         = auth.Actor{ID: "admin-1", Role: auth.RoleAdmin}
)

type fixture struct {
	store    *testutil.MemStore
	carts    *testutil.MemCarts
	gateway  *testutil.FakeGateway
	events   *testutil.RecordingPublisher
	cart     *CartService
	orders   *OrderService
	payments *PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   testutil.NewMemStore(),
		carts:   testutil.NewMemCarts(),
		gateway: testutil.NewFakeGateway(gatewaySecret),
		events:  &testutil.RecordingPublisher{},
	}

	f.store.PutProduct(models.Product{ID: "p1", SupplierID: "sup-1", Name: "Kettle", Price: 10000, Stock: 10, IsActive: true})
	f.store.PutProduct(models.Product{ID: "p2", SupplierID: "sup-2", Name: "Mug", Price: 6000, DiscountPrice: 5000, Stock: 5, IsActive: true})
	f.store.PutProduct(models.Product{ID: "p3", SupplierID: "sup-1", Name: "Last one", Price: 2000, Stock: 1, IsActive: true})
	f.store.PutProduct(models.Product{ID: "retired", SupplierID: "sup-1", Name: "Retired", Price: 1000, Stock: 3, IsActive: false})
	f.store.PutAddress(models.Address{ID: "addr-1", CustomerID: customer.ID, FullName: "Asha Rao", Line1: "12 MG Road", City: "Pune", PostalCode: "411001", Country: "IN"})
	f.store.PutAddress(models.Address{ID: "addr-2", CustomerID: otherCustomer.ID, FullName: "Other", Line1: "1 Main St", City: "Delhi", PostalCode: "110001", Country: "IN"})

	inventory := NewInventoryClient(f.store, nil)
	f.cart = NewCartService(f.carts, f.store, inventory)
	f.payments = NewPaymentService(f.store, f.store, f.gateway, testutil.NewMemLocker(), f.events, PaymentSettings{
		Currency:       "INR",
		RefundOnCancel: true,
	})
	f.orders = NewOrderService(f.store, f.carts, f.store, f.store, inventory, f.payments, f.events,
		Pricing{TaxRatePercent: 18, FreeShippingThreshold: 50000, FlatShippingFee: 5000}, "INR")
	return f
}

func (f *fixture) addToCart(t *testing.T, actor auth.Actor, productID string, qty int) {
	t.Helper()
	_, err := f.cart.AddItem(context.Background(), actor, AddItemRequest{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
}

// checkout fills the cart with the standard scenario and places the order
func (f *fixture) checkout(t *testing.T, method models.PaymentMethod) *models.Order {
	t.Helper()
	f.addToCart(t, customer, "p1", 2)
	f.addToCart(t, customer, "p2", 1)

	order, err := f.orders.CreateOrder(context.Background(), customer, &CreateOrderRequest{
		ShippingAddressID: "addr-1",
		PaymentMethod:     string(method),
	})
	require.NoError(t, err)
	return order
}

// pay creates an intent and verifies a correctly signed callback
func (f *fixture) pay(t *testing.T, order *models.Order) *models.Payment {
	t.Helper()
	ctx := context.Background()

	intent, err := f.payments.CreatePaymentIntent(ctx, customer, order.ID)
	require.NoError(t, err)

	payment, err := f.payments.VerifyPayment(ctx, customer, VerifyPaymentRequest{
		PaymentID:         intent.PaymentID,
		GatewayOrderRef:   intent.GatewayOrderRef,
		GatewayPaymentRef: "pay_1",
		Signature:         f.gateway.Capture(intent.GatewayOrderRef, "pay_1", intent.Amount),
	})
	require.NoError(t, err)
	return payment
}
