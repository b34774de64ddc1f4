package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService turns carts into orders and drives the order state machine
type OrderService struct {
	orders    OrderRepository
	carts     CartRepository
	catalog   ProductCatalog
	addresses AddressBook
	inventory *InventoryClient
	payments  *PaymentService
	events    EventPublisher
	pricing   Pricing
	currency  string
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderRepository,
	carts CartRepository,
	catalog ProductCatalog,
	addresses AddressBook,
	inventory *InventoryClient,
	payments *PaymentService,
	events EventPublisher,
	pricing Pricing,
	currency string,
) *OrderService {
	return &OrderService{
		orders:    orders,
		carts:     carts,
		catalog:   catalog,
		addresses: addresses,
		inventory: inventory,
		payments:  payments,
		events:    events,
		pricing:   pricing,
		currency:  currency,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// CreateOrderRequest represents a checkout request
type CreateOrderRequest struct {
	ShippingAddressID string `json:"shipping_address_id" binding:"required"`
	PaymentMethod     string `json:"payment_method" binding:"required"`
	Notes             string `json:"notes" binding:"max=500"`
	IdempotencyKey    string `json:"idempotency_key,omitempty"`
}

// UpdateStatusRequest moves an order forward
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note" binding:"max=500"`
}

// CancelOrderRequest cancels an order
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// TrackingInfo is the customer-facing status view of an order
type TrackingInfo struct {
	OrderNumber   string               `json:"order_number"`
	Status        models.OrderStatus   `json:"status"`
	StatusHistory models.StatusHistory `json:"status_history"`
	CreatedAt     time.Time            `json:"created_at"`
}

// CreateOrder checks out the customer's cart. Stock is consumed item by item
// and given back if any later step fails before the order is stored.
func (s *OrderService) CreateOrder(ctx context.Context, actor auth.Actor, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.String("customer_id", actor.ID))
	defer span.End()

	if err := authorize(actor, auth.ActionCreateOrder, auth.Resource{}); err != nil {
		return nil, err
	}
	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, actor.ID, req.IdempotencyKey)
		if err == nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return existing, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, apperr.Internal(err, "failed to check idempotency key")
		}
	}

	cart, err := s.carts.GetCart(ctx, actor.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, apperr.Internal(err, "failed to load cart")
	}
	if cart == nil || len(cart.Items) == 0 {
		util.OrdersFailedTotal.WithLabelValues("cart_empty").Inc()
		return nil, apperr.Validation("cart is empty").WithCode(apperr.CodeCartEmpty)
	}

	address, err := s.addresses.GetAddress(ctx, actor.ID, req.ShippingAddressID)
	if errors.Is(err, models.ErrNotFound) {
		util.OrdersFailedTotal.WithLabelValues("address_not_found").Inc()
		return nil, apperr.NotFound("shipping address %s not found", req.ShippingAddressID).WithCode(apperr.CodeAddressNotFound)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load shipping address")
	}

	checkout := newSaga("checkout", s.logger)
	order, err := s.reserveAndPrice(ctx, checkout, cart)
	if err != nil {
		checkout.rollback(ctx)
		return nil, err
	}

	now := s.now().UTC()
	orderNumber, err := s.orders.NextOrderNumber(ctx, now)
	if err != nil {
		checkout.rollback(ctx)
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, apperr.Internal(err, "failed to allocate order number")
	}

	order.ID = uuid.NewString()
	order.OrderNumber = orderNumber
	order.CustomerID = actor.ID
	order.ShippingAddress = address.Snapshot()
	order.PaymentMethod = method
	order.Notes = req.Notes
	order.Status = models.OrderStatusPending
	order.StatusHistory = models.StatusHistory{{
		Status:    models.OrderStatusPending,
		Timestamp: now,
		Note:      "Order placed",
		ActorID:   actor.ID,
	}}
	order.IdempotencyKey = req.IdempotencyKey
	order.CreatedAt = now
	order.UpdatedAt = now

	payment := newPayment(order, s.currency, now)
	order.PaymentID = payment.ID

	if err := s.orders.CreateOrderWithPayment(ctx, order, payment); err != nil {
		checkout.rollback(ctx)
		if errors.Is(err, models.ErrDuplicateKey) && req.IdempotencyKey != "" {
			// a concurrent request with the same key won the insert
			if existing, getErr := s.orders.GetOrderByIdempotencyKey(ctx, actor.ID, req.IdempotencyKey); getErr == nil {
				return existing, nil
			}
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, apperr.Internal(err, "failed to create order")
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("final_amount", order.FinalAmount))

	cart.Items = []models.CartItem{}
	cart.UpdatedAt = now
	if err := s.carts.SaveCart(ctx, cart); err != nil {
		s.logger.Error("Failed to clear cart after checkout",
			zap.String("customer_id", actor.ID),
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	if err := s.events.PublishOrderCreated(ctx, &models.OrderCreatedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		FinalAmount: order.FinalAmount,
		Items:       itemData(order.Items),
	}); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// reserveAndPrice consumes stock for every cart line and freezes the priced items.
// Each successful decrement registers its own compensation.
func (s *OrderService) reserveAndPrice(ctx context.Context, checkout *saga, cart *models.Cart) (*models.Order, error) {
	order := &models.Order{Items: make(models.OrderItems, 0, len(cart.Items))}
	var total int64

	for _, line := range cart.Items {
		product, err := s.catalog.GetProductByID(ctx, line.ProductID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, apperr.Internal(err, "failed to load product %s", line.ProductID)
		}
		if err != nil || !product.IsActive {
			util.OrdersFailedTotal.WithLabelValues("product_unavailable").Inc()
			return nil, apperr.Validation("product %s is no longer available", line.ProductID).WithCode(apperr.CodeProductUnavailable)
		}

		ok, err := s.inventory.TryDecrement(ctx, product.ID, line.Quantity)
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues("stock_error").Inc()
			return nil, err
		}
		if !ok {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, apperr.InsufficientStock(product.ID, line.Quantity)
		}

		productID, qty := product.ID, line.Quantity
		checkout.onRollback("restock "+productID, func(ctx context.Context) error {
			return s.inventory.Increment(ctx, productID, qty)
		})

		unit := product.EffectivePrice()
		subtotal := unit * int64(line.Quantity)
		total += subtotal
		order.Items = append(order.Items, models.OrderItem{
			ProductID:  product.ID,
			SupplierID: product.SupplierID,
			Name:       product.Name,
			Quantity:   line.Quantity,
			UnitPrice:  unit,
			Subtotal:   subtotal,
		})
	}

	totals := s.pricing.Price(total, 0)
	order.TotalAmount = totals.Total
	order.Tax = totals.Tax
	order.ShippingCharges = totals.Shipping
	order.Discount = totals.Discount
	order.FinalAmount = totals.Final
	return order, nil
}

// GetOrder returns an order to its customer, a supplier on it, or an admin
func (s *OrderService) GetOrder(ctx context.Context, actor auth.Actor, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, loadErr(err, "order", orderID)
	}
	if err := authorize(actor, auth.ActionReadOrder, orderResource(order)); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns the customer's own orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, actor auth.Actor) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if err := authorize(actor, auth.ActionListOwnOrders, auth.Resource{}); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListOrdersByCustomer(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list orders")
	}
	return orders, nil
}

// TrackOrder returns status and history to the owning customer
func (s *OrderService) TrackOrder(ctx context.Context, actor auth.Actor, orderID string) (*TrackingInfo, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TrackOrder", attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, loadErr(err, "order", orderID)
	}
	if err := authorize(actor, auth.ActionTrackOrder, auth.Resource{OwnerID: order.CustomerID}); err != nil {
		return nil, err
	}
	return &TrackingInfo{
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		StatusHistory: order.StatusHistory,
		CreatedAt:     order.CreatedAt,
	}, nil
}

// UpdateStatus applies a forward transition on behalf of a supplier or admin
func (s *OrderService) UpdateStatus(ctx context.Context, actor auth.Actor, orderID string, req UpdateStatusRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.String("order_id", orderID), attribute.String("status", req.Status))
	defer span.End()

	next, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if next == models.OrderStatusCancelled {
		return nil, apperr.InvalidTransition("orders are cancelled through the cancel operation")
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, loadErr(err, "order", orderID)
	}
	if err := authorize(actor, auth.ActionUpdateOrderStatus, orderResource(order)); err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, apperr.InvalidTransition("cannot move order from %s to %s", order.Status, next)
	}

	updated, err := s.orders.TransitionOrder(ctx, order.ID, models.OrderTransition{
		From: []models.OrderStatus{order.Status},
		Entry: models.StatusEntry{
			Status:    next,
			Timestamp: s.now().UTC(),
			Note:      req.Note,
			ActorID:   actor.ID,
		},
	})
	if errors.Is(err, models.ErrStaleState) {
		return nil, apperr.Conflict("order %s changed concurrently, reload and retry", order.ID)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to update order status")
	}

	util.OrderTransitionsTotal.WithLabelValues(string(next)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(next)),
		zap.String("actor_id", actor.ID))

	if err := s.events.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{
		OrderID: order.ID,
		From:    order.Status,
		To:      next,
		ActorID: actor.ID,
	}); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
	return updated, nil
}

// CancelOrder cancels an order that has not shipped, restocks its items and
// settles its payment.
func (s *OrderService) CancelOrder(ctx context.Context, actor auth.Actor, orderID string, req CancelOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, loadErr(err, "order", orderID)
	}
	if err := authorize(actor, auth.ActionCancelOrder, auth.Resource{OwnerID: order.CustomerID}); err != nil {
		return nil, err
	}
	if !slices.Contains(models.CancellableStatuses, order.Status) {
		return nil, apperr.InvalidTransition("order %s is %s and can no longer be cancelled", order.ID, order.Status)
	}

	reason := req.Reason
	if reason == "" {
		reason = "Cancelled by " + string(actor.Role)
	}
	now := s.now().UTC()
	cancelled, err := s.orders.TransitionOrder(ctx, order.ID, models.OrderTransition{
		From: models.CancellableStatuses,
		Entry: models.StatusEntry{
			Status:    models.OrderStatusCancelled,
			Timestamp: now,
			Note:      reason,
			ActorID:   actor.ID,
		},
		CancelledAt:        &now,
		CancellationReason: reason,
	})
	if errors.Is(err, models.ErrStaleState) {
		return nil, apperr.InvalidTransition("order %s can no longer be cancelled", order.ID)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to cancel order")
	}

	util.OrdersCancelledTotal.Inc()
	util.OrderTransitionsTotal.WithLabelValues(string(models.OrderStatusCancelled)).Inc()

	// the cancellation is committed; finish restock and settlement even if the caller goes away
	detached := context.WithoutCancel(ctx)
	for _, item := range cancelled.Items {
		if err := s.inventory.Increment(detached, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to restock cancelled order item",
				zap.String("order_id", cancelled.ID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
		}
	}

	if err := s.payments.SettleCancellation(detached, cancelled); err != nil {
		s.logger.Error("Failed to settle payment of cancelled order",
			zap.String("order_id", cancelled.ID),
			zap.Error(err))
	}

	s.logger.Info("Order cancelled",
		zap.String("order_id", cancelled.ID),
		zap.String("actor_id", actor.ID),
		zap.String("reason", reason))

	if err := s.events.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{
		OrderID: cancelled.ID,
		Reason:  reason,
		Items:   itemData(cancelled.Items),
	}); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	return cancelled, nil
}

func itemData(items models.OrderItems) []models.OrderItemData {
	data := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		data = append(data, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return data
}
