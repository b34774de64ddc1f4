package service

import (
	"context"
	"errors"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CartService manages the per-customer basket. It never touches stock.
type CartService struct {
	carts     CartRepository
	catalog   ProductCatalog
	inventory *InventoryClient
	logger    *zap.Logger
	now       func() time.Time
}

// NewCartService creates a new cart service
func NewCartService(carts CartRepository, catalog ProductCatalog, inventory *InventoryClient) *CartService {
	return &CartService{
		carts:     carts,
		catalog:   catalog,
		inventory: inventory,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// AddItemRequest adds a product to the cart
type AddItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

// UpdateItemRequest changes a line quantity
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// GetCart returns the customer's cart, empty if none exists yet
func (s *CartService) GetCart(ctx context.Context, actor auth.Actor) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	if err := authorize(actor, auth.ActionManageCart, auth.Resource{}); err != nil {
		return nil, err
	}
	return s.load(ctx, actor.ID)
}

// AddItem merges qty units of a product into the cart at the current price
func (s *CartService) AddItem(ctx context.Context, actor auth.Actor, req AddItemRequest) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem", attribute.String("product_id", req.ProductID))
	defer span.End()

	if err := authorize(actor, auth.ActionManageCart, auth.Resource{}); err != nil {
		return nil, err
	}
	if req.Quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}

	product, err := s.activeProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	cart, err := s.load(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	idx := cart.FindProduct(product.ID)
	quantity := req.Quantity
	if idx >= 0 {
		quantity += cart.Items[idx].Quantity
	}
	if err := s.checkStock(ctx, product, quantity); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if idx >= 0 {
		cart.Items[idx].Quantity = quantity
		cart.Items[idx].PriceSnapshot = product.EffectivePrice()
	} else {
		cart.Items = append(cart.Items, models.CartItem{
			ID:            uuid.NewString(),
			ProductID:     product.ID,
			Quantity:      quantity,
			PriceSnapshot: product.EffectivePrice(),
			AddedAt:       now,
		})
	}

	return s.save(ctx, cart, now)
}

// UpdateItem sets the quantity of an existing line
func (s *CartService) UpdateItem(ctx context.Context, actor auth.Actor, itemID string, req UpdateItemRequest) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem", attribute.String("item_id", itemID))
	defer span.End()

	if err := authorize(actor, auth.ActionManageCart, auth.Resource{}); err != nil {
		return nil, err
	}
	if req.Quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}

	cart, err := s.load(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	idx := cart.FindItem(itemID)
	if idx < 0 {
		return nil, apperr.NotFound("cart item %s not found", itemID)
	}

	product, err := s.activeProduct(ctx, cart.Items[idx].ProductID)
	if err != nil {
		return nil, err
	}
	if err := s.checkStock(ctx, product, req.Quantity); err != nil {
		return nil, err
	}

	cart.Items[idx].Quantity = req.Quantity
	cart.Items[idx].PriceSnapshot = product.EffectivePrice()
	return s.save(ctx, cart, s.now().UTC())
}

// RemoveItem deletes a line from the cart
func (s *CartService) RemoveItem(ctx context.Context, actor auth.Actor, itemID string) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem", attribute.String("item_id", itemID))
	defer span.End()

	if err := authorize(actor, auth.ActionManageCart, auth.Resource{}); err != nil {
		return nil, err
	}

	cart, err := s.load(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	idx := cart.FindItem(itemID)
	if idx < 0 {
		return nil, apperr.NotFound("cart item %s not found", itemID)
	}

	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	return s.save(ctx, cart, s.now().UTC())
}

// ClearCart empties the cart but keeps the document
func (s *CartService) ClearCart(ctx context.Context, actor auth.Actor) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.ClearCart")
	defer span.End()

	if err := authorize(actor, auth.ActionManageCart, auth.Resource{}); err != nil {
		return nil, err
	}
	cart := &models.Cart{CustomerID: actor.ID, Items: []models.CartItem{}}
	return s.save(ctx, cart, s.now().UTC())
}

func (s *CartService) load(ctx context.Context, customerID string) (*models.Cart, error) {
	cart, err := s.carts.GetCart(ctx, customerID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.Cart{CustomerID: customerID, Items: []models.CartItem{}}, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load cart")
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, cart *models.Cart, now time.Time) (*models.Cart, error) {
	cart.UpdatedAt = now
	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return nil, apperr.Internal(err, "failed to save cart")
	}
	return cart, nil
}

func (s *CartService) activeProduct(ctx context.Context, productID string) (*models.Product, error) {
	product, err := s.catalog.GetProductByID(ctx, productID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("product %s not found", productID).WithCode(apperr.CodeProductNotFound)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load product %s", productID)
	}
	if !product.IsActive {
		return nil, apperr.Validation("product %s is not available for sale", productID).WithCode(apperr.CodeProductInactive)
	}
	return product, nil
}

// checkStock compares against the live ledger; the catalog row is used when
// the ledger has no counter for the product yet.
func (s *CartService) checkStock(ctx context.Context, product *models.Product, quantity int) error {
	available, err := s.inventory.Available(ctx, product.ID)
	if errors.Is(err, models.ErrNotFound) {
		available = product.Stock
	} else if err != nil {
		return apperr.Internal(err, "failed to read stock for product %s", product.ID)
	}
	if quantity > available {
		return apperr.InsufficientStock(product.ID, quantity)
	}
	return nil
}
