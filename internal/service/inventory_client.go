package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StockMirror is the database behind a cache ledger. It receives the deltas
// applied to the ledger and supplies the initial value of missing counters.
type StockMirror interface {
	AdjustStock(ctx context.Context, productID string, delta int) error
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
}

// InventoryClient fronts the stock ledger for cart validation, checkout and restock
type InventoryClient struct {
	ledger StockLedger
	mirror StockMirror
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client. mirror may be nil when
// the ledger is the database itself.
func NewInventoryClient(ledger StockLedger, mirror StockMirror) *InventoryClient {
	return &InventoryClient{
		ledger: ledger,
		mirror: mirror,
		logger: util.GetLogger(),
	}
}

// TryDecrement removes qty units in one conditional write; false means not enough stock
func (ic *InventoryClient) TryDecrement(ctx context.Context, productID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, apperr.Validation("quantity must be positive, got %d", qty)
	}

	ctx, span := util.StartSpan(ctx, "InventoryClient.TryDecrement",
		attribute.String("product_id", productID), attribute.Int("quantity", qty))
	defer span.End()

	start := time.Now()
	ok, err := ic.ledger.TryDecrement(ctx, productID, qty)
	if errors.Is(err, models.ErrNotFound) && ic.seedMissing(ctx, productID) {
		ok, err = ic.ledger.TryDecrement(ctx, productID, qty)
	}
	util.StockDecrementLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.StockDecrementsFailed.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		if errors.Is(err, models.ErrNotFound) {
			return false, apperr.NotFound("product %s not found", productID).WithCode(apperr.CodeProductNotFound)
		}
		return false, fmt.Errorf("failed to decrement stock for product %s: %w", productID, err)
	}
	if !ok {
		util.StockDecrementsFailed.WithLabelValues("insufficient_stock").Inc()
		return false, nil
	}

	ic.writeBack(productID, -qty)
	return true, nil
}

// Increment adds qty units back
func (ic *InventoryClient) Increment(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be positive, got %d", qty)
	}

	ctx, span := util.StartSpan(ctx, "InventoryClient.Increment",
		attribute.String("product_id", productID), attribute.Int("quantity", qty))
	defer span.End()

	err := ic.ledger.Increment(ctx, productID, qty)
	if errors.Is(err, models.ErrNotFound) && ic.seedMissing(ctx, productID) {
		err = ic.ledger.Increment(ctx, productID, qty)
	}
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to restock product %s: %w", productID, err)
	}

	ic.writeBack(productID, qty)
	return nil
}

// Available returns the live counter
func (ic *InventoryClient) Available(ctx context.Context, productID string) (int, error) {
	stock, err := ic.ledger.Available(ctx, productID)
	if errors.Is(err, models.ErrNotFound) && ic.seedMissing(ctx, productID) {
		return ic.ledger.Available(ctx, productID)
	}
	return stock, err
}

// seedMissing creates an absent ledger counter, e.g. for a product added
// after startup, from the database row.
func (ic *InventoryClient) seedMissing(ctx context.Context, productID string) bool {
	seeder, ok := ic.ledger.(StockSeeder)
	if ic.mirror == nil || !ok {
		return false
	}

	product, err := ic.mirror.GetProductByID(ctx, productID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			ic.logger.Error("Failed to load product for ledger seeding", zap.String("product_id", productID), zap.Error(err))
		}
		return false
	}
	if err := seeder.SeedStock(ctx, productID, product.Stock); err != nil {
		ic.logger.Error("Failed to seed ledger counter", zap.String("product_id", productID), zap.Error(err))
		return false
	}
	ic.logger.Info("Seeded missing ledger counter", zap.String("product_id", productID), zap.Int("stock", product.Stock))
	return true
}

// writeBack copies a ledger delta to the database asynchronously
func (ic *InventoryClient) writeBack(productID string, delta int) {
	if ic.mirror == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := ic.mirror.AdjustStock(ctx, productID, delta); err != nil {
			ic.logger.Error("Failed to write stock delta back to DB",
				zap.String("product_id", productID),
				zap.Int("delta", delta),
				zap.Error(err))
		}
	}()
}

// ProductLister lists the catalog for ledger seeding
type ProductLister interface {
	GetProducts(ctx context.Context) ([]models.Product, error)
}

// StockSeeder initialises ledger counters that do not exist yet
type StockSeeder interface {
	SeedStock(ctx context.Context, productID string, stock int) error
}

// SyncStockToLedger copies database stock into a cache ledger at startup
func SyncStockToLedger(ctx context.Context, catalog ProductLister, seeder StockSeeder) error {
	logger := util.GetLogger()
	logger.Info("Starting stock sync to ledger")

	products, err := catalog.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	for _, product := range products {
		if err := seeder.SeedStock(ctx, product.ID, product.Stock); err != nil {
			logger.Error("Failed to seed stock",
				zap.String("product_id", product.ID),
				zap.Error(err))
		}
	}

	logger.Info("Stock sync completed", zap.Int("count", len(products)))
	return nil
}
