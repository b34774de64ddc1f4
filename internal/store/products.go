package store

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
)

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, translate(err, "product %s", id)
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// TryDecrement removes qty units only if that many are available.
// The guard and the write are one statement, so concurrent callers serialize on the row.
func (s *Store) TryDecrement(ctx context.Context, productID string, qty int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		qty, productID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock for %s: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Increment adds qty units back to a product
func (s *Store) Increment(ctx context.Context, productID string, qty int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		qty, productID)
	if err != nil {
		return fmt.Errorf("failed to increment stock for %s: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	return nil
}

// Available returns the live stock counter
func (s *Store) Available(ctx context.Context, productID string) (int, error) {
	var stock int
	err := s.db.GetContext(ctx, &stock, "SELECT stock FROM products WHERE id = $1", productID)
	if err != nil {
		return 0, translate(err, "product %s", productID)
	}
	return stock, nil
}

// AdjustStock mirrors a ledger delta kept elsewhere, clamping at zero
func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = GREATEST(stock + $1, 0), updated_at = NOW() WHERE id = $2",
		delta, productID)
	return err
}
