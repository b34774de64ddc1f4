package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/go-redis/redis/v8"
)

func cartKey(customerID string) string {
	return fmt.Sprintf("cart:%s", customerID)
}

// GetCart loads the customer's cart document
func (c *Client) GetCart(ctx context.Context, customerID string) (*models.Cart, error) {
	raw, err := c.rdb.Get(ctx, cartKey(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cart for customer %s: %w", customerID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	var cart models.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return &cart, nil
}

// SaveCart replaces the whole cart document
func (c *Client) SaveCart(ctx context.Context, cart *models.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := c.rdb.Set(ctx, cartKey(cart.CustomerID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}
