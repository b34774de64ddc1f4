package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"checkout-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/try_decrement.lua
var tryDecrementScript string

//go:embed scripts/increment.lua
var incrementScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

// ErrLockHeld is returned when another request owns the lock
var ErrLockHeld = errors.New("lock already held")

type Client struct {
	rdb             *redis.Client
	decrementScript *redis.Script
	incrementScript *redis.Script
	unlockScript    *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:             rdb,
		decrementScript: redis.NewScript(tryDecrementScript),
		incrementScript: redis.NewScript(incrementScript),
		unlockScript:    redis.NewScript(releaseLockScript),
	}, nil
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID string) string {
	return fmt.Sprintf("stock:%s", productID)
}

// TryDecrement atomically removes qty units if available, using a Lua script
func (c *Client) TryDecrement(ctx context.Context, productID string, qty int) (bool, error) {
	result, err := c.decrementScript.Run(ctx, c.rdb, []string{stockKey(productID)}, qty).Int64()
	if err != nil {
		return false, fmt.Errorf("try decrement script failed: %w", err)
	}

	switch result {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("stock counter for product %s: %w", productID, models.ErrNotFound)
	}
}

// Increment atomically adds qty units back
func (c *Client) Increment(ctx context.Context, productID string, qty int) error {
	result, err := c.incrementScript.Run(ctx, c.rdb, []string{stockKey(productID)}, qty).Int64()
	if err != nil {
		return fmt.Errorf("increment script failed: %w", err)
	}
	if result < 0 {
		return fmt.Errorf("stock counter for product %s: %w", productID, models.ErrNotFound)
	}
	return nil
}

// Available returns the current counter value
func (c *Client) Available(ctx context.Context, productID string) (int, error) {
	raw, err := c.rdb.Get(ctx, stockKey(productID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("stock counter for product %s: %w", productID, models.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

// SeedStock creates a counter from the database value. A live counter is
// never overwritten: the database trails it by the pending write-backs.
func (c *Client) SeedStock(ctx context.Context, productID string, stock int) error {
	return c.rdb.SetNX(ctx, stockKey(productID), stock, 0).Err()
}

// AcquireLock takes a distributed lock and returns the token needed to release it
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

// ReleaseLock releases a distributed lock if the token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return c.unlockScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}
