package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TAX_RATE_PERCENT", "")
	t.Setenv("STOCK_LEDGER", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(18), cfg.Business.TaxRatePercent)
	assert.Equal(t, int64(50000), cfg.Business.FreeShippingThreshold)
	assert.Equal(t, int64(5000), cfg.Business.FlatShippingFee)
	assert.Equal(t, "postgres", cfg.Business.StockLedger)
	assert.True(t, cfg.Business.RefundOnCancel)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PAYMENT_GATEWAY_TIMEOUT", "3s")
	t.Setenv("PAYMENT_GATEWAY_MAX_RETRIES", "5")
	t.Setenv("PAYMENT_REFUND_ON_CANCEL", "false")
	t.Setenv("STOCK_LEDGER", "redis")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 5, cfg.Gateway.MaxRetries)
	assert.False(t, cfg.Business.RefundOnCancel)
	assert.Equal(t, "redis", cfg.Business.StockLedger)
	assert.Equal(t, 0, cfg.Redis.DB)
}
