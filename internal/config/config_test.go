package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"ORDER_TTL", "PIXEL_PRICE", "KAFKA_BROKERS", "MAX_PIXELS_PER_ORDER", "STORE"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, 20*time.Minute, cfg.OrderTTL)
	assert.True(t, cfg.PixelPrice.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10_000, cfg.MaxPixelsPerOrder)
	assert.Equal(t, "postgres", cfg.Store)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ORDER_TTL", "90s")
	t.Setenv("PIXEL_PRICE", "2.50")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("SETTLER_WORKERS", "12")
	cfg := Load()

	assert.Equal(t, 90*time.Second, cfg.OrderTTL)
	assert.Equal(t, "2.5", cfg.PixelPrice.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 12, cfg.SettlerWorkers)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ORDER_TTL", "soon")
	t.Setenv("PIXEL_PRICE", "-3")
	t.Setenv("SETTLER_WORKERS", "many")
	cfg := Load()

	assert.Equal(t, 20*time.Minute, cfg.OrderTTL)
	assert.True(t, cfg.PixelPrice.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 4, cfg.SettlerWorkers)
}
