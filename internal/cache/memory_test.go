package cache

import (
	"context"
	"testing"
	"time"

	"volsignals-bot/internal/models"
)

func TestMemory_SetGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	candle := models.Candle{OpenTime: 100, Open: "1", High: "2", Low: "1", Close: "2", Volume: "10"}

	if err := c.Set(ctx, "BTCUSDT", candle, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.OpenTime != 100 {
		t.Errorf("open time: got %d", got.OpenTime)
	}
}

func TestMemory_Miss(t *testing.T) {
	c := NewMemory()
	if _, ok, _ := c.Get(context.Background(), "NOPE"); ok {
		t.Error("expected cache miss")
	}
}

func TestMemory_Expiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	_ = c.Set(ctx, "BTCUSDT", models.Candle{OpenTime: 1}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "BTCUSDT"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	_ = c.Set(ctx, "BTCUSDT", models.Candle{OpenTime: 1}, 0)
	if _, ok, _ := c.Get(ctx, "BTCUSDT"); !ok {
		t.Error("expected hit for zero-TTL entry")
	}
}
