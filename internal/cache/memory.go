package cache

import (
	"context"
	"sync"
	"time"

	"volsignals-bot/internal/models"
)

type entry struct {
	candle models.Candle
	exp    time.Time
}

// Memory is an in-process TTL cache. Expired entries are dropped lazily on
// read.
type Memory struct {
	mu sync.RWMutex
	m  map[string]entry
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]entry)}
}

func (c *Memory) Get(_ context.Context, symbol string) (models.Candle, bool, error) {
	c.mu.RLock()
	e, ok := c.m[symbol]
	c.mu.RUnlock()
	if !ok {
		return models.Candle{}, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, symbol)
		c.mu.Unlock()
		return models.Candle{}, false, nil
	}
	return e.candle, true, nil
}

func (c *Memory) Set(_ context.Context, symbol string, candle models.Candle, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.m[symbol] = entry{candle: candle, exp: exp}
	c.mu.Unlock()
	return nil
}
