package thresholds

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"volsignals-bot/internal/models"
)

type fakeSource struct {
	candles map[string][]models.Candle
	err     error
}

func (f *fakeSource) GetRecentKlines(_ context.Context, symbol, _ string, _ int) ([]models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candles[symbol], nil
}

type fakeStore struct {
	saved map[string]models.ThresholdSet
}

func (f *fakeStore) SaveThresholds(symbol string, ts models.ThresholdSet) error {
	if f.saved == nil {
		f.saved = make(map[string]models.ThresholdSet)
	}
	f.saved[symbol] = ts
	return nil
}

// series builds n candles with volatility i% for i in 1..n.
func series(n int) []models.Candle {
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = models.Candle{
			OpenTime: int64(i) * 300_000,
			Open:     "100",
			High:     fmt.Sprintf("%d", 100+i+1),
			Low:      "100",
			Close:    "100",
			Volume:   "1",
		}
	}
	return candles
}

func TestRecomputeSymbol(t *testing.T) {
	source := &fakeSource{candles: map[string][]models.Candle{"BTCUSDT": series(100)}}
	store := &fakeStore{}
	r := New(source, store, "5m", 100)

	ts, err := r.RecomputeSymbol(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("RecomputeSymbol: %v", err)
	}
	if ts.Q25 != 25.75 || ts.Q50 != 50.5 || ts.Q75 != 75.25 {
		t.Errorf("unexpected thresholds: %+v", ts)
	}
	if got := store.saved["BTCUSDT"]; got != ts {
		t.Errorf("stored thresholds %+v differ from returned %+v", got, ts)
	}
}

func TestRecomputeSymbol_NoPositiveSamples(t *testing.T) {
	flat := []models.Candle{
		{OpenTime: 0, Open: "100", High: "100", Low: "100", Close: "100", Volume: "1"},
	}
	source := &fakeSource{candles: map[string][]models.Candle{"BTCUSDT": flat}}
	store := &fakeStore{}
	r := New(source, store, "5m", 100)

	if _, err := r.RecomputeSymbol(context.Background(), "BTCUSDT"); err == nil {
		t.Error("expected error for flat series")
	}
	if len(store.saved) != 0 {
		t.Error("flat series must not overwrite stored thresholds")
	}
}

func TestRecomputeAll_ContinuesPastFailures(t *testing.T) {
	source := &fakeSource{candles: map[string][]models.Candle{
		"BTCUSDT": series(50),
		// ETHUSDT missing: empty series fails.
		"SOLUSDT": series(50),
	}}
	store := &fakeStore{}
	r := New(source, store, "5m", 50)

	updated, err := r.RecomputeAll(context.Background(), []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}
	if err == nil {
		t.Error("expected first failure to be reported")
	}
	if _, ok := store.saved["SOLUSDT"]; !ok {
		t.Error("recompute should continue past a failed symbol")
	}
}

func TestRecomputeAll_FetchError(t *testing.T) {
	source := &fakeSource{err: errors.New("network down")}
	r := New(source, &fakeStore{}, "5m", 50)

	updated, err := r.RecomputeAll(context.Background(), []string{"BTCUSDT"})
	if updated != 0 || err == nil {
		t.Errorf("updated = %d, err = %v; want 0 and error", updated, err)
	}
}
