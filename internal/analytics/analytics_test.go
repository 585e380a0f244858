package analytics

import (
	"fmt"
	"math"
	"testing"

	"volsignals-bot/internal/models"
)

func candle(open, high, low, closeP, volume, quoteVolume string) models.Candle {
	return models.Candle{
		Open: open, High: high, Low: low, Close: closeP,
		Volume: volume, QuoteVolume: quoteVolume,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestVolatilityPct(t *testing.T) {
	c := candle("100", "110", "95", "105", "10", "1050")
	if got := VolatilityPct(c); !almostEqual(got, 15.0) {
		t.Errorf("got %v, want 15.0", got)
	}
}

func TestVolatilityPct_ZeroOpen(t *testing.T) {
	c := candle("0", "110", "95", "105", "10", "1050")
	if got := VolatilityPct(c); got != 0 {
		t.Errorf("got %v, want 0 for zero open", got)
	}
}

func TestVolatilityPct_Malformed(t *testing.T) {
	cases := []models.Candle{
		candle("", "110", "95", "105", "10", ""),
		candle("abc", "110", "95", "105", "10", ""),
		candle("100", "", "95", "105", "10", ""),
		candle("100", "110", "x", "105", "10", ""),
	}
	for i, c := range cases {
		if got := VolatilityPct(c); got != 0 {
			t.Errorf("case %d: got %v, want 0", i, got)
		}
	}
}

func TestQuoteVolume_Explicit(t *testing.T) {
	c := candle("100", "110", "95", "105", "10", "1234.5")
	if got := QuoteVolume(c); !almostEqual(got, 1234.5) {
		t.Errorf("got %v, want 1234.5", got)
	}
}

func TestQuoteVolume_Fallback(t *testing.T) {
	c := candle("100", "110", "95", "105", "10", "")
	if got := QuoteVolume(c); !almostEqual(got, 1050) {
		t.Errorf("got %v, want volume*close = 1050", got)
	}
}

func TestQuoteVolume_TotalFailure(t *testing.T) {
	c := candle("100", "110", "95", "bad", "bad", "")
	if got := QuoteVolume(c); got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestAverageVolume_Empty(t *testing.T) {
	if got := AverageVolume(nil); got != 0 {
		t.Errorf("got %v, want 0 for empty window", got)
	}
}

func TestAverageVolume_Identical(t *testing.T) {
	var history []models.Candle
	for i := 0; i < 20; i++ {
		history = append(history, candle("1", "1", "1", "1", "1", "42.5"))
	}
	if got := AverageVolume(history); !almostEqual(got, 42.5) {
		t.Errorf("got %v, want 42.5", got)
	}
}

func TestThresholdsFromSeries_LinearInterpolation(t *testing.T) {
	// Volatility values 1..100: open=100, low=100, high=100+v gives v%.
	var candles []models.Candle
	for v := 1; v <= 100; v++ {
		high := fmt.Sprintf("%d", 100+v)
		candles = append(candles, candle("100", high, "100", "100", "1", "1"))
	}
	ts := ThresholdsFromSeries(candles)
	if !almostEqual(ts.Q25, 25.75) {
		t.Errorf("q25: got %v, want 25.75", ts.Q25)
	}
	if !almostEqual(ts.Q50, 50.5) {
		t.Errorf("q50: got %v, want 50.5", ts.Q50)
	}
	if !almostEqual(ts.Q75, 75.25) {
		t.Errorf("q75: got %v, want 75.25", ts.Q75)
	}
}

func TestThresholdsFromSeries_NoPositiveSamples(t *testing.T) {
	candles := []models.Candle{
		candle("100", "100", "100", "100", "1", "1"), // zero volatility
		candle("0", "110", "95", "100", "1", "1"),    // zero open
	}
	if ts := ThresholdsFromSeries(candles); !ts.IsZero() {
		t.Errorf("got %+v, want zero triple", ts)
	}
}

func TestThresholdsFromSeries_FiltersNonPositive(t *testing.T) {
	// A flat candle must not drag the quantiles toward zero.
	candles := []models.Candle{
		candle("100", "100", "100", "100", "1", "1"),
		candle("100", "110", "100", "105", "1", "1"),
		candle("100", "120", "100", "110", "1", "1"),
	}
	ts := ThresholdsFromSeries(candles)
	if ts.Q25 < 10 {
		t.Errorf("q25 %v includes filtered zero sample", ts.Q25)
	}
}

func TestSMA(t *testing.T) {
	candles := []models.Candle{
		candle("1", "1", "1", "10", "1", "1"),
		candle("1", "1", "1", "20", "1", "1"),
		candle("1", "1", "1", "30", "1", "1"),
	}
	sma, ok := SMA(candles, 2)
	if !ok {
		t.Fatal("expected ok")
	}
	if !almostEqual(sma, 25) {
		t.Errorf("got %v, want 25", sma)
	}
}

func TestSMA_Insufficient(t *testing.T) {
	candles := []models.Candle{candle("1", "1", "1", "10", "1", "1")}
	if _, ok := SMA(candles, 12); ok {
		t.Error("expected not ok with fewer candles than period")
	}
}

func TestTrendOf(t *testing.T) {
	up := []models.Candle{
		candle("1", "1", "1", "10", "1", "1"),
		candle("1", "1", "1", "20", "1", "1"),
		candle("1", "1", "1", "40", "1", "1"),
	}
	if got := TrendOf(up, 3); got != TrendUp {
		t.Errorf("got %v, want TrendUp", got)
	}
	down := []models.Candle{
		candle("1", "1", "1", "40", "1", "1"),
		candle("1", "1", "1", "20", "1", "1"),
		candle("1", "1", "1", "10", "1", "1"),
	}
	if got := TrendOf(down, 3); got != TrendDown {
		t.Errorf("got %v, want TrendDown", got)
	}
}

func TestTrendOf_InsufficientIsUnknown(t *testing.T) {
	candles := []models.Candle{candle("1", "1", "1", "10", "1", "1")}
	if got := TrendOf(candles, 12); got != TrendUnknown {
		t.Errorf("got %v, want TrendUnknown", got)
	}
	if TrendUnknown.Marker() != "⚪" {
		t.Errorf("neutral marker: got %q", TrendUnknown.Marker())
	}
}

func TestLevel(t *testing.T) {
	ts := models.ThresholdSet{Q25: 1, Q50: 2, Q75: 3}
	cases := []struct {
		vol  float64
		want int
	}{
		{0.5, 1}, {1, 1}, {1.5, 2}, {2, 2}, {2.5, 3}, {3, 3}, {3.5, 4},
	}
	for _, tc := range cases {
		if got := Level(tc.vol, ts); got != tc.want {
			t.Errorf("Level(%v): got %d, want %d", tc.vol, got, tc.want)
		}
	}
}

func TestLevel_ZeroThresholds(t *testing.T) {
	// Missing thresholds degrade to level 4 for any positive volatility.
	if got := Level(0.001, models.ThresholdSet{}); got != 4 {
		t.Errorf("got %d, want 4", got)
	}
	if got := Level(0, models.ThresholdSet{}); got != 1 {
		t.Errorf("got %d, want 1 for zero volatility", got)
	}
}

func TestLevelEmoji(t *testing.T) {
	want := map[int]string{1: "😶", 2: "🙂", 3: "🤪", 4: "😱"}
	for level, emoji := range want {
		if got := LevelEmoji(level); got != emoji {
			t.Errorf("level %d: got %q, want %q", level, got, emoji)
		}
	}
	if got := LevelEmoji(0); got != "" {
		t.Errorf("level 0: got %q, want empty", got)
	}
}
