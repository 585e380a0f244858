// Package analytics holds the pure metric functions: per-candle volatility,
// quote volume, rolling averages, percentile thresholds, and the level
// classification derived from them.
package analytics

import (
	"math"
	"sort"
	"strconv"

	"volsignals-bot/internal/models"
)

// VolatilityPct computes (high - low) / open * 100 for one candle.
// Malformed fields or a zero open fail soft to 0.
func VolatilityPct(c models.Candle) float64 {
	open, err1 := strconv.ParseFloat(c.Open, 64)
	high, err2 := strconv.ParseFloat(c.High, 64)
	low, err3 := strconv.ParseFloat(c.Low, 64)
	if err1 != nil || err2 != nil || err3 != nil || open == 0 {
		return 0
	}
	return (high - low) / open * 100
}

// QuoteVolume returns the candle's traded volume in quote currency. It
// prefers the explicit quote-volume field and falls back to volume * close
// when the field is absent or unparsable; total failure yields 0.
func QuoteVolume(c models.Candle) float64 {
	if qv, err := strconv.ParseFloat(c.QuoteVolume, 64); err == nil {
		return qv
	}
	volume, err1 := strconv.ParseFloat(c.Volume, 64)
	closeP, err2 := strconv.ParseFloat(c.Close, 64)
	if err1 != nil || err2 != nil {
		return 0
	}
	return volume * closeP
}

// AverageVolume is the arithmetic mean of QuoteVolume over the supplied
// window, however many candles it holds. An empty window yields 0.
func AverageVolume(history []models.Candle) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, c := range history {
		sum += QuoteVolume(c)
	}
	return sum / float64(len(history))
}

// ThresholdsFromSeries computes the 25th/50th/75th volatility percentiles
// over the strictly positive samples of the series. No positive samples
// yield the zero triple.
func ThresholdsFromSeries(candles []models.Candle) models.ThresholdSet {
	var vols []float64
	for _, c := range candles {
		if v := VolatilityPct(c); v > 0 {
			vols = append(vols, v)
		}
	}
	if len(vols) == 0 {
		return models.ThresholdSet{}
	}
	sort.Float64s(vols)
	return models.ThresholdSet{
		Q25: percentile(vols, 25),
		Q50: percentile(vols, 50),
		Q75: percentile(vols, 75),
	}
}

// percentile computes the p-th percentile of an ascending-sorted series
// using linear interpolation between order statistics.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// SMA is the mean of close prices over the last period candles. It reports
// ok=false when fewer than period candles are available or period is
// non-positive; callers show the neutral trend marker in that case.
func SMA(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period {
		return 0, false
	}
	var sum float64
	for _, c := range candles[len(candles)-period:] {
		closeP, err := strconv.ParseFloat(c.Close, 64)
		if err != nil {
			return 0, false
		}
		sum += closeP
	}
	return sum / float64(period), true
}

// Trend is a coarse direction marker of price against its moving average.
type Trend int

const (
	TrendUnknown Trend = iota
	TrendUp
	TrendDown
)

// Marker returns the emoji shown for the trend in signal messages.
func (t Trend) Marker() string {
	switch t {
	case TrendUp:
		return "🟢"
	case TrendDown:
		return "🔴"
	}
	return "⚪"
}

// TrendOf compares the latest close against the period-SMA. Insufficient or
// malformed data yields TrendUnknown rather than a direction.
func TrendOf(candles []models.Candle, period int) Trend {
	sma, ok := SMA(candles, period)
	if !ok || len(candles) == 0 {
		return TrendUnknown
	}
	last, err := strconv.ParseFloat(candles[len(candles)-1].Close, 64)
	if err != nil {
		return TrendUnknown
	}
	switch {
	case last > sma:
		return TrendUp
	case last < sma:
		return TrendDown
	}
	return TrendUnknown
}

// Level buckets a volatility percentage against a symbol's thresholds:
// <=q25 -> 1, <=q50 -> 2, <=q75 -> 3, else 4.
func Level(volPct float64, ts models.ThresholdSet) int {
	switch {
	case volPct <= ts.Q25:
		return 1
	case volPct <= ts.Q50:
		return 2
	case volPct <= ts.Q75:
		return 3
	}
	return 4
}

// LevelEmoji maps a level to its conventional indicator.
func LevelEmoji(level int) string {
	switch level {
	case 1:
		return "😶"
	case 2:
		return "🙂"
	case 3:
		return "🤪"
	case 4:
		return "😱"
	}
	return ""
}
