// Package thresholds recomputes per-symbol volatility percentile thresholds
// from a long candle series and persists them for the classifier.
package thresholds

import (
	"context"
	"fmt"

	"volsignals-bot/internal/analytics"
	"volsignals-bot/internal/logger"
	"volsignals-bot/internal/models"
)

// klineSource is the slice of the market-data client the recompute needs.
type klineSource interface {
	GetRecentKlines(ctx context.Context, symbol, interval string, count int) ([]models.Candle, error)
}

// thresholdStore persists computed threshold sets.
type thresholdStore interface {
	SaveThresholds(symbol string, ts models.ThresholdSet) error
}

// Recomputer fetches historical candles and derives Q25/Q50/Q75 volatility
// thresholds per symbol.
type Recomputer struct {
	source      klineSource
	store       thresholdStore
	interval    string
	sampleCount int
}

// New creates a Recomputer that samples sampleCount candles at interval.
func New(source klineSource, store thresholdStore, interval string, sampleCount int) *Recomputer {
	return &Recomputer{
		source:      source,
		store:       store,
		interval:    interval,
		sampleCount: sampleCount,
	}
}

// RecomputeSymbol fetches the sample series for one symbol, computes its
// thresholds, and persists them. A series with no positive volatility samples
// is rejected rather than stored as the zero triple.
func (r *Recomputer) RecomputeSymbol(ctx context.Context, symbol string) (models.ThresholdSet, error) {
	candles, err := r.source.GetRecentKlines(ctx, symbol, r.interval, r.sampleCount)
	if err != nil {
		return models.ThresholdSet{}, fmt.Errorf("failed to fetch sample series for %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return models.ThresholdSet{}, fmt.Errorf("no candles returned for %s", symbol)
	}

	ts := analytics.ThresholdsFromSeries(candles)
	if ts.IsZero() {
		return models.ThresholdSet{}, fmt.Errorf("no positive volatility samples for %s", symbol)
	}
	if err := r.store.SaveThresholds(symbol, ts); err != nil {
		return models.ThresholdSet{}, err
	}
	logger.Info("Recomputed thresholds for %s over %d candles: q25=%.4f q50=%.4f q75=%.4f",
		symbol, len(candles), ts.Q25, ts.Q50, ts.Q75)
	return ts, nil
}

// RecomputeAll recomputes thresholds for every symbol, continuing past
// per-symbol failures. It returns the number of symbols updated and the
// first error encountered, if any.
func (r *Recomputer) RecomputeAll(ctx context.Context, symbols []string) (int, error) {
	var updated int
	var firstErr error
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if _, err := r.RecomputeSymbol(ctx, symbol); err != nil {
			logger.Error("Threshold recompute failed for %s: %v", symbol, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		updated++
	}
	return updated, firstErr
}
