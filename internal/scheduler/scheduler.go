// Package scheduler drives the decision cycle: fetch the latest candles,
// update rolling history, classify volatility, and dispatch signals and the
// top-volatility digest to subscribers.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"volsignals-bot/internal/analytics"
	"volsignals-bot/internal/cache"
	"volsignals-bot/internal/history"
	"volsignals-bot/internal/logger"
	"volsignals-bot/internal/models"
)

// marketData is the slice of the exchange client the cycle needs.
type marketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]models.Candle, error)
	GetTopSymbols(ctx context.Context, count int) ([]string, error)
}

// store is the slice of the persistence layer the cycle needs.
type store interface {
	AllUsers() ([]*models.User, error)
	GetThresholds(symbol string) (models.ThresholdSet, bool, error)
	LoadHistory(symbol string) ([]models.Candle, error)
	SaveHistory(symbol string, candles []models.Candle) error
	AddSignal(sig *models.Signal) error
}

// dispatcher is the slice of the notifier the cycle needs.
type dispatcher interface {
	SendSignal(sig models.Signal, mode models.Mode, trend analytics.Trend) error
	SendDigest(chatID int64, entries []models.DigestEntry) error
	ReleaseDigest(chatID int64)
	TrackedDigests() []int64
	SendError(chatID int64, cycleErr error) error
	SendRecovery(chatID int64, failureCount int) error
}

// Config tunes one Scheduler.
type Config struct {
	Interval        time.Duration
	CandleInterval  string
	ReferenceSymbol string
	HistorySize     int
	TrendPeriod     int

	DigestTopCount        int
	DigestSize            int
	DigestWindowStartHour int
	DigestWindowEndHour   int
	DigestLocation        *time.Location

	CacheTTL    time.Duration
	AdminChatID int64
}

// Scheduler runs the periodic decision cycle.
type Scheduler struct {
	market  marketData
	storage store
	candles cache.CandleCache
	notify  dispatcher
	cfg     Config

	now                 func() time.Time
	consecutiveFailures int
}

// New creates a Scheduler. DigestLocation must be non-nil.
func New(market marketData, storage store, candles cache.CandleCache, notify dispatcher, cfg Config) *Scheduler {
	if cfg.DigestLocation == nil {
		cfg.DigestLocation = time.UTC
	}
	return &Scheduler{
		market:  market,
		storage: storage,
		candles: candles,
		notify:  notify,
		cfg:     cfg,
		now:     time.Now,
	}
}

// symbolStats is everything the decision predicate needs about one symbol in
// the current cycle.
type symbolStats struct {
	symbol        string
	volatilityPct float64
	level         int
	quoteVolume   float64
	avgVolume     float64
	trend         analytics.Trend
}

// Run executes decision cycles until ctx is cancelled. The loop is
// self-pacing: each sleep is the interval minus the time the cycle took.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("Scheduler started with interval %s", s.cfg.Interval)
	for {
		start := time.Now()

		err := s.RunCycle(ctx)
		if ctx.Err() != nil {
			logger.Info("Scheduler stopped")
			return
		}
		s.trackFailures(err)

		sleep := s.cfg.Interval - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopped")
			return
		case <-time.After(sleep):
		}
	}
}

// trackFailures notifies the admin chat on the first failure of a sequence
// and once more when the sequence clears.
func (s *Scheduler) trackFailures(cycleErr error) {
	if cycleErr != nil {
		s.consecutiveFailures++
		logger.Error("Cycle failed (%d consecutive): %v", s.consecutiveFailures, cycleErr)
		if s.consecutiveFailures == 1 && s.cfg.AdminChatID != 0 {
			if err := s.notify.SendError(s.cfg.AdminChatID, cycleErr); err != nil {
				logger.Warn("Failed to notify admin of cycle error: %v", err)
			}
		}
		return
	}
	if s.consecutiveFailures > 0 {
		if s.cfg.AdminChatID != 0 {
			if err := s.notify.SendRecovery(s.cfg.AdminChatID, s.consecutiveFailures); err != nil {
				logger.Warn("Failed to notify admin of recovery: %v", err)
			}
		}
		s.consecutiveFailures = 0
	}
}

// RunCycle executes one decision cycle.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	users, err := s.storage.AllUsers()
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}

	// Reference symbol plus everything anyone is subscribed to.
	tracked := []string{s.cfg.ReferenceSymbol}
	seen := map[string]bool{s.cfg.ReferenceSymbol: true}
	for _, u := range users {
		for _, symbol := range u.Symbols {
			if !seen[symbol] {
				seen[symbol] = true
				tracked = append(tracked, symbol)
			}
		}
	}

	stats := make(map[string]symbolStats, len(tracked))
	for _, symbol := range tracked {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		st, err := s.collectStats(ctx, symbol)
		if err != nil {
			logger.Warn("Skipping %s this cycle: %v", symbol, err)
			continue
		}
		stats[symbol] = st
	}

	ref, refOK := stats[s.cfg.ReferenceSymbol]
	if !refOK {
		logger.Warn("Reference symbol %s unavailable; classifying on symbol levels only", s.cfg.ReferenceSymbol)
	}

	for _, u := range users {
		for _, symbol := range u.Symbols {
			st, ok := stats[symbol]
			if !ok {
				continue
			}
			if !shouldNotify(ref.level, st.level, st.quoteVolume, st.avgVolume) {
				continue
			}
			s.dispatchSignal(u, st, ref)
		}
	}

	if err := s.runDigest(ctx, users, stats); err != nil {
		logger.Warn("Digest pass failed: %v", err)
	}
	return nil
}

// shouldNotify is the uniform decision predicate: either the market reference
// or the symbol itself is at an elevated level, and the candle traded above
// its rolling average volume.
func shouldNotify(refLevel, symLevel int, quoteVolume, avgVolume float64) bool {
	return (refLevel >= 3 || symLevel >= 3) && quoteVolume > avgVolume
}

// collectStats fetches the latest closed candle for symbol, folds it into the
// rolling history, and derives the cycle metrics. A failed fetch falls back
// to the cached candle before giving up.
func (s *Scheduler) collectStats(ctx context.Context, symbol string) (symbolStats, error) {
	candle, fresh, err := s.latestCandle(ctx, symbol)
	if err != nil {
		return symbolStats{}, err
	}
	if fresh {
		if err := s.candles.Set(ctx, symbol, candle, s.cfg.CacheTTL); err != nil {
			logger.Debug("Failed to cache candle for %s: %v", symbol, err)
		}
	}

	window, err := s.storage.LoadHistory(symbol)
	if err != nil {
		return symbolStats{}, err
	}
	window, updated := history.Append(window, candle, s.cfg.HistorySize)
	if updated {
		if err := s.storage.SaveHistory(symbol, window); err != nil {
			return symbolStats{}, err
		}
	}

	ts, _, err := s.storage.GetThresholds(symbol)
	if err != nil {
		return symbolStats{}, err
	}

	volPct := analytics.VolatilityPct(candle)
	return symbolStats{
		symbol:        symbol,
		volatilityPct: volPct,
		level:         analytics.Level(volPct, ts),
		quoteVolume:   analytics.QuoteVolume(candle),
		avgVolume:     analytics.AverageVolume(window),
		trend:         analytics.TrendOf(window, s.cfg.TrendPeriod),
	}, nil
}

// latestCandle fetches the most recent candle, reporting whether it came from
// the exchange (fresh) or the cache.
func (s *Scheduler) latestCandle(ctx context.Context, symbol string) (models.Candle, bool, error) {
	batch, err := s.market.GetKlines(ctx, symbol, s.cfg.CandleInterval, 1, 0)
	if err == nil && len(batch) > 0 {
		return batch[len(batch)-1], true, nil
	}
	if err != nil {
		logger.Debug("Fetch failed for %s, trying cache: %v", symbol, err)
	}
	cached, ok, cacheErr := s.candles.Get(ctx, symbol)
	if cacheErr == nil && ok {
		return cached, false, nil
	}
	if err == nil {
		err = fmt.Errorf("empty kline response")
	}
	return models.Candle{}, false, fmt.Errorf("no candle for %s: %w", symbol, err)
}

func (s *Scheduler) dispatchSignal(u *models.User, st, ref symbolStats) {
	sig := models.Signal{
		ID:               uuid.New().String(),
		ChatID:           u.ChatID,
		Symbol:           st.symbol,
		VolatilityPct:    st.volatilityPct,
		Level:            st.level,
		QuoteVolume:      st.quoteVolume,
		AvgVolume:        st.avgVolume,
		RefVolatilityPct: ref.volatilityPct,
		RefLevel:         ref.level,
		SentAt:           s.now(),
	}
	if err := s.notify.SendSignal(sig, u.Mode, st.trend); err != nil {
		logger.Error("Failed to send signal for %s to chat %d: %v", st.symbol, u.ChatID, err)
		return
	}
	if err := s.storage.AddSignal(&sig); err != nil {
		logger.Warn("Failed to record signal %s: %v", sig.ID, err)
	}
}

// runDigest sends or refreshes the pinned top-volatility digest for opted-in
// chats during the active window, and releases pinned digests outside it.
func (s *Scheduler) runDigest(ctx context.Context, users []*models.User, stats map[string]symbolStats) error {
	if !s.digestWindowActive() {
		for _, chatID := range s.notify.TrackedDigests() {
			s.notify.ReleaseDigest(chatID)
		}
		return nil
	}

	var recipients []*models.User
	for _, u := range users {
		if u.TopVolatile {
			recipients = append(recipients, u)
		}
	}
	if len(recipients) == 0 {
		return nil
	}

	entries, err := s.digestEntries(ctx, stats)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	for _, u := range recipients {
		if err := s.notify.SendDigest(u.ChatID, entries); err != nil {
			logger.Error("Failed to send digest to chat %d: %v", u.ChatID, err)
		}
	}
	return nil
}

func (s *Scheduler) digestWindowActive() bool {
	hour := s.now().In(s.cfg.DigestLocation).Hour()
	return hour >= s.cfg.DigestWindowStartHour && hour < s.cfg.DigestWindowEndHour
}

// digestEntries ranks the exchange's highest-volume symbols by current
// volatility and keeps the top of the list. Symbols already tracked this
// cycle reuse their stats; the rest cost one lightweight candle fetch each.
func (s *Scheduler) digestEntries(ctx context.Context, stats map[string]symbolStats) ([]models.DigestEntry, error) {
	symbols, err := s.market.GetTopSymbols(ctx, s.cfg.DigestTopCount)
	if err != nil {
		return nil, fmt.Errorf("failed to rank symbols: %w", err)
	}

	var entries []models.DigestEntry
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if st, ok := stats[symbol]; ok {
			entries = append(entries, models.DigestEntry{Symbol: symbol, VolatilityPct: st.volatilityPct})
			continue
		}
		candle, _, err := s.latestCandle(ctx, symbol)
		if err != nil {
			logger.Debug("Skipping digest candidate %s: %v", symbol, err)
			continue
		}
		entries = append(entries, models.DigestEntry{Symbol: symbol, VolatilityPct: analytics.VolatilityPct(candle)})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].VolatilityPct > entries[j].VolatilityPct })
	if len(entries) > s.cfg.DigestSize {
		entries = entries[:s.cfg.DigestSize]
	}
	return entries, nil
}
