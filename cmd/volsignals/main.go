// Command volsignals runs the volatility alert bot: the Telegram command
// listener and the periodic decision cycle that classifies volatility and
// notifies subscribers.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"volsignals-bot/internal/binance"
	"volsignals-bot/internal/bot"
	"volsignals-bot/internal/cache"
	"volsignals-bot/internal/config"
	"volsignals-bot/internal/logger"
	"volsignals-bot/internal/notifier"
	"volsignals-bot/internal/scheduler"
	"volsignals-bot/internal/storage"
	"volsignals-bot/internal/thresholds"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// Local overrides; absence of a .env file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("info", "text")
		logger.Fatal("Failed to load config: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config: %v", err)
	}
	if !cfg.Telegram.Enabled {
		logger.Fatal("telegram.enabled must be true; use the thresholds command for offline work")
	}

	store, err := storage.New(cfg.Storage.DBPath, cfg.Storage.MaxSignals)
	if err != nil {
		logger.Fatal("Failed to open storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var candles cache.CandleCache
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		defer rc.Close()
		candles = rc
	default:
		candles = cache.NewMemory()
	}

	market := binance.NewClient(cfg.Binance.BaseURL, cfg.Binance.Timeout, binance.ClientConfig{
		MaxRetries:          cfg.Binance.MaxRetries,
		RetryDelayBase:      cfg.Binance.RetryDelayBase,
		PagePause:           cfg.Binance.PagePause,
		MaxIdleConns:        cfg.Binance.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Binance.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.Binance.IdleConnTimeout,
	})

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Fatal("Failed to connect to Telegram: %v", err)
	}
	logger.Info("Authorized as @%s", api.Self.UserName)

	notify := notifier.New(api, 3, time.Second)
	recompute := thresholds.New(market, store, cfg.Scheduler.CandleInterval, cfg.Thresholds.SampleCount)
	commands := bot.New(api, store, notify, recompute, bot.Config{
		AdminChatID:      cfg.Telegram.AdminChatID,
		ThresholdSymbols: cfg.Thresholds.Symbols,
	})

	// Validate() already checked the zone name.
	location, err := time.LoadLocation(cfg.Digest.Timezone)
	if err != nil {
		logger.Fatal("Failed to load timezone: %v", err)
	}
	sched := scheduler.New(market, store, candles, notify, scheduler.Config{
		Interval:              cfg.Scheduler.Interval,
		CandleInterval:        cfg.Scheduler.CandleInterval,
		ReferenceSymbol:       cfg.Scheduler.ReferenceSymbol,
		HistorySize:           cfg.Scheduler.HistorySize,
		TrendPeriod:           cfg.Scheduler.TrendPeriod,
		DigestTopCount:        cfg.Digest.TopCount,
		DigestSize:            cfg.Digest.Size,
		DigestWindowStartHour: cfg.Digest.WindowStartHour,
		DigestWindowEndHour:   cfg.Digest.WindowEndHour,
		DigestLocation:        location,
		CacheTTL:              cfg.Cache.TTL,
		AdminChatID:           cfg.Telegram.AdminChatID,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received %s, shutting down", sig)
		cancel()
	}()

	go commands.Run(ctx)
	sched.Run(ctx)
	logger.Info("Shutdown complete")
}
