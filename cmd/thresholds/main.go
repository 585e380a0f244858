// Command thresholds recomputes per-symbol volatility thresholds offline
// from a long candle series and stores them for the running bot.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"volsignals-bot/internal/binance"
	"volsignals-bot/internal/config"
	"volsignals-bot/internal/logger"
	"volsignals-bot/internal/storage"
	"volsignals-bot/internal/thresholds"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	symbolList := flag.String("symbols", "", "comma-separated symbols (default: thresholds.symbols from config)")
	flag.Parse()

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

	symbols := cfg.Thresholds.Symbols
	if *symbolList != "" {
		symbols = nil
		for _, s := range strings.Split(*symbolList, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	if len(symbols) == 0 {
		logger.Fatal("No symbols to recompute")
	}

	store, err := storage.New(cfg.Storage.DBPath, cfg.Storage.MaxSignals)
	if err != nil {
		logger.Fatal("Failed to open storage: %v", err)
	}
	defer store.Close()

	market := binance.NewClient(cfg.Binance.BaseURL, cfg.Binance.Timeout, binance.ClientConfig{
		MaxRetries:          cfg.Binance.MaxRetries,
		RetryDelayBase:      cfg.Binance.RetryDelayBase,
		PagePause:           cfg.Binance.PagePause,
		MaxIdleConns:        cfg.Binance.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Binance.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.Binance.IdleConnTimeout,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	recompute := thresholds.New(market, store, cfg.Scheduler.CandleInterval, cfg.Thresholds.SampleCount)
	updated, err := recompute.RecomputeAll(ctx, symbols)
	if err != nil {
		logger.Error("Recompute finished with errors: %d/%d symbols updated", updated, len(symbols))
		os.Exit(1)
	}
	logger.Info("Recompute done: %d/%d symbols updated", updated, len(symbols))
}
