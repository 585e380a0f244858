// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Binance    BinanceConfig    `mapstructure:"binance"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Digest     DigestConfig     `mapstructure:"digest"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// BinanceConfig holds market-data API configuration.
type BinanceConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	PagePause           time.Duration `mapstructure:"page_pause"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// SchedulerConfig holds decision-cycle configuration.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	CandleInterval  string        `mapstructure:"candle_interval"`
	ReferenceSymbol string        `mapstructure:"reference_symbol"`
	HistorySize     int           `mapstructure:"history_size"`
	TrendPeriod     int           `mapstructure:"trend_period"`
}

// DigestConfig holds top-volatility digest configuration.
type DigestConfig struct {
	TopCount        int    `mapstructure:"top_count"`
	Size            int    `mapstructure:"size"`
	WindowStartHour int    `mapstructure:"window_start_hour"`
	WindowEndHour   int    `mapstructure:"window_end_hour"`
	Timezone        string `mapstructure:"timezone"`
}

// ThresholdsConfig holds the offline threshold recompute configuration.
type ThresholdsConfig struct {
	SampleCount int      `mapstructure:"sample_count"`
	Symbols     []string `mapstructure:"symbols"`
}

// TelegramConfig holds bot credentials.
type TelegramConfig struct {
	BotToken    string `mapstructure:"bot_token"`
	AdminChatID int64  `mapstructure:"admin_chat_id"`
	Enabled     bool   `mapstructure:"enabled"`
}

// CacheConfig selects and tunes the candle-cache backend.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"`
	MaxSignals int    `mapstructure:"max_signals"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("VOLSIGNALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.base_url", "https://fapi.binance.com")
	v.SetDefault("binance.timeout", "10s")
	v.SetDefault("binance.max_retries", 3)
	v.SetDefault("binance.retry_delay_base", "1s")
	v.SetDefault("binance.page_pause", "200ms")
	v.SetDefault("binance.max_idle_conns", 10)
	v.SetDefault("binance.max_idle_conns_per_host", 10)
	v.SetDefault("binance.idle_conn_timeout", "90s")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.candle_interval", "5m")
	v.SetDefault("scheduler.reference_symbol", "BTCUSDT")
	v.SetDefault("scheduler.history_size", 72)
	v.SetDefault("scheduler.trend_period", 12)

	v.SetDefault("digest.top_count", 100)
	v.SetDefault("digest.size", 3)
	v.SetDefault("digest.window_start_hour", 15)
	v.SetDefault("digest.window_end_hour", 21)
	v.SetDefault("digest.timezone", "Europe/Moscow")

	v.SetDefault("thresholds.sample_count", 4032) // 14 days of 5m candles
	v.SetDefault("thresholds.symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "TRXUSDT"})

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("storage.db_path", "./data/volsignals.db")
	v.SetDefault("storage.max_signals", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.Binance.BaseURL == "" {
		return fmt.Errorf("binance.base_url is required")
	}
	if c.Binance.Timeout <= 0 {
		return fmt.Errorf("binance.timeout must be positive")
	}

	if c.Scheduler.Interval < time.Minute {
		return fmt.Errorf("scheduler.interval must be at least 1 minute")
	}
	if c.Scheduler.CandleInterval == "" {
		return fmt.Errorf("scheduler.candle_interval is required")
	}
	if c.Scheduler.ReferenceSymbol == "" {
		return fmt.Errorf("scheduler.reference_symbol is required")
	}
	if c.Scheduler.HistorySize < 1 {
		return fmt.Errorf("scheduler.history_size must be at least 1")
	}
	if c.Scheduler.TrendPeriod < 2 {
		return fmt.Errorf("scheduler.trend_period must be at least 2")
	}

	if c.Digest.TopCount < 1 {
		return fmt.Errorf("digest.top_count must be at least 1")
	}
	if c.Digest.Size < 1 || c.Digest.Size > c.Digest.TopCount {
		return fmt.Errorf("digest.size must be between 1 and digest.top_count")
	}
	if c.Digest.WindowStartHour < 0 || c.Digest.WindowStartHour > 23 {
		return fmt.Errorf("digest.window_start_hour must be between 0 and 23")
	}
	if c.Digest.WindowEndHour < 0 || c.Digest.WindowEndHour > 24 {
		return fmt.Errorf("digest.window_end_hour must be between 0 and 24")
	}
	if _, err := time.LoadLocation(c.Digest.Timezone); err != nil {
		return fmt.Errorf("digest.timezone is invalid: %w", err)
	}

	if c.Thresholds.SampleCount < 100 {
		return fmt.Errorf("thresholds.sample_count must be at least 100")
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of: memory, redis")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	if c.Storage.MaxSignals < 1 {
		return fmt.Errorf("storage.max_signals must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
