// Package config loads global process configuration from the
// environment (.env is read by main before Init runs).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Global config instance
var global *Config

// Config holds process-level settings. Strategy tuning (ladder
// geometry, guards) lives in the engine config and the settings store;
// only deployment concerns belong here.
type Config struct {
	// Service
	APIServerPort int
	DBPath        string
	LogLevel      string
	LogFile       string

	// Trading
	Symbol       string
	BaseAmount   float64
	CycleTarget  float64
	TickInterval time.Duration

	// Ladder geometry
	EntryOffset    float64
	ProfitDistance float64
	SpacingScale   float64

	// Venue selection: "paper" or "binance"
	VenueMode       string
	PaperBalance    float64
	PaperStartPrice float64

	// Binance credentials
	BinanceAPIKey    string
	BinanceSecretKey string

	// Telegram
	TelegramToken  string
	TelegramChatID int64
}

// Init loads the global config from environment variables.
func Init() {
	cfg := &Config{
		APIServerPort:   8080,
		DBPath:          "data/griddca.db",
		LogLevel:        "info",
		Symbol:          "BTCUSDT",
		BaseAmount:      0.1,
		TickInterval:    5 * time.Second,
		EntryOffset:     0.8,
		ProfitDistance:  2.0,
		SpacingScale:    12,
		VenueMode:       "paper",
		PaperBalance:    10000,
		PaperStartPrice: 100,
	}

	if v := os.Getenv("API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.APIServerPort = port
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	if v := os.Getenv("SYMBOL"); v != "" {
		cfg.Symbol = strings.ToUpper(strings.TrimSpace(v))
	}
	if v := os.Getenv("BASE_AMOUNT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.BaseAmount = f
		}
	}
	if v := os.Getenv("CYCLE_TARGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.CycleTarget = f
		}
	}
	if v := os.Getenv("TICK_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TickInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("ENTRY_OFFSET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.EntryOffset = f
		}
	}
	if v := os.Getenv("PROFIT_DISTANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.ProfitDistance = f
		}
	}
	if v := os.Getenv("SPACING_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.SpacingScale = f
		}
	}

	if v := os.Getenv("VENUE_MODE"); v != "" {
		cfg.VenueMode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("PAPER_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.PaperBalance = f
		}
	}
	if v := os.Getenv("PAPER_START_PRICE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.PaperStartPrice = f
		}
	}

	cfg.BinanceAPIKey = strings.TrimSpace(os.Getenv("BINANCE_API_KEY"))
	cfg.BinanceSecretKey = strings.TrimSpace(os.Getenv("BINANCE_SECRET_KEY"))

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}

	global = cfg
}

// Get returns the global config, initializing it on first use.
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}
