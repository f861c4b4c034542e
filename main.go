package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"griddca/api"
	"griddca/config"
	"griddca/grid"
	"griddca/logger"
	"griddca/notify"
	"griddca/store"
	"griddca/venue"
	"griddca/venue/binance"
	"griddca/venue/paper"
)

func main() {
	// Load environment variables from .env if present (for local/dev
	// runs). In Docker Compose, variables are injected by the runtime
	// and this is harmless.
	_ = godotenv.Load()

	config.Init()
	cfg := config.Get()

	if err := logger.Init(&logger.Config{Level: cfg.LogLevel, File: cfg.LogFile}); err != nil {
		logger.Fatalf("❌ logger init: %v", err)
	}

	logger.Info("╔════════════════════════════════════════════╗")
	logger.Info("║         📊 Grid DCA cycle engine           ║")
	logger.Info("╚════════════════════════════════════════════╝")

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatalf("❌ create data directory: %v", err)
		}
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("❌ open database: %v", err)
	}
	defer st.Close()

	v, stopVenue, err := buildVenue(cfg, st)
	if err != nil {
		logger.Fatalf("❌ venue setup: %v", err)
	}

	// The Telegram bot is both command surface and event sink, so it is
	// constructed before the controller and bound to it afterwards.
	var tg *notify.Telegram
	var events grid.Events = grid.NopEvents{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, nil, st)
		if err != nil {
			logger.Fatalf("❌ telegram setup: %v", err)
		}
		events = tg
	}

	ctl := grid.NewController(v, grid.Config{
		Symbol:       cfg.Symbol,
		BaseAmount:   cfg.BaseAmount,
		CycleTarget:  cfg.CycleTarget,
		TickInterval: cfg.TickInterval,
		Builder: grid.BuilderConfig{
			Symbol:         cfg.Symbol,
			EntryOffset:    cfg.EntryOffset,
			ProfitDistance: cfg.ProfitDistance,
			SpacingScale:   cfg.SpacingScale,
			ScalingTable:   grid.DefaultScalingTable,
		},
		Guards: loadGuards(st),
	}, events, st.Recorder())
	if tg != nil {
		tg.SetController(ctl)
	}
	restoreOverrides(st, ctl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctl.Start(ctx)
	if tg != nil {
		tg.Start()
	}

	apiServer := api.NewServer(ctl, st, cfg.APIServerPort)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("❌ API server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("📛 shutdown signal received, closing down...")

	ctl.Stop()
	stopVenue()
	if tg != nil {
		tg.Stop()
	}
	if err := apiServer.Shutdown(); err != nil {
		logger.Warnf("⚠️ API server shutdown: %v", err)
	}
	logger.Info("✅ shutdown complete")
}

// buildVenue selects the trading venue adapter. The returned stop
// function tears down whatever background work the venue runs.
func buildVenue(cfg *config.Config, st *store.Store) (venue.Venue, func(), error) {
	switch cfg.VenueMode {
	case "binance":
		if cfg.BinanceAPIKey == "" || cfg.BinanceSecretKey == "" {
			return nil, nil, errors.New("BINANCE_API_KEY / BINANCE_SECRET_KEY must be set for live trading")
		}
		bv, err := binance.New(cfg.BinanceAPIKey, cfg.BinanceSecretKey).WithLinkStore(st.BinanceLinks())
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("🔗 live venue: Binance futures (%s)", cfg.Symbol)
		return bv, func() {}, nil
	case "paper":
		pv := paper.New(cfg.Symbol, cfg.PaperBalance)
		// drive the simulation with a random walk around the start price
		pv.StartRandomWalk(cfg.PaperStartPrice, cfg.PaperStartPrice*0.0002, cfg.PaperStartPrice*0.0005, time.Second)
		logger.Infof("🧪 paper venue: simulated %s with balance %.2f around %.2f", cfg.Symbol, cfg.PaperBalance, cfg.PaperStartPrice)
		return pv, pv.StopFeed, nil
	default:
		return nil, nil, errors.New("VENUE_MODE must be \"paper\" or \"binance\"")
	}
}

// loadGuards restores persisted guard thresholds, falling back to
// permissive defaults.
func loadGuards(st *store.Store) *grid.GuardConfig {
	guards := &grid.GuardConfig{AllowCycleCompletion: true}
	ok, err := st.Settings().GetJSON("guards", guards)
	if err != nil {
		logger.Warnf("⚠️ load guards: %v", err)
	}
	if ok {
		logger.Info("🛡️ guard thresholds restored from database")
	}
	return guards
}

// restoreOverrides re-applies the persisted base-amount override.
func restoreOverrides(st *store.Store, ctl *grid.Controller) {
	if amount, ok, err := st.Settings().GetFloat("base_amount_override"); err != nil {
		logger.Warnf("⚠️ load base amount override: %v", err)
	} else if ok && amount > 0 {
		ctl.Send(grid.Command{Kind: grid.CmdSetBaseAmount, Amount: amount})
		logger.Infof("💰 base amount override restored: %.4g", amount)
	}
}
