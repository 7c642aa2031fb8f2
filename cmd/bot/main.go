package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"supertrend-bot-go/internal/binance"
	"supertrend-bot-go/internal/config"
	"supertrend-bot-go/internal/database"
	"supertrend-bot-go/internal/logger"
	"supertrend-bot-go/internal/notify"
	"supertrend-bot-go/internal/trader"

	"go.uber.org/zap"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "force dry-run mode regardless of config")
	configPath := flag.String("config", "./configs", "directory containing config.yml")
	flag.Parse()

	// Load application configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}
	if *dryRun {
		cfg.Trading.DryRun = true
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded", zap.Bool("dry_run", cfg.Trading.DryRun))

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Setup context so a shutdown signal aborts in-flight exchange calls.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, aborting run...")
		cancel()
	}()

	// Initialize Binance REST client
	restClient := binance.NewRestClient(&cfg.Binance, log)
	if _, err := restClient.GetServerTime(ctx); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	// Initialize notifier
	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Enabled {
		notifier, err = notify.NewTelegram(&cfg.Telegram, log)
		if err != nil {
			log.Fatal("Failed to initialize Telegram notifier", zap.Error(err))
		}
	}

	// Run one trading pass and exit. Per-symbol failures are isolated inside
	// the coordinator; only a failure to start the pass is fatal.
	ledger := trader.NewTradeLedger(db, log)
	coordinator := trader.NewRunCoordinator(&cfg, log, restClient, ledger, notifier)
	if err := coordinator.Run(ctx); err != nil {
		log.Fatal("Trading pass could not start", zap.Error(err))
	}

	log.Info("Bot finished successfully.")
}
