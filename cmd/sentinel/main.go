package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ValueSentinel/internal/action"
	"ValueSentinel/internal/annotator"
	"ValueSentinel/internal/api"
	"ValueSentinel/internal/collector"
	"ValueSentinel/internal/config"
	"ValueSentinel/internal/logger"
	"ValueSentinel/internal/notifier"
	"ValueSentinel/internal/pool"
	"ValueSentinel/internal/risk"
	"ValueSentinel/internal/scheduler"
	sig "ValueSentinel/internal/signal"
	"ValueSentinel/internal/store"
	"ValueSentinel/internal/valuation"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLog().Fatal().Err(err).Msg("load config")
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	log.Info().Str("config", cfgPath).Msg("ValueSentinel starting")

	db, err := store.Open(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Domain services
	pools := pool.NewService(db, log)
	vals := valuation.NewService(db, log)
	engine := sig.NewEngine(db, vals, cfg.Signal, nil, log)
	checker := risk.NewChecker(db, cfg.Risk, log)
	actions := action.NewService(db, checker, log)

	// Init fetcher
	var fetcher collector.Fetcher
	switch strings.ToLower(cfg.DataSource.Provider) {
	case "mock":
		fetcher = &collector.MockFetcher{Default: 1.0, Price: 10}
	default:
		fetcher = collector.NewYahooFetcher(cfg.Proxy)
	}
	log.Info().Str("source", fetcher.Name()).Msg("data source ready")
	col := collector.NewCollector(fetcher, db, vals, cfg.DataSource.HistoryYears, log)

	var ann *annotator.Service
	if cfg.AI.GeminiAPIKey != "" {
		gem, err := annotator.NewGemini(ctx, cfg.AI.GeminiAPIKey, cfg.AI.Model)
		if err != nil {
			log.Warn().Err(err).Msg("gemini unavailable, AI annotation disabled")
		} else {
			ann = annotator.NewService(gem, pools, vals, cfg.Signal.PercentileYears, log)
		}
	}

	// Init Telegram notifier
	var (
		note notifier.Notifier = notifier.Nop{}
		tn   *notifier.TelegramNotifier
	)
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		note = tn
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, db, col, engine, checker, note, cfg.Telegram.UserID, log)
	if err := sched.RegisterAll(cfg.Schedule.IngestCron, cfg.Schedule.ScanCron); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	srv := api.New(api.Config{
		Addr:          cfg.Server.Addr,
		CORSOrigins:   cfg.Server.CORSOrigins,
		DefaultUserID: cfg.Telegram.UserID,
		Log:           log,
		Services: api.Services{
			Pool:       pools,
			Valuations: vals,
			Signals:    engine,
			Risk:       checker,
			Actions:    actions,
			Annotator:  ann,
		},
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			cancel()
		}
	}()

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, collecting and scanning now")
		go func() {
			if _, err := sched.RunNow(ctx); err != nil {
				log.Warn().Err(err).Msg("startup run finished with errors")
			}
		}()
	}

	log.Info().Msg("ValueSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info().Msg("shutdown signal received, stopping...")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("ValueSentinel stopped")
}

func bootLog() *zerolog.Logger {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return &l
}
