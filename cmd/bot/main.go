// Package main contains the entrypoint for the Telegram relay bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/mirbot/mirbot/internal/bot"
	"github.com/mirbot/mirbot/internal/bot/handlers"
	"github.com/mirbot/mirbot/internal/bot/tasks"
	"github.com/mirbot/mirbot/internal/config"
	"github.com/mirbot/mirbot/internal/database"
	"github.com/mirbot/mirbot/internal/logger"
	"github.com/mirbot/mirbot/internal/pipeline"
	"github.com/mirbot/mirbot/internal/provider"
	"github.com/mirbot/mirbot/internal/ratelimit"
	"github.com/mirbot/mirbot/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// providers, pipeline, bot, scheduler), handles graceful shutdown, and
// returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	providers := make([]provider.Provider, 0, len(cfg.Providers.Endpoints)+1)
	for _, ep := range cfg.Providers.Endpoints {
		providers = append(providers, provider.NewHTTPProvider(ep, cfg.Providers.SystemPrompt, log))
	}
	if cfg.Providers.Gemini.APIKey != "" {
		gem, err := provider.NewGeminiProvider(ctx, cfg.Providers.Gemini, cfg.Providers.SystemPrompt, log)
		if err != nil {
			log.Error("Failed to initialize Gemini provider", "error", err)
			return 1
		}
		providers = append(providers, gem)
	}
	log.Info("Answer providers configured", "count", len(providers))

	aggregator := provider.NewAggregator(providers, cfg.Messages.AllFailed, log)
	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.Cooldown, log)
	delivery := pipeline.NewDelivery(cfg.Delivery.MaxChunkSize, cfg.Delivery.PaceInterval, log)
	pipe := pipeline.New(store, limiter, aggregator, delivery, cfg.Messages, handlers.ReservedKeywords, log)

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Store:    store,
		Pipeline: pipe,
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log), handlers.AuditLog(hDeps)),
		tgbot.WithDefaultHandler(handlers.NewChatHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	sched := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	app := bot.NewBot(log, cfg, db, store, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
