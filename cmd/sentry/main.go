package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/mymmrac/telego"
	"github.com/samber/do"
	"github.com/urfave/cli/v2"

	"github.com/intenise/sentry/internal/bot"
	"github.com/intenise/sentry/internal/broadcast"
	"github.com/intenise/sentry/internal/config"
	"github.com/intenise/sentry/internal/migrations"
	"github.com/intenise/sentry/internal/moderation"
	"github.com/intenise/sentry/internal/repo"
	"github.com/intenise/sentry/internal/telegram"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "sentry",
		Usage: "Telegram group moderation bot",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run migrations and start the bot",
				Action: serveAction,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: migrateAction,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func migrateAction(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return runMigrations(c.Context, cfg.PostgresDSN)
}

func runMigrations(ctx context.Context, dsn string) error {
	pgxConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("failed to parse database config: %w", err)
	}

	sqlDB := stdlib.OpenDB(*pgxConfig)
	defer func() { _ = sqlDB.Close() }()

	if err := migrations.Run(ctx, sqlDB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func serveAction(c *cli.Context) error {
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Structured JSON logging; watermill gets the slog adapter
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	logger := watermill.NewSlogLogger(slogger)

	injector := do.New()
	defer func() {
		if err := injector.Shutdown(); err != nil {
			logger.Error("Failed to shutdown DI container", err, nil)
		}
	}()

	if err := setupDependencies(injector, cfg, slogger, logger); err != nil {
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}

	pool := do.MustInvoke[*pgxpool.Pool](injector)
	defer pool.Close()

	publisher := do.MustInvoke[message.Publisher](injector)
	subscriber := do.MustInvoke[message.Subscriber](injector)
	listener := do.MustInvoke[*bot.Listener](injector)
	handlers := do.MustInvoke[*bot.Handlers](injector)

	eventRouter, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return fmt.Errorf("failed to create event router: %w", err)
	}

	setupEventSubscribers(eventRouter, subscriber, publisher, handlers, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eventRouter.Run(ctx); err != nil {
			logger.Error("Event router stopped with error", err, nil)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil {
			logger.Error("Bot listener stopped with error", err, nil)
		}
	}()

	logger.Info("Sentry bot started successfully", watermill.LogFields{
		"config_loaded": true,
		"db_connected":  true,
		"bot_ready":     true,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", watermill.LogFields{
			"signal": sig.String(),
		})
	case <-ctx.Done():
		logger.Info("Context cancelled", nil)
	}

	logger.Info("Starting graceful shutdown", nil)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Graceful shutdown completed", nil)
	case <-time.After(30 * time.Second):
		logger.Error("Shutdown timeout exceeded", nil, nil)
	}

	if err := eventRouter.Close(); err != nil {
		logger.Error("Failed to close event router", err, nil)
	}

	logger.Info("Sentry bot stopped", nil)
	return nil
}

// setupDependencies registers all dependencies in DI container
func setupDependencies(injector *do.Injector, cfg *config.Config, slogger *slog.Logger, logger watermill.LoggerAdapter) error {
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, slogger)
	do.ProvideValue(injector, logger)

	// Database pool; migrations run over the database/sql bridge first
	do.Provide(injector, func(i *do.Injector) (*pgxpool.Pool, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[watermill.LoggerAdapter](i)

		if err := runMigrations(context.Background(), cfg.PostgresDSN); err != nil {
			return nil, err
		}

		logger.Info("Database migrations completed successfully", nil)

		pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := pool.Ping(context.Background()); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		logger.Info("Connected to database", nil)
		return pool, nil
	})

	do.Provide(injector, func(i *do.Injector) (*repo.Repository, error) {
		pool := do.MustInvoke[*pgxpool.Pool](i)
		return repo.New(pool), nil
	})

	// Pub/sub - register both publisher and subscriber
	do.Provide(injector, func(i *do.Injector) (*gochannel.GoChannel, error) {
		logger := do.MustInvoke[watermill.LoggerAdapter](i)
		return gochannel.NewGoChannel(gochannel.Config{}, logger), nil
	})

	do.Provide(injector, func(i *do.Injector) (message.Publisher, error) {
		pubSub := do.MustInvoke[*gochannel.GoChannel](i)
		return pubSub, nil
	})

	do.Provide(injector, func(i *do.Injector) (message.Subscriber, error) {
		pubSub := do.MustInvoke[*gochannel.GoChannel](i)
		return pubSub, nil
	})

	// Telegram bot
	do.Provide(injector, func(i *do.Injector) (*telego.Bot, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[watermill.LoggerAdapter](i)

		tgBot, err := telego.NewBot(cfg.TelegramBotToken)
		if err != nil {
			return nil, fmt.Errorf("failed to create bot: %w", err)
		}

		me, err := tgBot.GetMe(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to get bot info: %w", err)
		}

		logger.Info("Bot initialized", watermill.LogFields{
			"username": me.Username,
			"id":       me.ID,
		})

		return tgBot, nil
	})

	// Platform capability over the raw bot
	do.Provide(injector, func(i *do.Injector) (telegram.API, error) {
		tgBot := do.MustInvoke[*telego.Bot](i)
		return telegram.NewClient(tgBot), nil
	})

	do.Provide(injector, func(i *do.Injector) (*moderation.Authorizer, error) {
		platform := do.MustInvoke[telegram.API](i)
		slogger := do.MustInvoke[*slog.Logger](i)
		return moderation.NewAuthorizer(platform, slogger), nil
	})

	do.Provide(injector, func(i *do.Injector) (*moderation.Engine, error) {
		platform := do.MustInvoke[telegram.API](i)
		auth := do.MustInvoke[*moderation.Authorizer](i)
		repository := do.MustInvoke[*repo.Repository](i)
		slogger := do.MustInvoke[*slog.Logger](i)
		return moderation.NewEngine(platform, auth, repository, slogger), nil
	})

	do.Provide(injector, func(i *do.Injector) (*broadcast.Sessions, error) {
		return broadcast.NewSessions(), nil
	})

	do.Provide(injector, func(i *do.Injector) (*broadcast.Fanout, error) {
		platform := do.MustInvoke[telegram.API](i)
		repository := do.MustInvoke[*repo.Repository](i)
		cfg := do.MustInvoke[*config.Config](i)
		slogger := do.MustInvoke[*slog.Logger](i)
		return broadcast.NewFanout(platform, repository, cfg.App.Limits.BroadcastWorkers, slogger), nil
	})

	do.Provide(injector, func(i *do.Injector) (*bot.Listener, error) {
		tgBot := do.MustInvoke[*telego.Bot](i)
		platform := do.MustInvoke[telegram.API](i)
		repository := do.MustInvoke[*repo.Repository](i)
		engine := do.MustInvoke[*moderation.Engine](i)
		auth := do.MustInvoke[*moderation.Authorizer](i)
		sessions := do.MustInvoke[*broadcast.Sessions](i)
		cfg := do.MustInvoke[*config.Config](i)
		publisher := do.MustInvoke[message.Publisher](i)
		slogger := do.MustInvoke[*slog.Logger](i)

		return bot.New(tgBot, platform, repository, engine, auth, sessions, cfg, publisher, slogger), nil
	})

	do.Provide(injector, func(i *do.Injector) (*bot.Handlers, error) {
		platform := do.MustInvoke[telegram.API](i)
		fanout := do.MustInvoke[*broadcast.Fanout](i)
		slogger := do.MustInvoke[*slog.Logger](i)

		return bot.NewHandlers(platform, fanout, slogger), nil
	})

	return nil
}

// setupEventSubscribers configures event subscribers for all bot events
func setupEventSubscribers(router *message.Router, subscriber message.Subscriber, publisher message.Publisher, handlers *bot.Handlers, logger watermill.LoggerAdapter) {
	router.AddHandler(
		"broadcast_handler",
		"broadcast",
		subscriber,
		"broadcast",
		publisher,
		func(msg *message.Message) ([]*message.Message, error) {
			err := handlers.HandleBroadcastEvent(msg)
			return nil, err
		},
	)

	logger.Info("Event subscribers configured", watermill.LogFields{
		"handlers": []string{"broadcast"},
	})
}
