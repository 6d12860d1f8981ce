package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/taskbot/internal/action"
	v1 "github.com/gosuda/taskbot/internal/api/v1"
	"github.com/gosuda/taskbot/internal/auth"
	"github.com/gosuda/taskbot/internal/config"
	"github.com/gosuda/taskbot/internal/conversation"
	"github.com/gosuda/taskbot/internal/dispatch"
	"github.com/gosuda/taskbot/internal/intent"
	"github.com/gosuda/taskbot/internal/llm"
	"github.com/gosuda/taskbot/internal/messenger/slack"
	"github.com/gosuda/taskbot/internal/messenger/telegram"
	"github.com/gosuda/taskbot/internal/messenger/webhook"
	"github.com/gosuda/taskbot/internal/notify"
	"github.com/gosuda/taskbot/internal/server"
	"github.com/gosuda/taskbot/internal/store/postgres"
	redisstore "github.com/gosuda/taskbot/internal/store/redis"
)

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot: HTTP transports, Telegram polling and notifications",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	rdb, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rdb.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("redis close")
		}
	}()

	sessions := redisstore.NewSessionStore(rdb,
		redisstore.WithPendingTTL(cfg.Session.PendingTTL),
		redisstore.WithLocation(cfg.Session.Location()),
	)

	model, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		return err
	}

	channel := redisstore.NotificationChannel()
	actions := action.NewDefaultRegistry(action.Deps{
		Directory: store.Directory(),
		Tasks:     store.Tasks(),
		Notifier:  notify.NewBus(rdb, channel),
		Location:  cfg.Session.Location(),
	})

	engine := conversation.NewEngine(conversation.Deps{
		Sessions:   sessions,
		Dedup:      redisstore.NewDeduplicator(rdb, cfg.Session.DedupTTL),
		Directory:  store.Directory(),
		Tasks:      store.Tasks(),
		Classifier: intent.NewClassifier(model),
		Extractor:  intent.NewExtractor(model),
		Guard:      intent.NewGuard(model, sessions),
		Actions:    actions,
	})

	dispatcher := dispatch.NewDispatcher(engine, int64(cfg.Dispatcher.MaxConcurrent))
	linker := auth.NewLinker(store.MessengerLinks(), store.Directory())
	messengers := notify.NewRegistry()

	messengers.Register(webhook.NewMessenger(cfg.Webhook.CallbackURL, cfg.Webhook.Token, cfg.Webhook.Timeout))

	deps := server.Deps{
		Webhook:   webhook.NewHandler(dispatcher).HandleMessage,
		Sessions:  sessions,
		Directory: store.Employees(),
		Health:    map[string]v1.Pinger{"postgres": store, "redis": rdb},
	}

	if cfg.Slack.SigningSecret != "" {
		client := slacklib.New(cfg.Slack.BotToken)
		slackMessenger := slack.NewSlackMessenger(client)
		messengers.Register(slackMessenger)
		deps.Slack = slack.NewHandler(cfg.Slack.SigningSecret, dispatcher, linker, client, slackMessenger).HandleEvents
	}

	var tg *telegram.Adapter
	if cfg.Telegram.BotToken != "" {
		bot, botErr := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if botErr != nil {
			return fmt.Errorf("telegram bot: %w", botErr)
		}
		tg = telegram.NewAdapter(bot, dispatcher, linker)
		messengers.Register(tg.Messenger())
		log.Info().Str("bot", bot.Self.UserName).Msg("Telegram integration enabled")
	}

	fallback := cfg.Notify.Platform
	if fallback == "none" {
		fallback = ""
	}
	if _, ok := messengers.Get(fallback); fallback != "" && !ok {
		log.Warn().Str("platform", fallback).Msg("notification platform is not configured; notifications to unlinked employees are dropped")
	}
	notifier := notify.New(messengers, store.MessengerLinks(), fallback)

	srv := server.New(ctx, cfg, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return notify.NewWorker(rdb, channel, notifier).Run(gctx) })
	if tg != nil {
		g.Go(func() error { return tg.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Let in-flight conversations finish their replies before the stores close.
	dispatcher.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("stopped")
	return nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}
	return postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
}

