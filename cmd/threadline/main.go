package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"github.com/threadline/threadline/internal/bus"
	"github.com/threadline/threadline/internal/config"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/discord"
	"github.com/threadline/threadline/internal/github"
	"github.com/threadline/threadline/internal/handlers"
	"github.com/threadline/threadline/internal/identity"
	"github.com/threadline/threadline/internal/ingest"
	"github.com/threadline/threadline/internal/relay"
	slackbridge "github.com/threadline/threadline/internal/slack"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Local development convenience; the file is optional.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if err := database.Connect(cfg.DatabaseURL, gormlogger.Warn); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	db := database.GetDB()
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Msg("database ready")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.New()
	resolver := identity.NewResolver(db)
	defer resolver.Stop()

	// Slack socket-mode client with hot reload. The poster doubles as the
	// dispatcher's notifier; both tolerate a disconnected client.
	slackManager := slackbridge.NewManager(slackbridge.Credentials{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
	}, logger)
	slackPoster := slackbridge.NewPoster(slackManager)

	dispatcher := ingest.NewDispatcher(db, resolver, eventBus, slackPoster, logger)

	bridge := slackbridge.NewEventBridge(dispatcher, logger)
	slackManager.SetEventHandler(bridge.HandleSocketMode)
	if err := slackManager.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("slack client not started")
	}
	go slackManager.WatchForReloads(ctx)
	defer slackManager.Stop()

	posters := []relay.Poster{slackPoster}
	if cfg.Discord.BotToken != "" {
		discordPoster, err := discord.NewPoster(cfg.Discord.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("discord poster not started")
		} else {
			posters = append(posters, discordPoster)
		}
	}

	outbound := relay.New(db, eventBus, logger, posters...)
	go outbound.Run(ctx)

	var appClient *github.AppClient
	if cfg.GitHub.AppID != 0 {
		if key, err := cfg.GitHubPrivateKey(); err != nil {
			logger.Warn().Err(err).Msg("github app client not configured")
		} else {
			appClient = github.NewAppClient(cfg.GitHub.AppID, key)
		}
	}

	installs := slackbridge.NewConfigInstallationStore(db)
	oauthHandler := handlers.NewOAuthHandler(db, handlers.OAuthConfig{
		SlackClientID:     cfg.Slack.ClientID,
		SlackClientSecret: cfg.Slack.ClientSecret,
		SlackRedirectURL:  cfg.Slack.RedirectURL,
		GitHubAppSlug:     cfg.GitHub.AppSlug,
		AppBaseURL:        cfg.AppBaseURL,
		HandoffSecret:     cfg.HandoffSecret,
	}, installs, resolver, slackManager, logger)
	webhookHandler := handlers.NewGitHubWebhookHandler(cfg.GitHub.WebhookSecret, dispatcher, logger)
	streamHandler := handlers.NewEventStreamHandler(eventBus, cfg.HandoffSecret, logger)
	backfillHandler := handlers.NewBackfillHandler(db, appClient, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/github", webhookHandler.HandleWebhook)
	mux.HandleFunc("/integrations/slack/connect", oauthHandler.HandleSlackConnect)
	mux.HandleFunc("/integrations/github/connect", oauthHandler.HandleGitHubConnect)
	mux.HandleFunc("/oauth/slack/callback", oauthHandler.HandleSlackCallback)
	mux.HandleFunc("/oauth/github/callback", oauthHandler.HandleGitHubCallback)
	mux.HandleFunc("/integrations/github/repos", backfillHandler.HandleRepos)
	mux.HandleFunc("/integrations/github/backfill", backfillHandler.HandleBackfill)
	mux.HandleFunc("/ws/events", streamHandler.HandleEvents)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":        "ok",
			"slack_running": slackManager.IsRunning(),
		})
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTPPort).Msg("starting http server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	cancel()
	if err := httpServer.Close(); err != nil {
		logger.Error().Err(err).Msg("error shutting down http server")
	}
	slackManager.Stop()
	if err := database.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing database")
	}
	logger.Info().Msg("shutdown complete")
}
