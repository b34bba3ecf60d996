package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	githubadapter "github.com/ericfisherdev/releasewatch/internal/adapter/driven/github"
	sqliteadapter "github.com/ericfisherdev/releasewatch/internal/adapter/driven/sqlite"
	telegramadapter "github.com/ericfisherdev/releasewatch/internal/adapter/driven/telegram"
	httphandler "github.com/ericfisherdev/releasewatch/internal/adapter/driving/http"
	telegrambot "github.com/ericfisherdev/releasewatch/internal/adapter/driving/telegram"
	webhandler "github.com/ericfisherdev/releasewatch/internal/adapter/driving/web"
	"github.com/ericfisherdev/releasewatch/internal/application"
	"github.com/ericfisherdev/releasewatch/internal/config"
)

// telegramHTTPTimeout must exceed the long-polling timeout used by the bot.
const telegramHTTPTimeout = 90 * time.Second

// httpWriteTimeout bounds a response. A manual refresh may wait for the
// repository check in progress and then run its own, and each check makes up
// to two GitHub requests limited by fetchTimeout.
func httpWriteTimeout(fetchTimeout time.Duration) time.Duration {
	return 4*fetchTimeout + 30*time.Second
}

func runServe(parent context.Context, cfg *config.Config) error {
	// 1. Fail fast on missing required settings.
	if err := cfg.RequireTelegram(); err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"survey_period", cfg.SurveyPeriod,
		"fetching_step_period", cfg.FetchingStepPeriod,
		"fetch_timeout", cfg.FetchTimeout,
		"github_token", cfg.GitHubToken != "",
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 3. Open database and run migrations.
	db, err := openDatabase(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// 4. Wire adapters.
	repoStore := sqliteadapter.NewRepoRepo(db)
	userStore := sqliteadapter.NewUserRepo(db)
	subStore := sqliteadapter.NewSubscriptionRepo(db)

	ghClient := githubadapter.NewClient(cfg.GitHubToken, cfg.FetchTimeout)
	if cfg.GitHubToken == "" {
		slog.Warn("no GITHUB_TOKEN configured, using the unauthenticated rate limit")
	}

	if err := tgbotapi.SetLogger(telegrambot.SlogLogger{Logger: slog.Default()}); err != nil {
		return err
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramAPIKey, tgbotapi.APIEndpoint, &http.Client{Timeout: telegramHTTPTimeout})
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	slog.Info("telegram bot authorized", "username", api.Self.UserName)

	notifier := telegramadapter.NewNotifier(api)

	// 5. Application services.
	subSvc := application.NewSubscriptionService(userStore, repoStore, subStore)
	pollSvc := application.NewPollService(
		ghClient,
		repoStore,
		subStore,
		notifier,
		cfg.SurveyPeriod,
		cfg.FetchingStepPeriod,
	)

	// 6. Start the release monitor and the bot.
	var wg sync.WaitGroup
	var botErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		pollSvc.Start(ctx)
	}()

	bot := telegrambot.NewBot(api, subSvc)
	if err := bot.RegisterCommands(); err != nil {
		slog.Warn("failed to register bot commands", "error", err)
	}
	go func() {
		defer wg.Done()
		if err := bot.Run(ctx); err != nil {
			slog.Error("telegram bot stopped unexpectedly", "error", err)
			botErr = err
			cancel()
		}
	}()

	// 7. HTTP API and dashboard.
	var srv *http.Server
	if cfg.HTTPEnabled() {
		mux := http.NewServeMux()
		httphandler.RegisterAPIRoutes(mux, httphandler.NewHandler(subSvc, pollSvc, slog.Default()))
		webhandler.RegisterRoutes(mux, webhandler.NewHandler(subSvc, pollSvc, bot.Commands().HelpMarkdown(), slog.Default()))

		srv = &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           httphandler.ApplyMiddleware(mux, slog.Default()),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      httpWriteTimeout(cfg.FetchTimeout),
			IdleTimeout:       120 * time.Second,
		}

		go func() {
			slog.Info("http server starting", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "error", err)
			}
		}()
	} else {
		slog.Info("http server disabled")
	}

	slog.Info(appName+" started")

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Graceful shutdown with 10s timeout for HTTP server drain.
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}

	wg.Wait()

	slog.Info("shutdown complete")
	return botErr
}

// openDatabase opens the SQLite database and brings its schema up to date.
func openDatabase(ctx context.Context, path string) (*sqliteadapter.DB, error) {
	db, err := sqliteadapter.NewDB(ctx, path)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", path)

	if err := sqliteadapter.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete")

	return db, nil
}
