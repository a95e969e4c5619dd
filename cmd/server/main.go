package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"LostFoundNotifier/internal/config"
	"LostFoundNotifier/internal/httpapi"
	"LostFoundNotifier/internal/notifications"
	"LostFoundNotifier/internal/service"
	"LostFoundNotifier/internal/store/postgres"
	"LostFoundNotifier/internal/store/postgrest"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)

	sendClient := &http.Client{Timeout: cfg.SendTimeout}

	var (
		tokens     service.TokenStore
		inAppStore service.NotificationStore
		storePing  func(context.Context) error
	)
	if cfg.DBDSN != "" {
		pool, err := postgres.Open(context.Background(), cfg.DBDSN)
		if err != nil {
			logger.Error("db open failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		deviceTokens := postgres.NewDeviceTokensStore(pool)
		tokens = deviceTokens
		inAppStore = postgres.NewNotificationsStore(pool)
		storePing = deviceTokens.Ping
		logger.Info("store: direct postgres")
	} else {
		client := postgrest.New(cfg.DataAPIURL.String(), cfg.DataAPIKey, sendClient)
		tokens = client
		inAppStore = client
		storePing = client.Ping
		logger.Info("store: data api", "url", cfg.DataAPIURL.Host)
	}

	var creds service.CredentialSource
	broker, err := notifications.NewCredentialBroker(cfg.ServiceAccountJSON, sendClient)
	switch {
	case err == nil:
		creds = broker
		logger.Info("push: service account configured", "project_id", broker.ProjectID())
	case errors.Is(err, notifications.ErrNoCredential):
		logger.Warn("push: no service account configured")
	default:
		logger.Warn("push: service account rejected; v1 sends disabled", "err", err)
	}
	if cfg.LegacyServerKey == "" {
		logger.Warn("push: no legacy server key configured")
	}

	dispatchSvc := &service.DispatchService{
		Tokens:        tokens,
		Notifications: inAppStore,
		Credentials:   creds,
		Modern:        notifications.NewV1Sender(sendClient),
		Legacy:        notifications.NewLegacySender(sendClient),
		LegacyKey:     cfg.LegacyServerKey,
		Concurrency:   cfg.DispatchConcurrency,
		AllowInsecure: cfg.AllowInsecureModes,
		Logger:        logger,
	}
	if cfg.AllowInsecureModes {
		logger.Warn("insecure dispatch modes enabled")
	}

	router := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:    logger,
		IsProd:    cfg.IsProd(),
		StorePing: storePing,
		Dispatch:  dispatchSvc,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
