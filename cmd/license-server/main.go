package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/menta2k/circle-snip/pkg/licenseserver"
)

func main() {
	port := env("PORT", "3000")
	dbPath := env("DB_PATH", "data/licenses.db")
	logLevel := env("LOG_LEVEL", "info")

	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := licenseserver.Open(dbPath)
	if err != nil {
		slog.Error("license db", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		slog.Warn("WEBHOOK_SECRET not set, webhooks will be refused")
	}

	srv := licenseserver.New(store, licenseserver.Config{
		WebhookSecret: secret,
		Checkout: licenseserver.PaymentLinks{
			Monthly:  os.Getenv("MONTHLY_LINK"),
			Lifetime: os.Getenv("LIFETIME_LINK"),
		},
		Logger: logger,
	})

	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("license server starting", "port", port, "db", dbPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
