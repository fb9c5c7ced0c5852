package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	notificationscheduler "github.com/kosttiik/subscription-notifier/internal/app/notification-scheduler"
	"github.com/kosttiik/subscription-notifier/internal/config"
)

func main() {
	payloadPath := flag.String("payload", "latest-changes.json", "path to the change payload file")
	flag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting notification-scheduler", slog.String("env", cfg.Env), slog.String("payload", *payloadPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := notificationscheduler.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", slog.Any("err", err))
		os.Exit(1)
	}

	if err := app.Run(ctx, *payloadPath); err != nil {
		logger.Error("dispatch run failed", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("notification-scheduler finished")
}
