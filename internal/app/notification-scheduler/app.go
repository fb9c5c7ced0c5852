// Package notificationscheduler собирает пакетное приложение рассылки:
// читает снимок изменений и ставит письма активным подписчикам в очередь.
package notificationscheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/streadway/amqp"

	"github.com/kosttiik/subscription-notifier/internal/config"
	"github.com/kosttiik/subscription-notifier/internal/lib/rabbitmq"
	"github.com/kosttiik/subscription-notifier/internal/models"
	dispatchservice "github.com/kosttiik/subscription-notifier/internal/services/dispatch"
	"github.com/kosttiik/subscription-notifier/internal/storage"
)

// App — пакетное приложение рассылки со всеми его ресурсами.
type App struct {
	dispatchService *dispatchservice.Service
	db              *storage.Storage
	conn            *amqp.Connection
	ch              *amqp.Channel
	logger          *slog.Logger
}

func waitForDB(ctx context.Context, db *storage.Storage) error {
	for range 10 {
		if err := db.CheckDatabaseReady(ctx); err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает пакетное приложение рассылки.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetEmailQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := storage.New(cfg.StorageConnectionString, cfg.StorageTimeout)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	notifications := rabbitmq.NewPublisher(ch, rabbitmq.RoutingKeyNotifications)
	dispatchService := dispatchservice.New(db, notifications, logger)

	return &App{
		dispatchService: dispatchService,
		db:              db,
		conn:            conn,
		ch:              ch,
		logger:          logger,
	}, nil
}

// Run читает снимок изменений из файла и выполняет один прогон рассылки.
func (a *App) Run(ctx context.Context, payloadPath string) error {
	defer a.close()

	raw, err := os.ReadFile(payloadPath)
	if err != nil {
		return fmt.Errorf("failed to read change payload: %w", err)
	}

	var payload models.ChangePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to parse change payload: %w", err)
	}
	if len(payload.Changes) == 0 {
		a.logger.Info("no changes in payload, nothing to dispatch")
		return nil
	}

	report, err := a.dispatchService.Dispatch(ctx, &payload)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("dispatch finished with %d failed recipients of %d", report.Failed, report.Recipients)
	}
	return nil
}

func (a *App) close() {
	closeResources(a.ch, a.conn, a.logger)
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close database", slog.Any("err", err))
	}
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", slog.Any("err", err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", slog.Any("err", err))
		}
	}
}
