// Package notificationsender собирает приложение-отправитель писем:
// потребители очередей и SMTP транспорт.
package notificationsender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/kosttiik/subscription-notifier/internal/config"
	"github.com/kosttiik/subscription-notifier/internal/lib/rabbitmq"
	"github.com/kosttiik/subscription-notifier/internal/lib/smtp"
	senderservice "github.com/kosttiik/subscription-notifier/internal/services/sender"
)

// App — приложение-отправитель со всеми его ресурсами.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	logger        *slog.Logger
}

// New создает приложение-отправитель.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetEmailQueues())
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		return nil, err
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	senderService := senderservice.New(transport, cfg.AppURL, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run запускает потребителей обеих очередей и ждет отмены контекста.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.QueueTransactional, a.senderService.HandleMessage)
	if err != nil {
		a.logger.Error("failed to start transactional consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.QueueNotifications, a.senderService.HandleMessage)
	if err != nil {
		a.logger.Error("failed to start notifications consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	return nil
}
