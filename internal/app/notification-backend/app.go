// Package notificationbackend собирает HTTP-приложение: хранилище, кэш,
// очередь, сервисы и маршруты.
package notificationbackend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/kosttiik/subscription-notifier/internal/cache"
	"github.com/kosttiik/subscription-notifier/internal/config"
	"github.com/kosttiik/subscription-notifier/internal/lib/rabbitmq"
	"github.com/kosttiik/subscription-notifier/internal/lib/token"
	"github.com/kosttiik/subscription-notifier/internal/migrations"
	subservice "github.com/kosttiik/subscription-notifier/internal/services/subscription"
	upgradeservice "github.com/kosttiik/subscription-notifier/internal/services/upgrade"
	userservice "github.com/kosttiik/subscription-notifier/internal/services/user"
	"github.com/kosttiik/subscription-notifier/internal/storage"
)

// App — HTTP-приложение со всеми его ресурсами.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *storage.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New создает приложение: подключает ресурсы, накатывает миграции
// и регистрирует маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString, cfg.StorageTimeout)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetEmailQueues())
	if err != nil {
		closeConn(conn, logger)
		return nil, err
	}
	transactional := rabbitmq.NewPublisher(ch, rabbitmq.RoutingKeyTransactional)

	maker, err := token.NewMaker(cfg.JWTSecretKey, cfg.SessionTTL, cfg.ActionTTL)
	if err != nil {
		closeChannel(ch, logger)
		closeConn(conn, logger)
		return nil, err
	}

	users := userservice.New(db, cacheRedis, cfg.PlanCacheTTL, logger)
	subscriptions := subservice.New(db, users, transactional, logger)
	upgrades := upgradeservice.New(users, maker, transactional, cfg.CheckoutURL, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, cfg, logger, maker, db, users, subscriptions, upgrades)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		closeChannel(a.ch, a.logger)
		closeConn(a.conn, a.logger)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close database", slog.Any("err", closeErr))
		}
		return err
	}
}

func closeChannel(ch *amqp.Channel, logger *slog.Logger) {
	if err := ch.Close(); err != nil {
		logger.Error("failed to close channel", slog.Any("err", err))
	}
}

func closeConn(conn *amqp.Connection, logger *slog.Logger) {
	if err := conn.Close(); err != nil {
		logger.Error("failed to close connection", slog.Any("err", err))
	}
}
