// Package notificationbackend предоставляет маршруты для основного приложения.
package notificationbackend

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/kosttiik/subscription-notifier/internal/config"
	"github.com/kosttiik/subscription-notifier/internal/http/handlers/auth/login"
	"github.com/kosttiik/subscription-notifier/internal/http/handlers/auth/me"
	"github.com/kosttiik/subscription-notifier/internal/http/handlers/auth/signup"
	planstatus "github.com/kosttiik/subscription-notifier/internal/http/handlers/plan/status"
	"github.com/kosttiik/subscription-notifier/internal/http/handlers/subscription/health"
	"github.com/kosttiik/subscription-notifier/internal/http/handlers/subscription/requestunsubscribe"
	"github.com/kosttiik/subscription-notifier/internal/http/handlers/subscription/stats"
	"github.com/kosttiik/subscription-notifier/internal/http/handlers/subscription/subscribe"
	"github.com/kosttiik/subscription-notifier/internal/http/handlers/subscription/unsubscribe"
	upgradeconfirm "github.com/kosttiik/subscription-notifier/internal/http/handlers/upgrade/confirm"
	upgradestart "github.com/kosttiik/subscription-notifier/internal/http/handlers/upgrade/start"
	"github.com/kosttiik/subscription-notifier/internal/http/middlewarectx"
	"github.com/kosttiik/subscription-notifier/internal/lib/token"
	subservice "github.com/kosttiik/subscription-notifier/internal/services/subscription"
	upgradeservice "github.com/kosttiik/subscription-notifier/internal/services/upgrade"
	userservice "github.com/kosttiik/subscription-notifier/internal/services/user"
	"github.com/kosttiik/subscription-notifier/internal/storage"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(
	r chi.Router,
	cfg *config.Config,
	logger *slog.Logger,
	maker *token.Maker,
	db *storage.Storage,
	users *userservice.Service,
	subscriptions *subservice.Service,
	upgrades *upgradeservice.Service,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middlewarectx.MetricsMiddleware)
	r.Use(middlewarectx.RateLimitMiddleware(rate.NewLimiter(50, 100), logger))

	// Открытые конечные точки
	r.Post("/signup", signup.New(logger, users, maker).ServeHTTP)
	r.Post("/login", login.New(logger, users, maker).ServeHTTP)
	r.Post("/unsubscribe", unsubscribe.New(logger, subscriptions).ServeHTTP)
	r.Post("/request-unsubscribe", requestunsubscribe.New(logger, subscriptions).ServeHTTP)
	r.Post("/upgrade", upgradestart.New(logger, upgrades).ServeHTTP)
	r.Post("/upgrade_confirm", upgradeconfirm.New(logger, upgrades).ServeHTTP)
	r.Get("/stats", stats.New(logger, subscriptions).ServeHTTP)
	r.Get("/health", health.New(logger, db).ServeHTTP)

	// Конечные точки с опциональной аутентификацией: подписка типа all
	// и проверка плана по email доступны анонимно
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.OptionalAuthMiddleware(maker, logger))
		r.Post("/subscribe", subscribe.New(logger, subscriptions).ServeHTTP)
		r.Get("/plan_status", planstatus.New(logger, users).ServeHTTP)
	})

	// Группа с обязательной JWT аутентификацией
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.AuthMiddleware(maker, logger))
		r.Get("/auth/me", me.New(logger, users).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
}
