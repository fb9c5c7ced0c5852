// Package middlewarectx содержит HTTP middleware для проверки JWT токенов
// и сбора метрик запросов.
//
// AuthMiddleware требует валидный сессионный токен и кладет в контекст
// данные аутентифицированного пользователя. OptionalAuthMiddleware делает
// то же самое, но пропускает запросы без заголовка Authorization дальше
// как анонимные.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/kosttiik/subscription-notifier/internal/http/response"
	"github.com/kosttiik/subscription-notifier/internal/lib/sl"
	"github.com/kosttiik/subscription-notifier/internal/lib/token"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserUID — ключ для UID пользователя в контексте
	UserUID Key = "user_uid"
	// Email — ключ для email пользователя в контексте
	Email Key = "email"
	// Claims — ключ для полного набора данных сессионного токена
	Claims Key = "claims"
)

// SessionVerifier описывает интерфейс проверки сессионного токена.
type SessionVerifier interface {
	VerifySession(tokenStr string) (*token.SessionClaims, error)
}

// AuthMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке
// Authorization. Если токен валиден, добавляет UID, email и claims в контекст
// запроса, иначе возвращает HTTP 401 Unauthorized.
func AuthMiddleware(maker SessionVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AuthMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorWithCode("missing or invalid authorization header", response.CodeAuthRequired))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := maker.VerifySession(tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorWithCode("invalid or expired token", response.CodeAuthRequired))
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuthMiddleware проверяет JWT, только если заголовок Authorization
// присутствует. Запрос без заголовка продолжается как анонимный; запрос с
// невалидным токеном тоже: решение о необходимости аутентификации принимает
// бизнес-логика, а не транспорт.
func OptionalAuthMiddleware(maker SessionVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.OptionalAuthMiddleware"

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := maker.VerifySession(tokenStr)
			if err != nil {
				log.Warn("ignoring invalid bearer token",
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					sl.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func withClaims(ctx context.Context, claims *token.SessionClaims) context.Context {
	ctx = context.WithValue(ctx, UserUID, claims.Subject)
	ctx = context.WithValue(ctx, Email, claims.Email)
	return context.WithValue(ctx, Claims, claims)
}

// ClaimsFromContext возвращает данные сессионного токена из контекста,
// если запрос аутентифицирован.
func ClaimsFromContext(ctx context.Context) (*token.SessionClaims, bool) {
	claims, ok := ctx.Value(Claims).(*token.SessionClaims)
	return claims, ok
}
