// Package status реализует HTTP-обработчик проверки тарифного плана.
//
// Адрес берется из сессионного токена, если запрос аутентифицирован,
// иначе из query-параметра email. План всегда определяется по хранилищу,
// снимок в токене не используется.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/kosttiik/subscription-notifier/internal/http/middlewarectx"
	"github.com/kosttiik/subscription-notifier/internal/http/response"
	"github.com/kosttiik/subscription-notifier/internal/lib/sl"
	"github.com/kosttiik/subscription-notifier/internal/models"
)

// Service описывает интерфейс определения плана пользователя.
type Service interface {
	ResolvePlan(ctx context.Context, email string) (models.Plan, error)
}

// Handler обрабатывает HTTP-запросы проверки плана.
type Handler struct {
	log   *slog.Logger
	users Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, users Service) *Handler {
	return &Handler{log: log, users: users}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.status"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	email := r.URL.Query().Get("email")
	authenticated := false
	if claims, ok := middlewarectx.ClaimsFromContext(r.Context()); ok {
		email = claims.Email
		authenticated = true
	}

	if email == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("email is required", response.CodeValidation))
		return
	}

	plan, err := h.users.ResolvePlan(r.Context(), email)
	if err != nil {
		log.Error("failed to resolve plan", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"plan": plan,
		"auth": authenticated,
	}))
}
