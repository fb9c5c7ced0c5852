// Package me реализует HTTP-обработчик сведений о текущем пользователе.
//
// План в ответе перечитывается из хранилища, а не берется из снимка
// в токене: премиум мог быть выдан или отозван после выпуска сессии.
package me

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

// Handler обрабатывает HTTP-запросы сведений о текущем пользователе.
type Handler struct {
	log   *slog.Logger
	users Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, users Service) *Handler {
	return &Handler{log: log, users: users}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.me"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFromContext(r.Context())
	if !ok {
		log.Error("no session claims in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.ErrorWithCode("authentication required", response.CodeAuthRequired))
		return
	}

	plan, err := h.users.ResolvePlan(r.Context(), claims.Email)
	if err != nil {
		log.Error("failed to resolve plan", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"user": map[string]any{
			"id":    claims.Subject,
			"email": claims.Email,
		},
		"plan": plan,
	}))
}
