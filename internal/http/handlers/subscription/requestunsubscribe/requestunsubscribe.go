// Package requestunsubscribe реализует HTTP-обработчик запуска отписки
// с подтверждением по почте.
package requestunsubscribe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/kosttiik/subscription-notifier/internal/http/response"
	"github.com/kosttiik/subscription-notifier/internal/lib/sl"
	subservice "github.com/kosttiik/subscription-notifier/internal/services/subscription"
)

// Request — структура входных данных для запуска подтверждения отписки.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// Service описывает интерфейс запуска подтверждения отписки.
type Service interface {
	StartVerification(ctx context.Context, email string) (int, error)
}

// Handler обрабатывает HTTP-запросы запуска подтверждения отписки.
type Handler struct {
	log      *slog.Logger
	subs     Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, subs Service) *Handler {
	return &Handler{
		log:      log,
		subs:     subs,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.requestunsubscribe"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	expiryMinutes, err := h.subs.StartVerification(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, subservice.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ErrorWithCode("no active subscription for this email", response.CodeNotFound))
			return
		}
		log.Error("failed to start verification", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
		return
	}

	log.Info("verification started")
	render.JSON(w, r, response.OKWithData(map[string]any{
		"expiry_minutes": expiryMinutes,
	}))
}
