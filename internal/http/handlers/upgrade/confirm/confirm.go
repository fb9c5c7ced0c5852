// Package confirm реализует HTTP-обработчик завершения апгрейда
// по одноразовой ссылке из письма.
package confirm

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
	"github.com/kosttiik/subscription-notifier/internal/models"
	upgradeservice "github.com/kosttiik/subscription-notifier/internal/services/upgrade"
)

// Request — структура входных данных для завершения апгрейда.
type Request struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// Service описывает интерфейс завершения апгрейда.
type Service interface {
	Confirm(ctx context.Context, actionToken, rawPassword string) (string, models.Plan, error)
}

// Handler обрабатывает HTTP-запросы завершения апгрейда.
type Handler struct {
	log      *slog.Logger
	upgrades Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, upgrades Service) *Handler {
	return &Handler{
		log:      log,
		upgrades: upgrades,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.upgrade.confirm"

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

	sessionToken, plan, err := h.upgrades.Confirm(r.Context(), req.Token, req.Password)
	if err != nil {
		if errors.Is(err, upgradeservice.ErrInvalidLink) {
			log.Info("invalid upgrade link")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ErrorWithCode("upgrade link is invalid or expired", response.CodeExpired))
			return
		}
		log.Error("failed to confirm upgrade", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
		return
	}

	log.Info("upgrade confirmed")
	render.JSON(w, r, response.OKWithData(map[string]any{
		"token": sessionToken,
		"plan":  plan,
	}))
}
