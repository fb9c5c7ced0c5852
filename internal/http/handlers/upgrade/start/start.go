// Package start реализует HTTP-обработчик начала апгрейда на премиум-план.
package start

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/kosttiik/subscription-notifier/internal/http/response"
	"github.com/kosttiik/subscription-notifier/internal/lib/sl"
	upgradeservice "github.com/kosttiik/subscription-notifier/internal/services/upgrade"
)

// Request — структура входных данных для начала апгрейда.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// Service описывает интерфейс начала апгрейда.
type Service interface {
	Start(ctx context.Context, email string) (*upgradeservice.StartResult, error)
}

// Handler обрабатывает HTTP-запросы начала апгрейда.
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
	const op = "handlers.upgrade.start"

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

	result, err := h.upgrades.Start(r.Context(), req.Email)
	if err != nil {
		log.Error("failed to start upgrade", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
		return
	}

	if result.CheckoutURL != "" {
		render.JSON(w, r, response.OKWithData(map[string]any{
			"checkout_url": result.CheckoutURL,
		}))
		return
	}

	log.Info("upgrade link queued")
	render.JSON(w, r, response.OKWithData(map[string]any{
		"email_sent": result.EmailSent,
	}))
}
