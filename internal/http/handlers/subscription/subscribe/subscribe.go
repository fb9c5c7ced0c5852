// Package subscribe реализует HTTP-обработчик оформления подписки.
//
// Обработчик доступен анонимно: подписка типа all не требует учетной записи.
// Для подписки типа filtered аутентификация проверяется бизнес-логикой,
// поэтому используется опциональный разбор сессионного токена.
package subscribe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/kosttiik/subscription-notifier/internal/http/middlewarectx"
	"github.com/kosttiik/subscription-notifier/internal/http/response"
	"github.com/kosttiik/subscription-notifier/internal/lib/sl"
	"github.com/kosttiik/subscription-notifier/internal/models"
	subservice "github.com/kosttiik/subscription-notifier/internal/services/subscription"
)

// Service описывает интерфейс бизнес-логики подписок.
type Service interface {
	CreateOrReactivate(ctx context.Context, req models.DummySubscription, identity *subservice.Identity) (*models.SubscriptionSummary, error)
}

// Handler обрабатывает HTTP-запросы оформления подписки.
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
	const op = "handlers.subscription.subscribe"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummySubscription
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

	var identity *subservice.Identity
	if claims, ok := middlewarectx.ClaimsFromContext(r.Context()); ok {
		identity = &subservice.Identity{
			UserUID: claims.Subject,
			Email:   claims.Email,
		}
	}

	summary, err := h.subs.CreateOrReactivate(r.Context(), req, identity)
	if err != nil {
		h.renderError(w, r, log, err)
		return
	}

	log.Info("subscription created", slog.String("id", summary.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription": summary,
	}))
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	// все бизнес-отказы отдаются как 400, различаясь полем code
	switch {
	case errors.Is(err, subservice.ErrAlreadySubscribed):
		log.Info("duplicate subscription attempt")
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("email is already subscribed", response.CodeDuplicate))
	case errors.Is(err, subservice.ErrAuthRequired):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("authentication required for filtered subscriptions", response.CodeAuthRequired))
	case errors.Is(err, subservice.ErrEmailMismatch):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("authenticated email does not match subscription email", response.CodeEmailMismatch))
	case errors.Is(err, subservice.ErrPremiumRequired):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("active premium plan required for filtered subscriptions", response.CodePremiumRequired))
	case errors.Is(err, subservice.ErrMissingUserID):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("authenticated identity has no user id"))
	default:
		log.Error("failed to create subscription", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
	}
}
