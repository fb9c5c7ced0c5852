// Package unsubscribe реализует HTTP-обработчик отписки.
//
// Запрос несет либо постоянный токен отписки (одна ссылка из любого письма),
// либо временный токен подтверждения из письма верификации. Флаг verify_only
// позволяет показать данные подписки без её изменения, когда пользователь
// только открыл страницу отписки.
package unsubscribe

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
	subservice "github.com/kosttiik/subscription-notifier/internal/services/subscription"
)

// Request — структура входных данных для отписки.
type Request struct {
	Email      string `json:"email" validate:"required,email"`
	Token      string `json:"token,omitempty"`
	Verify     string `json:"verify,omitempty"`
	VerifyOnly bool   `json:"verify_only,omitempty"`
}

// Service описывает интерфейс бизнес-логики отписки.
type Service interface {
	UnsubscribeByToken(ctx context.Context, email, unsubscribeToken string) error
	LookupByToken(ctx context.Context, email, unsubscribeToken string) (*models.SubscriptionSummary, error)
	VerifyAndUnsubscribe(ctx context.Context, email, verificationToken string) error
}

// Handler обрабатывает HTTP-запросы отписки.
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
	const op = "handlers.subscription.unsubscribe"

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

	switch {
	case req.Token != "" && req.VerifyOnly:
		h.lookup(w, r, log, req)
	case req.Token != "":
		h.byToken(w, r, log, req)
	case req.Verify != "":
		h.byVerification(w, r, log, req)
	default:
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("either token or verify is required", response.CodeValidation))
	}
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, log *slog.Logger, req Request) {
	summary, err := h.subs.LookupByToken(r.Context(), req.Email, req.Token)
	if err != nil {
		h.renderError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription": summary,
	}))
}

func (h *Handler) byToken(w http.ResponseWriter, r *http.Request, log *slog.Logger, req Request) {
	if err := h.subs.UnsubscribeByToken(r.Context(), req.Email, req.Token); err != nil {
		h.renderError(w, r, log, err)
		return
	}
	log.Info("unsubscribed by token")
	render.JSON(w, r, response.OK())
}

func (h *Handler) byVerification(w http.ResponseWriter, r *http.Request, log *slog.Logger, req Request) {
	if err := h.subs.VerifyAndUnsubscribe(r.Context(), req.Email, req.Verify); err != nil {
		h.renderError(w, r, log, err)
		return
	}
	log.Info("unsubscribed via verification")
	render.JSON(w, r, response.OK())
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, subservice.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.ErrorWithCode("subscription not found", response.CodeNotFound))
	case errors.Is(err, subservice.ErrVerificationInvalid):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.ErrorWithCode("verification token is invalid", response.CodeNotFound))
	case errors.Is(err, subservice.ErrVerificationExpired):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("verification token has expired", response.CodeExpired))
	default:
		log.Error("failed to unsubscribe", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
	}
}
