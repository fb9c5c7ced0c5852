// Package signup реализует HTTP-обработчик регистрации пользователя.
//
// Обработчик декодирует и валидирует JSON-запрос, создает учетную запись
// через пользовательский сервис и возвращает сессионный токен вместе с
// действующим планом.
package signup

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
	userservice "github.com/kosttiik/subscription-notifier/internal/services/user"
)

// Request — структура входных данных для регистрации.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Service описывает интерфейс бизнес-логики учетных записей.
type Service interface {
	Register(ctx context.Context, email, rawPassword string) (*models.User, error)
	ResolvePlan(ctx context.Context, email string) (models.Plan, error)
}

// TokenIssuer выпускает сессионный токен для пользователя.
type TokenIssuer interface {
	IssueSession(user *models.User, plan models.Plan) (string, error)
}

// Handler обрабатывает HTTP-запросы регистрации.
type Handler struct {
	log      *slog.Logger
	users    Service
	tokens   TokenIssuer
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, users Service, tokens TokenIssuer) *Handler {
	return &Handler{
		log:      log,
		users:    users,
		tokens:   tokens,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.signup"

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

	usr, err := h.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, userservice.ErrUserExists) {
			log.Info("duplicate registration attempt")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ErrorWithCode("email is already registered", response.CodeDuplicate))
			return
		}
		log.Error("failed to register user", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
		return
	}

	plan, err := h.users.ResolvePlan(r.Context(), usr.Email)
	if err != nil {
		log.Error("failed to resolve plan", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
		return
	}

	sessionToken, err := h.tokens.IssueSession(usr, plan)
	if err != nil {
		log.Error("failed to issue session token", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
		return
	}

	log.Info("user registered", slog.String("uid", usr.UID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"token": sessionToken,
		"plan":  plan,
	}))
}
