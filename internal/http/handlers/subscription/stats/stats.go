// Package stats реализует HTTP-обработчик агрегированной статистики подписок.
package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/kosttiik/subscription-notifier/internal/http/response"
	"github.com/kosttiik/subscription-notifier/internal/lib/sl"
	"github.com/kosttiik/subscription-notifier/internal/models"
)

// Service описывает интерфейс статистики подписок.
type Service interface {
	Statistics(ctx context.Context) (*models.SubscriptionStatistics, error)
}

// Handler обрабатывает HTTP-запросы статистики.
type Handler struct {
	log  *slog.Logger
	subs Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, subs Service) *Handler {
	return &Handler{log: log, subs: subs}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.stats"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	statistics, err := h.subs.Statistics(r.Context())
	if err != nil {
		log.Error("failed to collect statistics", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("internal error", response.CodeInternal))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"stats": statistics,
	}))
}
