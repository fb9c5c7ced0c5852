// Package upgrade реализует перевод учетной записи на премиум-план:
// выдачу ссылки на оплату либо одноразовой ссылки подтверждения по почте.
package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/kosttiik/subscription-notifier/internal/lib/token"
	"github.com/kosttiik/subscription-notifier/internal/models"
	"github.com/kosttiik/subscription-notifier/internal/services/user"
)

// PurposeUpgrade — назначение action-токена для подтверждения апгрейда.
const PurposeUpgrade = "upgrade"

// ErrInvalidLink возвращается на просроченный или поддельный токен из ссылки.
var ErrInvalidLink = errors.New("upgrade link is invalid or expired")

// UserManager — часть пользовательского сервиса, нужная для апгрейда.
type UserManager interface {
	UpgradeWithPassword(ctx context.Context, email, rawPassword string) (*models.User, error)
	ResolvePlan(ctx context.Context, email string) (models.Plan, error)
}

// Publisher публикует задания на отправку писем в очередь.
type Publisher interface {
	Publish(message any) error
}

// StartResult — ответ на запрос апгрейда: либо внешняя страница оплаты,
// либо признак того, что ссылка подтверждения отправлена на почту.
type StartResult struct {
	CheckoutURL string
	EmailSent   bool
}

// Service управляет процессом апгрейда.
type Service struct {
	users       UserManager
	maker       *token.Maker
	publisher   Publisher
	checkoutURL string
	log         *slog.Logger
}

// New создает новый экземпляр Service. checkoutURL может быть пустым:
// тогда вместо страницы оплаты пользователю отправляется ссылка по почте.
func New(users UserManager, maker *token.Maker, publisher Publisher, checkoutURL string, log *slog.Logger) *Service {
	return &Service{
		users:       users,
		maker:       maker,
		publisher:   publisher,
		checkoutURL: checkoutURL,
		log:         log,
	}
}

// Start начинает апгрейд для адреса. При настроенной странице оплаты
// возвращает её адрес, иначе ставит в очередь письмо с одноразовой ссылкой.
func (s *Service) Start(ctx context.Context, email string) (*StartResult, error) {
	const op = "services.upgrade.Start"

	email = user.NormalizeEmail(email)

	if s.checkoutURL != "" {
		return &StartResult{
			CheckoutURL: s.checkoutURL + "?email=" + url.QueryEscape(email),
		}, nil
	}

	actionToken, err := s.maker.IssueAction(email, PurposeUpgrade, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.publisher.Publish(models.EmailJob{
		Kind:        models.EmailKindUpgradeLink,
		Email:       email,
		ActionToken: actionToken,
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("queued upgrade link email", slog.String("email_hash", token.HashEmail(email)))
	return &StartResult{EmailSent: true}, nil
}

// Confirm завершает апгрейд по одноразовому токену из письма: устанавливает
// пароль, активирует премиум и выпускает свежий сессионный токен с
// актуальным планом.
func (s *Service) Confirm(ctx context.Context, actionToken, rawPassword string) (string, models.Plan, error) {
	const op = "services.upgrade.Confirm"

	claims, err := s.maker.VerifyAction(actionToken, PurposeUpgrade)
	if err != nil {
		return "", models.Plan{}, ErrInvalidLink
	}

	usr, err := s.users.UpgradeWithPassword(ctx, claims.Email, rawPassword)
	if err != nil {
		return "", models.Plan{}, fmt.Errorf("%s: %w", op, err)
	}

	// план перечитывается из хранилища, а не берется из токена
	plan, err := s.users.ResolvePlan(ctx, claims.Email)
	if err != nil {
		return "", models.Plan{}, fmt.Errorf("%s: %w", op, err)
	}

	session, err := s.maker.IssueSession(usr, plan)
	if err != nil {
		return "", models.Plan{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("upgrade confirmed", slog.String("uid", usr.UID))
	return session, plan, nil
}
