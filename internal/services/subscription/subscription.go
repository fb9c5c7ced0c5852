// Package subscription реализует машину состояний подписки:
// создание, реактивацию, отписку по токену и отписку с подтверждением.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kosttiik/subscription-notifier/internal/lib/token"
	"github.com/kosttiik/subscription-notifier/internal/models"
	"github.com/kosttiik/subscription-notifier/internal/services/user"
	"github.com/kosttiik/subscription-notifier/internal/storage"
)

// Срок действия временного токена подтверждения отписки.
const VerificationTTL = 15 * time.Minute

// Ошибки бизнес-уровня, которые обработчики переводят в HTTP-ответы.
var (
	ErrAlreadySubscribed   = errors.New("email already subscribed")
	ErrAuthRequired        = errors.New("authentication required for filtered subscriptions")
	ErrEmailMismatch       = errors.New("authenticated email does not match subscription email")
	ErrPremiumRequired     = errors.New("active premium plan required for filtered subscriptions")
	ErrMissingUserID       = errors.New("authenticated identity has no user id")
	ErrNotFound            = errors.New("subscription not found")
	ErrVerificationInvalid = errors.New("verification token is invalid")
	ErrVerificationExpired = errors.New("verification token has expired")
)

// SubscriptionRepository описывает контракт для работы с подписками в базе данных.
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub models.Subscription) error
	GetActiveSubscription(ctx context.Context, email string) (*models.Subscription, error)
	GetActiveSubscriptionByToken(ctx context.Context, email, token string) (*models.Subscription, error)
	GetSubscriptionByVerification(ctx context.Context, email, verificationToken string) (*models.Subscription, error)
	ReactivateSubscription(ctx context.Context, email, subType string, services, regions []string, userUID *string) (*models.Subscription, error)
	UnsubscribeByToken(ctx context.Context, email, token string) error
	SetVerificationToken(ctx context.Context, email, verificationToken string, expiresAt time.Time) error
	UnsubscribeVerified(ctx context.Context, email, verificationToken string) error
	SubscriptionStatistics(ctx context.Context) (*models.SubscriptionStatistics, error)
}

// PlanResolver определяет действующий план пользователя по email.
type PlanResolver interface {
	ResolvePlan(ctx context.Context, email string) (models.Plan, error)
}

// Publisher публикует задания на отправку писем в очередь.
type Publisher interface {
	Publish(message any) error
}

// Identity — аутентифицированная личность запроса, извлеченная из session-токена.
type Identity struct {
	UserUID string
	Email   string
}

// Service управляет жизненным циклом подписок.
type Service struct {
	repo      SubscriptionRepository
	plans     PlanResolver
	publisher Publisher
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo SubscriptionRepository, plans PlanResolver, publisher Publisher, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		plans:     plans,
		publisher: publisher,
		log:       log,
	}
}

// CreateOrReactivate создает подписку либо реактивирует ранее отписанную
// запись для того же email, сохраняя её ID и постоянный токен отписки.
// Для filtered-подписок выполняется проверка аутентификации и премиум-плана
// до любой записи в хранилище.
func (s *Service) CreateOrReactivate(ctx context.Context, req models.DummySubscription, identity *Identity) (*models.SubscriptionSummary, error) {
	const op = "services.subscription.CreateOrReactivate"

	email := user.NormalizeEmail(req.Email)

	if _, err := s.repo.GetActiveSubscription(ctx, email); err == nil {
		return nil, ErrAlreadySubscribed
	} else if !errors.Is(err, storage.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var userUID *string
	if req.SubscriptionType == models.SubscriptionTypeFiltered {
		uid, err := s.checkFilteredAccess(ctx, email, identity)
		if err != nil {
			return nil, err
		}
		userUID = &uid
	}

	sub, err := s.repo.ReactivateSubscription(ctx, email, req.SubscriptionType, req.SelectedServices, req.SelectedRegions, userUID)
	switch {
	case err == nil:
		s.log.Info("reactivated subscription", slog.String("id", sub.ID))
	case errors.Is(err, storage.ErrSubscriptionNotFound):
		sub, err = s.createNew(ctx, email, req, userUID)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, storage.ErrSubscriptionExists):
		return nil, ErrAlreadySubscribed
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publishJob(models.EmailJob{
		Kind:             models.EmailKindConfirmation,
		Email:            sub.Email,
		SubscriptionID:   sub.ID,
		UnsubscribeToken: sub.UnsubscribeToken,
		SubscriptionType: sub.Type,
	})

	return &models.SubscriptionSummary{
		ID:               sub.ID,
		Email:            sub.Email,
		UnsubscribeToken: sub.UnsubscribeToken,
		Timestamp:        sub.UpdatedAt,
	}, nil
}

// checkFilteredAccess проверяет право оформить filtered-подписку и
// возвращает UID владельца.
func (s *Service) checkFilteredAccess(ctx context.Context, email string, identity *Identity) (string, error) {
	const op = "services.subscription.checkFilteredAccess"

	if identity == nil {
		return "", ErrAuthRequired
	}
	if user.NormalizeEmail(identity.Email) != email {
		return "", ErrEmailMismatch
	}

	plan, err := s.plans.ResolvePlan(ctx, email)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !plan.IsPremiumActive() {
		return "", ErrPremiumRequired
	}
	if identity.UserUID == "" {
		return "", ErrMissingUserID
	}
	return identity.UserUID, nil
}

func (s *Service) createNew(ctx context.Context, email string, req models.DummySubscription, userUID *string) (*models.Subscription, error) {
	const op = "services.subscription.createNew"

	now := time.Now().UTC()
	sub := models.Subscription{
		ID:               token.NewSubscriptionID(),
		Email:            email,
		EmailHash:        token.HashEmail(email),
		Type:             req.SubscriptionType,
		SelectedServices: req.SelectedServices,
		SelectedRegions:  req.SelectedRegions,
		Status:           models.SubscriptionStatusActive,
		UnsubscribeToken: token.NewOpaqueToken(),
		UserUID:          userUID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, storage.ErrSubscriptionExists) {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("created new subscription", slog.String("id", sub.ID), slog.String("type", sub.Type))
	return &sub, nil
}

// UnsubscribeByToken отписывает по постоянному токену. Неверный токен и уже
// отписанный email дают одну и ту же ошибку, чтобы не раскрывать состояние.
func (s *Service) UnsubscribeByToken(ctx context.Context, email, unsubscribeToken string) error {
	const op = "services.subscription.UnsubscribeByToken"

	email = user.NormalizeEmail(email)
	if err := s.repo.UnsubscribeByToken(ctx, email, unsubscribeToken); err != nil {
		if errors.Is(err, storage.ErrSubscriptionNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("unsubscribed by token", slog.String("email_hash", token.HashEmail(email)))
	return nil
}

// LookupByToken возвращает сводку активной подписки по постоянному токену,
// не меняя её состояния. Используется для предпросмотра страницы отписки.
func (s *Service) LookupByToken(ctx context.Context, email, unsubscribeToken string) (*models.SubscriptionSummary, error) {
	const op = "services.subscription.LookupByToken"

	email = user.NormalizeEmail(email)
	sub, err := s.repo.GetActiveSubscriptionByToken(ctx, email, unsubscribeToken)
	if err != nil {
		if errors.Is(err, storage.ErrSubscriptionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.SubscriptionSummary{
		ID:               sub.ID,
		Email:            sub.Email,
		UnsubscribeToken: sub.UnsubscribeToken,
		Timestamp:        sub.UpdatedAt,
	}, nil
}

// StartVerification генерирует временный токен подтверждения отписки,
// перезаписывая предыдущий незавершенный, и ставит письмо в очередь.
// Возвращает срок действия токена в минутах.
func (s *Service) StartVerification(ctx context.Context, email string) (int, error) {
	const op = "services.subscription.StartVerification"

	email = user.NormalizeEmail(email)
	verificationToken := token.NewOpaqueToken()
	expiresAt := time.Now().UTC().Add(VerificationTTL)

	if err := s.repo.SetVerificationToken(ctx, email, verificationToken, expiresAt); err != nil {
		if errors.Is(err, storage.ErrSubscriptionNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	expiryMinutes := int(VerificationTTL / time.Minute)
	s.publishJob(models.EmailJob{
		Kind:              models.EmailKindVerification,
		Email:             email,
		VerificationToken: verificationToken,
		ExpiryMinutes:     expiryMinutes,
	})

	s.log.Info("started unsubscribe verification", slog.String("email_hash", token.HashEmail(email)))
	return expiryMinutes, nil
}

// VerifyAndUnsubscribe завершает отписку по временному токену подтверждения.
// Просроченный токен дает отдельную ошибку, подписка при этом остается активной.
func (s *Service) VerifyAndUnsubscribe(ctx context.Context, email, verificationToken string) error {
	const op = "services.subscription.VerifyAndUnsubscribe"

	email = user.NormalizeEmail(email)
	sub, err := s.repo.GetSubscriptionByVerification(ctx, email, verificationToken)
	if err != nil {
		if errors.Is(err, storage.ErrSubscriptionNotFound) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if sub.VerificationExpiresAt == nil || time.Now().UTC().After(*sub.VerificationExpiresAt) {
		return ErrVerificationExpired
	}

	if err := s.repo.UnsubscribeVerified(ctx, email, verificationToken); err != nil {
		if errors.Is(err, storage.ErrSubscriptionNotFound) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("unsubscribed via verification", slog.String("email_hash", token.HashEmail(email)))
	return nil
}

// Statistics возвращает агрегированные счётчики подписок.
func (s *Service) Statistics(ctx context.Context) (*models.SubscriptionStatistics, error) {
	const op = "services.subscription.Statistics"

	stats, err := s.repo.SubscriptionStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return stats, nil
}

func (s *Service) publishJob(job models.EmailJob) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(job); err != nil {
		s.log.Warn("failed to publish email job", slog.String("kind", job.Kind), slog.Any("err", err))
	}
}
