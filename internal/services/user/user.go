// Package user содержит бизнес-логику регистрации, аутентификации
// и определения тарифного плана пользователя.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kosttiik/subscription-notifier/internal/lib/password"
	"github.com/kosttiik/subscription-notifier/internal/models"
	"github.com/kosttiik/subscription-notifier/internal/storage"
)

// Ошибки бизнес-уровня, которые обработчики переводят в HTTP-ответы.
var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertPremiumUser(ctx context.Context, email, passwordHash string) (*models.User, error)
	GetPremiumByEmail(ctx context.Context, email string) (*models.PremiumEntitlement, error)
	UpsertPremium(ctx context.Context, email, status string, expiresAt *time.Time) error
}

// Cache описывает контракт кэша планов.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service отвечает за учетные записи и разрешение тарифного плана.
type Service struct {
	repo     UserRepository
	cache    Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo UserRepository, cache Cache, cacheTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// NormalizeEmail приводит адрес к каноническому виду для хранения и поиска.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создает нового пользователя с хэшированием пароля и планом по умолчанию.
func (s *Service) Register(ctx context.Context, email, rawPassword string) (*models.User, error) {
	const op = "services.user.Register"

	email = NormalizeEmail(email)
	hash, err := password.Hash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	usr, err := s.repo.CreateUser(ctx, email, hash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("registered new user", slog.String("uid", usr.UID))
	return usr, nil
}

// Authenticate проверяет пароль пользователя. Несуществующий пользователь и
// неверный пароль неразличимы для вызывающего.
func (s *Service) Authenticate(ctx context.Context, email, rawPassword string) (*models.User, error) {
	const op = "services.user.Authenticate"

	email = NormalizeEmail(email)
	usr, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !password.Verify(rawPassword, usr.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return usr, nil
}

// ResolvePlan определяет действующий план пользователя: активная
// премиум-запись имеет приоритет над планом в учетной записи,
// отсутствие обеих дает план по умолчанию. Результат кэшируется.
func (s *Service) ResolvePlan(ctx context.Context, email string) (models.Plan, error) {
	const op = "services.user.ResolvePlan"

	email = NormalizeEmail(email)
	cacheKey := "plan:" + email

	var cached models.Plan
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read plan from cache", slog.String("key", cacheKey), slog.Any("err", err))
	}
	if found {
		return cached, nil
	}

	plan, err := s.resolvePlanFromStore(ctx, email)
	if err != nil {
		return models.Plan{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.Set(cacheKey, plan, s.cacheTTL); err != nil {
		s.log.Warn("failed to cache plan", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return plan, nil
}

func (s *Service) resolvePlanFromStore(ctx context.Context, email string) (models.Plan, error) {
	// Премиум-запись перекрывает план учетной записи только пока она активна.
	premium, err := s.repo.GetPremiumByEmail(ctx, email)
	switch {
	case err == nil && premium.Status == models.PlanStatusActive:
		return models.Plan{
			Plan:          models.PlanPremium,
			PlanStatus:    premium.Status,
			PlanExpiresAt: premium.PlanExpiresAt,
		}, nil
	case err != nil && !errors.Is(err, storage.ErrEntitlementNotFound):
		return models.Plan{}, err
	}

	usr, err := s.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return models.Plan{
			Plan:          usr.Plan,
			PlanStatus:    usr.PlanStatus,
			PlanExpiresAt: usr.PlanExpiresAt,
		}, nil
	case errors.Is(err, storage.ErrUserNotFound):
		return models.DefaultPlan(), nil
	default:
		return models.Plan{}, err
	}
}

// UpgradeWithPassword переводит учетную запись на премиум-план, создавая
// пользователя при необходимости, и синхронизирует премиум-запись.
func (s *Service) UpgradeWithPassword(ctx context.Context, email, rawPassword string) (*models.User, error) {
	const op = "services.user.UpgradeWithPassword"

	email = NormalizeEmail(email)
	hash, err := password.Hash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	usr, err := s.repo.UpsertPremiumUser(ctx, email, hash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpsertPremium(ctx, email, models.PlanStatusActive, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.Invalidate("plan:" + email); err != nil {
		s.log.Warn("failed to invalidate plan cache", slog.String("email", email), slog.Any("err", err))
	}

	s.log.Info("upgraded user to premium", slog.String("uid", usr.UID))
	return usr, nil
}

// SetPremiumStatus изменяет статус премиум-записи без изменения учетной записи.
func (s *Service) SetPremiumStatus(ctx context.Context, email, status string, expiresAt *time.Time) error {
	const op = "services.user.SetPremiumStatus"

	email = NormalizeEmail(email)
	if err := s.repo.UpsertPremium(ctx, email, status, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Invalidate("plan:" + email); err != nil {
		s.log.Warn("failed to invalidate plan cache", slog.String("email", email), slog.Any("err", err))
	}
	return nil
}
