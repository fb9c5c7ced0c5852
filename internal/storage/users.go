package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kosttiik/subscription-notifier/internal/models"
)

// CreateUser сохраняет нового пользователя с тарифом по умолчанию free/inactive
// и возвращает созданную запись. Нарушение уникальности email — ErrUserExists.
func (s *Storage) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	const op = "storage.CreateUser"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO users (email, password_hash)
			  VALUES ($1, $2)
			  RETURNING uid, email, password_hash, plan, plan_status, plan_expires_at,
			      created_at, updated_at`
	u := &models.User{}
	var planExpiresAt sql.NullTime
	err := s.DB.QueryRowContext(ctx, query, email, passwordHash).Scan(
		&u.UID, &u.Email, &u.PasswordHash, &u.Plan, &u.PlanStatus, &planExpiresAt,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if planExpiresAt.Valid {
		u.PlanExpiresAt = &planExpiresAt.Time
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по нормализованному email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT uid, email, password_hash, plan, plan_status, plan_expires_at,
			      created_at, updated_at
			  FROM users
			  WHERE email = $1`
	u := &models.User{}
	var planExpiresAt sql.NullTime
	err := s.DB.QueryRowContext(ctx, query, email).Scan(
		&u.UID, &u.Email, &u.PasswordHash, &u.Plan, &u.PlanStatus, &planExpiresAt,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if planExpiresAt.Valid {
		u.PlanExpiresAt = &planExpiresAt.Time
	}
	return u, nil
}

// UpsertPremiumUser создает пользователя при отсутствии, всегда перезаписывает
// хэш пароля и переводит тариф в premium/active без срока действия.
// Используется завершением upgrade-сценария по action-токену.
func (s *Storage) UpsertPremiumUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	const op = "storage.UpsertPremiumUser"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO users (email, password_hash, plan, plan_status, plan_expires_at)
			  VALUES ($1, $2, 'premium', 'active', NULL)
			  ON CONFLICT (email) DO UPDATE
			  SET password_hash = EXCLUDED.password_hash,
			      plan = 'premium',
			      plan_status = 'active',
			      plan_expires_at = NULL,
			      updated_at = now()
			  RETURNING uid, email, password_hash, plan, plan_status, plan_expires_at,
			      created_at, updated_at`
	u := &models.User{}
	var planExpiresAt sql.NullTime
	err := s.DB.QueryRowContext(ctx, query, email, passwordHash).Scan(
		&u.UID, &u.Email, &u.PasswordHash, &u.Plan, &u.PlanStatus, &planExpiresAt,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if planExpiresAt.Valid {
		u.PlanExpiresAt = &planExpiresAt.Time
	}
	return u, nil
}
