package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kosttiik/subscription-notifier/internal/models"
)

// GetPremiumByEmail возвращает премиум-запись по email.
func (s *Storage) GetPremiumByEmail(ctx context.Context, email string) (*models.PremiumEntitlement, error) {
	const op = "storage.GetPremiumByEmail"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT email, plan, status, plan_expires_at, created_at, updated_at
			  FROM premium_accounts
			  WHERE email = $1`
	p := &models.PremiumEntitlement{}
	var planExpiresAt sql.NullTime
	err := s.DB.QueryRowContext(ctx, query, email).Scan(
		&p.Email, &p.Plan, &p.Status, &planExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrEntitlementNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if planExpiresAt.Valid {
		p.PlanExpiresAt = &planExpiresAt.Time
	}
	return p, nil
}

// UpsertPremium создает или обновляет премиум-запись для email.
// Запись ведётся отдельно от users, чтобы платным доступом мог управлять
// внешний биллинг, не затрагивая учётные записи.
func (s *Storage) UpsertPremium(ctx context.Context, email, status string, expiresAt *time.Time) error {
	const op = "storage.UpsertPremium"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO premium_accounts (email, plan, status, plan_expires_at)
			  VALUES ($1, 'premium', $2, $3)
			  ON CONFLICT (email) DO UPDATE
			  SET plan = 'premium',
			      status = EXCLUDED.status,
			      plan_expires_at = EXCLUDED.plan_expires_at,
			      updated_at = now()`
	if _, err := s.DB.ExecContext(ctx, query, email, status, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
