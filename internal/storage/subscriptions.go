package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kosttiik/subscription-notifier/internal/models"
)

const subscriptionColumns = `id, email, email_hash, subscription_type,
	selected_services, selected_regions, status, unsubscribe_token,
	verification_token, verification_expires_at, unsubscribe_method, user_uid,
	created_at, updated_at, unsubscribed_at, resubscribed_at`

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var (
		services, regions               []byte
		verificationToken, method, user sql.NullString
		verificationExpiresAt           sql.NullTime
		unsubscribedAt, resubscribedAt  sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.Email, &sub.EmailHash, &sub.Type,
		&services, &regions, &sub.Status, &sub.UnsubscribeToken,
		&verificationToken, &verificationExpiresAt, &method, &user,
		&sub.CreatedAt, &sub.UpdatedAt, &unsubscribedAt, &resubscribedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(services, &sub.SelectedServices); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(regions, &sub.SelectedRegions); err != nil {
		return nil, err
	}
	if verificationToken.Valid {
		sub.VerificationToken = &verificationToken.String
	}
	if verificationExpiresAt.Valid {
		sub.VerificationExpiresAt = &verificationExpiresAt.Time
	}
	if method.Valid {
		sub.UnsubscribeMethod = &method.String
	}
	if user.Valid {
		sub.UserUID = &user.String
	}
	if unsubscribedAt.Valid {
		sub.UnsubscribedAt = &unsubscribedAt.Time
	}
	if resubscribedAt.Valid {
		sub.ResubscribedAt = &resubscribedAt.Time
	}
	return sub, nil
}

func marshalList(list []string) []byte {
	if list == nil {
		list = []string{}
	}
	// json.Marshal на срезе строк не возвращает ошибку
	data, _ := json.Marshal(list)
	return data
}

// CreateSubscription вставляет новую запись подписки.
// Гонка двух одновременных подписок на один email разрешается частичным
// уникальным индексом на (email) WHERE status = 'active'.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.CreateSubscription"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO subscriptions (id, email, email_hash, subscription_type,
			      selected_services, selected_regions, status, unsubscribe_token, user_uid)
			  VALUES ($1, $2, $3, $4, $5, $6, 'active', $7, $8)`
	_, err := s.DB.ExecContext(ctx, query,
		sub.ID, sub.Email, sub.EmailHash, sub.Type,
		marshalList(sub.SelectedServices), marshalList(sub.SelectedRegions),
		sub.UnsubscribeToken, sub.UserUID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrSubscriptionExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetActiveSubscription возвращает активную подписку по email.
func (s *Storage) GetActiveSubscription(ctx context.Context, email string) (*models.Subscription, error) {
	const op = "storage.GetActiveSubscription"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE email = $1 AND status = 'active'`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetActiveSubscriptionByToken возвращает активную подписку по email
// и постоянному unsubscribe-токену.
func (s *Storage) GetActiveSubscriptionByToken(ctx context.Context, email, token string) (*models.Subscription, error) {
	const op = "storage.GetActiveSubscriptionByToken"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE email = $1 AND unsubscribe_token = $2 AND status = 'active'`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, email, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetSubscriptionByVerification возвращает активную подписку по email
// и временному токену подтверждения отписки.
func (s *Storage) GetSubscriptionByVerification(ctx context.Context, email, verificationToken string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByVerification"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE email = $1 AND verification_token = $2 AND status = 'active'`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, email, verificationToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// ReactivateSubscription переводит отписанную запись обратно в active одним
// условным UPDATE, сохраняя её ID и постоянный unsubscribe-токен.
// Тип и выбранные сервисы/регионы перезаписываются новыми значениями.
func (s *Storage) ReactivateSubscription(ctx context.Context, email, subType string, services, regions []string, userUID *string) (*models.Subscription, error) {
	const op = "storage.ReactivateSubscription"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `UPDATE subscriptions
			  SET status = 'active',
			      subscription_type = $2,
			      selected_services = $3,
			      selected_regions = $4,
			      user_uid = $5,
			      unsubscribed_at = NULL,
			      unsubscribe_method = NULL,
			      verification_token = NULL,
			      verification_expires_at = NULL,
			      resubscribed_at = now(),
			      updated_at = now()
			  WHERE email = $1 AND status = 'unsubscribed'
			  RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query,
		email, subType, marshalList(services), marshalList(regions), userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// UnsubscribeByToken переводит активную подписку в unsubscribed одним условным
// UPDATE по совпадению (email, токен, status = active). Ноль затронутых строк
// означает неверный токен либо уже отписанный email — без различия.
func (s *Storage) UnsubscribeByToken(ctx context.Context, email, token string) error {
	const op = "storage.UnsubscribeByToken"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `UPDATE subscriptions
			  SET status = 'unsubscribed',
			      unsubscribed_at = now(),
			      unsubscribe_method = 'token',
			      updated_at = now()
			  WHERE email = $1 AND unsubscribe_token = $2 AND status = 'active'`
	result, err := s.DB.ExecContext(ctx, query, email, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}

// SetVerificationToken записывает новый временный токен подтверждения отписки
// и срок его действия, перезаписывая прежний незавершённый токен.
func (s *Storage) SetVerificationToken(ctx context.Context, email, verificationToken string, expiresAt time.Time) error {
	const op = "storage.SetVerificationToken"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `UPDATE subscriptions
			  SET verification_token = $2,
			      verification_expires_at = $3,
			      updated_at = now()
			  WHERE email = $1 AND status = 'active'`
	result, err := s.DB.ExecContext(ctx, query, email, verificationToken, expiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}

// UnsubscribeVerified завершает отписку по временному токену и очищает
// поля подтверждения одним условным UPDATE.
func (s *Storage) UnsubscribeVerified(ctx context.Context, email, verificationToken string) error {
	const op = "storage.UnsubscribeVerified"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `UPDATE subscriptions
			  SET status = 'unsubscribed',
			      unsubscribed_at = now(),
			      unsubscribe_method = 'email_verification',
			      verification_token = NULL,
			      verification_expires_at = NULL,
			      updated_at = now()
			  WHERE email = $1 AND verification_token = $2 AND status = 'active'`
	result, err := s.DB.ExecContext(ctx, query, email, verificationToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}

// ListActiveSubscriptions возвращает все активные подписки для рассылки.
func (s *Storage) ListActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	const op = "storage.ListActiveSubscriptions"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE status = 'active'
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SubscriptionStatistics считает агрегаты по статусам и типам одним запросом,
// чтобы счётчики были согласованы между собой.
func (s *Storage) SubscriptionStatistics(ctx context.Context) (*models.SubscriptionStatistics, error) {
	const op = "storage.SubscriptionStatistics"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT
			      COUNT(*),
			      COUNT(*) FILTER (WHERE status = 'active'),
			      COUNT(*) FILTER (WHERE status = 'unsubscribed'),
			      COUNT(*) FILTER (WHERE status = 'active' AND subscription_type = 'all'),
			      COUNT(*) FILTER (WHERE status = 'active' AND subscription_type = 'filtered')
			  FROM subscriptions`
	stats := &models.SubscriptionStatistics{}
	err := s.DB.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Active,
		&stats.Unsubscribed, &stats.AllSubscribers, &stats.FilteredSubscribers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return stats, nil
}
