// Package storage реализует хранилище данных на основе PostgreSQL
// для управления пользователями, премиум-записями и подписками.
// Каждый переход состояния выражается одним условным UPDATE,
// корректность при конкурентных запросах обеспечивается атомарностью
// обновления строки и частичным уникальным индексом на активные подписки.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Ошибки бизнес-уровня хранилища. Сервисы сопоставляют их с кодами ответов,
// все прочие ошибки трактуются как инфраструктурные.
var (
	// ErrUserExists возвращается при нарушении уникальности email пользователя.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, когда пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrEntitlementNotFound возвращается при отсутствии премиум-записи.
	ErrEntitlementNotFound = errors.New("premium entitlement not found")
	// ErrSubscriptionExists возвращается при попытке создать вторую активную подписку.
	ErrSubscriptionExists = errors.New("active subscription already exists")
	// ErrSubscriptionNotFound возвращается, когда подходящая подписка не найдена.
	// Намеренно не различает "неверный токен" и "уже отписан".
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
// Каждая операция ограничена таймаутом, чтобы недоступность базы
// проявлялась как ошибка, а не как зависший запрос.
type Storage struct {
	DB      *sql.DB
	timeout time.Duration
}

// New создаёт подключение к PostgreSQL с заданным таймаутом операций.
func New(storageConnectionString string, timeout time.Duration) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB:      db,
		timeout: timeout,
	}, nil
}

// CheckDatabaseReady проверяет готовность базы данных: соединение живо
// и миграции накатаны.
func (s *Storage) CheckDatabaseReady(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'subscriptions'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table subscriptions missing or query error: %w", err)
	}
	return nil
}

// withTimeout ограничивает время жизни операции хранилища.
func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// isUniqueViolation сообщает, является ли ошибка нарушением уникального ограничения.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
