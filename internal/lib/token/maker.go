// Package token реализует выпуск и проверку JWT токенов двух видов:
// сессионных (долгоживущих, со снимком плана пользователя) и одноразовых
// action-токенов, привязанных к конкретной цели (например, "upgrade").
//
// Операции чисто криптографические: выпущенные токены нигде не сохраняются,
// единственный способ завершения сессии — истечение срока действия.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kosttiik/subscription-notifier/internal/models"
)

// Сроки действия токенов по умолчанию.
const (
	DefaultSessionTTL = 30 * 24 * time.Hour
	DefaultActionTTL  = 15 * time.Minute
)

var (
	// ErrMissingSecret возвращается при создании Maker без секретного ключа.
	ErrMissingSecret = errors.New("jwt secret is not configured")
	// ErrInvalidToken возвращается на любой невалидный токен: плохая подпись,
	// истёкший срок, пустая строка. Вызывающий код не различает причины.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongPurpose возвращается, когда action-токен предъявлен не по назначению.
	ErrWrongPurpose = errors.New("token purpose mismatch")
)

// SessionClaims — данные сессионного токена. Снимок плана фиксируется
// на момент выпуска и может устареть: для действий с высокой ценой
// план обязан перечитываться из хранилища.
type SessionClaims struct {
	Email         string     `json:"email"`
	Plan          string     `json:"plan"`
	PlanStatus    string     `json:"plan_status"`
	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty"`
	jwt.RegisteredClaims
}

// ActionClaims — данные одноразового токена с целью.
type ActionClaims struct {
	Email   string         `json:"email"`
	Purpose string         `json:"purpose"`
	Extra   map[string]any `json:"extra,omitempty"`
	jwt.RegisteredClaims
}

// Maker выпускает и проверяет оба вида токенов, используя общий секрет HS256.
type Maker struct {
	secretKey  string
	sessionTTL time.Duration
	actionTTL  time.Duration
}

// NewMaker создаёт Maker. Пустой секрет — ошибка конфигурации,
// невозможная к восстановлению на уровне запроса.
func NewMaker(secretKey string, sessionTTL, actionTTL time.Duration) (*Maker, error) {
	const op = "token.NewMaker"
	if secretKey == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingSecret)
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if actionTTL <= 0 {
		actionTTL = DefaultActionTTL
	}
	return &Maker{
		secretKey:  secretKey,
		sessionTTL: sessionTTL,
		actionTTL:  actionTTL,
	}, nil
}

// IssueSession выпускает сессионный токен для пользователя
// со снимком эффективного плана на момент выпуска.
func (m *Maker) IssueSession(user *models.User, plan models.Plan) (string, error) {
	const op = "token.IssueSession"
	now := time.Now()
	claims := SessionClaims{
		Email:         user.Email,
		Plan:          plan.Plan,
		PlanStatus:    plan.PlanStatus,
		PlanExpiresAt: plan.PlanExpiresAt,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.secretKey))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// VerifySession проверяет подпись и срок действия сессионного токена.
// Любая ошибка означает "не аутентифицирован", без уточнения причины.
func (m *Maker) VerifySession(tokenStr string) (*SessionClaims, error) {
	const op = "token.VerifySession"
	if tokenStr == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}

// IssueAction выпускает короткоживущий токен, привязанный к цели.
// Email нормализуется, нулевой ttl заменяется значением по умолчанию.
// Отрицательный ttl даёт уже истёкший токен.
func (m *Maker) IssueAction(email, purpose string, ttl time.Duration, extra map[string]any) (string, error) {
	const op = "token.IssueAction"
	if ttl == 0 {
		ttl = m.actionTTL
	}
	norm := strings.ToLower(strings.TrimSpace(email))
	now := time.Now()
	claims := ActionClaims{
		Email:   norm,
		Purpose: purpose,
		Extra:   extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   norm,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.secretKey))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// VerifyAction проверяет подпись, срок действия и точное совпадение цели.
// Токен, выпущенный для цели A, отклоняется при предъявлении для цели B.
func (m *Maker) VerifyAction(tokenStr, expectedPurpose string) (*ActionClaims, error) {
	const op = "token.VerifyAction"
	if tokenStr == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &ActionClaims{}, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	claims, ok := parsed.Claims.(*ActionClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if claims.Purpose != expectedPurpose {
		return nil, fmt.Errorf("%s: %w", op, ErrWrongPurpose)
	}
	return claims, nil
}

func (m *Maker) keyFunc(_ *jwt.Token) (any, error) {
	return []byte(m.secretKey), nil
}
