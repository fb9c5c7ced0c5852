// Package models содержит доменные модели системы: пользователей, премиум-записи,
// подписки и структуры для работы с данными из внешних источников.
package models

import "time"

// Значения тарифного плана и его статуса.
const (
	PlanFree    = "free"
	PlanPremium = "premium"

	PlanStatusActive   = "active"
	PlanStatusInactive = "inactive"
)

// User представляет зарегистрированного пользователя системы.
//
// Поля плана в записи пользователя являются базовыми: при вычислении
// эффективного плана активная премиум-запись имеет приоритет.
type User struct {
	UID           string     // Уникальный идентификатор пользователя
	Email         string     // Электронная почта, нормализованная (trim + lowercase)
	PasswordHash  string     // Хэш пароля пользователя
	Plan          string     // Тариф: free или premium
	PlanStatus    string     // Статус тарифа: active или inactive
	PlanExpiresAt *time.Time // Дата истечения тарифа, nil — бессрочно
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PremiumEntitlement — отдельная запись о платном доступе, ключом служит email.
// Активная запись переопределяет поля плана в User при вычислении эффективного плана.
// Ведётся отдельно от учётной записи, чтобы биллинг мог управлять ею независимо.
type PremiumEntitlement struct {
	Email         string
	Plan          string
	Status        string
	PlanExpiresAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Plan описывает эффективный тарифный план пользователя.
type Plan struct {
	Plan          string     `json:"plan"`
	PlanStatus    string     `json:"plan_status"`
	PlanExpiresAt *time.Time `json:"plan_expires_at"`
}

// DefaultPlan возвращает план по умолчанию для незарегистрированного email.
func DefaultPlan() Plan {
	return Plan{Plan: PlanFree, PlanStatus: PlanStatusInactive}
}

// IsPremiumActive сообщает, дает ли план доступ к премиум-возможностям.
func (p Plan) IsPremiumActive() bool {
	return p.Plan == PlanPremium && p.PlanStatus == PlanStatusActive
}
