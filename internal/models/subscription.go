package models

import "time"

// Типы и статусы подписки на уведомления.
const (
	SubscriptionTypeAll      = "all"
	SubscriptionTypeFiltered = "filtered"

	SubscriptionStatusActive       = "active"
	SubscriptionStatusUnsubscribed = "unsubscribed"

	UnsubscribeMethodToken        = "token"
	UnsubscribeMethodVerification = "email_verification"
)

// Subscription представляет запись подписки на уведомления об изменениях.
//
// На один email в любой момент времени существует не более одной записи
// со статусом active. Отписанная запись не удаляется: при повторной подписке
// она реактивируется с сохранением ID и постоянного unsubscribe-токена.
type Subscription struct {
	ID                    string     // Сгенерированный идентификатор вида sub_<hex>
	Email                 string     // Email подписчика, нормализованный
	EmailHash             string     // SHA-256 от email для аналитики без раскрытия адреса
	Type                  string     // all или filtered
	SelectedServices      []string   // Выбранные сервисы (для filtered)
	SelectedRegions       []string   // Выбранные регионы (для filtered)
	Status                string     // active или unsubscribed
	UnsubscribeToken      string     // Постоянный уникальный токен для отписки по ссылке
	VerificationToken     *string    // Временный токен подтверждения отписки
	VerificationExpiresAt *time.Time // Срок действия временного токена
	UnsubscribeMethod     *string    // Способ отписки: token или email_verification
	UserUID               *string    // Владелец, обязателен только для filtered
	CreatedAt             time.Time
	UpdatedAt             time.Time
	UnsubscribedAt        *time.Time
	ResubscribedAt        *time.Time
}

// SubscriptionSummary — несекретная часть записи, возвращаемая вызывающему коду.
type SubscriptionSummary struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	UnsubscribeToken string    `json:"unsubscribe_token"`
	Timestamp        time.Time `json:"timestamp"`
}

// SubscriptionStatistics — агрегированные счётчики по статусам и типам подписок.
type SubscriptionStatistics struct {
	Total               int `json:"total_subscriptions"`
	Active              int `json:"active_subscriptions"`
	Unsubscribed        int `json:"unsubscribed"`
	AllSubscribers      int `json:"all_changes_subscribers"`
	FilteredSubscribers int `json:"filtered_subscribers"`
}

// DummySubscription используется для приёма данных из JSON-запроса,
// прежде чем конвертировать их в Subscription.
type DummySubscription struct {
	Email            string   `json:"email" validate:"required,email"`
	SubscriptionType string   `json:"subscriptionType" validate:"required,oneof=all filtered"`
	SelectedServices []string `json:"selectedServices,omitempty"`
	SelectedRegions  []string `json:"selectedRegions,omitempty"`
}
