package models

// Виды писем, публикуемых в очередь для отправителя.
const (
	EmailKindConfirmation = "confirmation"
	EmailKindVerification = "unsubscribe_verification"
	EmailKindUpgradeLink  = "upgrade_link"
	EmailKindChangeAlert  = "change_notification"
)

// EmailJob — сообщение очереди на отправку одного письма одному получателю.
// Заполняются только поля, относящиеся к конкретному виду письма.
type EmailJob struct {
	Kind  string `json:"kind"`
	Email string `json:"email"`

	// confirmation
	SubscriptionID   string `json:"subscription_id,omitempty"`
	UnsubscribeToken string `json:"unsubscribe_token,omitempty"`
	SubscriptionType string `json:"subscription_type,omitempty"`

	// unsubscribe_verification
	VerificationToken string `json:"verification_token,omitempty"`
	ExpiryMinutes     int    `json:"expiry_minutes,omitempty"`

	// upgrade_link
	ActionToken string `json:"action_token,omitempty"`

	// change_notification
	Stats *ChangeStats `json:"stats,omitempty"`
	Date  string       `json:"date,omitempty"`
}
