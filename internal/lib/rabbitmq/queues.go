package rabbitmq

// ExchangeName — общий exchange почтовых заданий.
const ExchangeName = "emails"

// Имена очередей и ключи маршрутизации почтовых заданий.
const (
	QueueTransactional = "emails.transactional"
	QueueNotifications = "emails.notifications"

	RoutingKeyTransactional = "transactional"
	RoutingKeyNotifications = "notifications"
)

// QueueConfig описывает очередь и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetEmailQueues возвращает очереди отправителя писем: транзакционные письма
// (подтверждения, ссылки) и рассылку уведомлений об изменениях.
func GetEmailQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueTransactional, RoutingKey: RoutingKeyTransactional},
		{QueueName: QueueNotifications, RoutingKey: RoutingKeyNotifications},
	}
}
