package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// PublishMessage публикует сообщение в RabbitMQ.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Publisher публикует почтовые задания в очередь с фиксированным ключом.
// Отдельный тип нужен, чтобы сервисы зависели от интерфейса, а не от канала.
type Publisher struct {
	ch         *amqp.Channel
	routingKey string
}

// NewPublisher создает Publisher поверх открытого канала.
func NewPublisher(ch *amqp.Channel, routingKey string) *Publisher {
	return &Publisher{ch: ch, routingKey: routingKey}
}

// Publish отправляет одно сообщение в exchange почтовых заданий.
func (p *Publisher) Publish(message any) error {
	return PublishMessage(p.ch, ExchangeName, p.routingKey, message)
}
