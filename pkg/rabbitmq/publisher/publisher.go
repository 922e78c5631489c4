package publisher

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func New(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq publisher - New - amqp.Dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("rabbitmq publisher - New - conn.Channel: %w", err)
	}

	return &Publisher{conn: conn, channel: channel}, nil
}

// EnsureExchange asserts the exchange before publishing to it.
func (p *Publisher) EnsureExchange(name, kind string, durable, autoDelete bool) error {
	err := p.channel.ExchangeDeclare(name, kind, durable, autoDelete, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq publisher - EnsureExchange - p.channel.ExchangeDeclare: %w", err)
	}

	return nil
}

func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, body []byte, messageID string) error {
	err := p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   messageID,
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publisher - Publish - p.channel.PublishWithContext: %w", err)
	}

	return nil
}

func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		return fmt.Errorf("rabbitmq publisher - Close - p.channel.Close: %w", err)
	}

	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("rabbitmq publisher - Close - p.conn.Close: %w", err)
	}

	return nil
}
