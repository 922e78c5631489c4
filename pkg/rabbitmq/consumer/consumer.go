package consumer

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology describes the exchange/queue/binding the consumer asserts before
// consuming. Assertion is idempotent: declaring an existing exchange or queue
// with matching parameters is a no-op, mismatched parameters fail the stage.
type Topology struct {
	ExchangeName       string
	ExchangeKind       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool

	// QueueName left blank asks the broker to generate one.
	QueueName      string
	QueueExclusive bool
	RoutingKey     string

	AutoAck bool
}

type Consumer struct {
	connectionName string

	conn    *amqp.Connection
	channel *amqp.Channel

	state State

	// QueueName holds the broker-assigned name once the queue stage completed.
	QueueName string
}

// New dials the broker. A dial failure is returned directly: nothing was set
// up yet, so there is no stage to attribute it to.
func New(url string, opts ...Option) (*Consumer, error) {
	c := &Consumer{state: StateDisconnected}

	for _, opt := range opts {
		opt(c)
	}

	props := amqp.Table{}
	if c.connectionName != "" {
		props["connection_name"] = c.connectionName
	}

	conn, err := amqp.DialConfig(url, amqp.Config{Properties: props})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consumer - New - amqp.DialConfig: %w", err)
	}

	c.conn = conn
	c.state = StateConnected

	return c, nil
}

// Consume runs the setup stages strictly in order: open channel, assert
// exchange, assert queue, bind, start consuming. A failed stage returns a
// SetupError naming it and leaves the consumer halted in the last reached
// state; no stage is rolled back or retried.
func (c *Consumer) Consume(t Topology) (<-chan amqp.Delivery, error) {
	channel, err := c.conn.Channel()
	if err != nil {
		return nil, &SetupError{Stage: StageChannel, Err: err}
	}

	c.channel = channel
	c.state = StateChannelOpen

	err = channel.ExchangeDeclare(
		t.ExchangeName,
		t.ExchangeKind,
		t.ExchangeDurable,
		t.ExchangeAutoDelete,
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, &SetupError{Stage: StageExchange, Err: err}
	}

	c.state = StateExchangeAsserted

	queue, err := channel.QueueDeclare(
		t.QueueName,
		false, // durable
		false, // autoDelete
		t.QueueExclusive,
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, &SetupError{Stage: StageQueue, Err: err}
	}

	c.QueueName = queue.Name
	c.state = StateQueueAsserted

	err = channel.QueueBind(queue.Name, t.RoutingKey, t.ExchangeName, false, nil)
	if err != nil {
		return nil, &SetupError{Stage: StageBind, Err: err}
	}

	c.state = StateBound

	deliveries, err := channel.Consume(
		queue.Name,
		"",    // consumer tag, broker-generated
		t.AutoAck,
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, &SetupError{Stage: StageConsume, Err: err}
	}

	c.state = StateConsuming

	return deliveries, nil
}

// State reports how far the setup sequence got.
func (c *Consumer) State() State {
	return c.state
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			return fmt.Errorf("rabbitmq consumer - Close - c.channel.Close: %w", err)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("rabbitmq consumer - Close - c.conn.Close: %w", err)
		}
	}

	c.state = StateDisconnected

	return nil
}
