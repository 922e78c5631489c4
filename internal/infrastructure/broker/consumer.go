package broker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/imageflow/facepoi/internal/entity"
	"github.com/imageflow/facepoi/pkg/rabbitmq/consumer"
)

// Kind tags the events the consumer republishes.
type Kind int

const (
	// KindConsume signals that setup completed and deliveries are flowing.
	KindConsume Kind = iota
	// KindMessage carries one successfully parsed delivery.
	KindMessage
	// KindError carries a setup-stage or per-delivery failure. Non-fatal:
	// the stream stays usable for later deliveries.
	KindError
)

// Event is the tagged variant delivered for every broker occurrence,
// replacing a shared error callback with one explicit sum type.
type Event struct {
	Kind    Kind
	Message entity.UploadEvent
	Err     error

	delivery amqp.Delivery
}

// EventConsumer turns raw AMQP deliveries into typed events.
type EventConsumer struct {
	consumer *consumer.Consumer
	topology consumer.Topology
	autoAck  bool

	// consume is swappable so the event loop can be driven without a broker.
	consume func(consumer.Topology) (<-chan amqp.Delivery, error)
}

func NewEventConsumer(c *consumer.Consumer, t consumer.Topology) *EventConsumer {
	return &EventConsumer{
		consumer: c,
		topology: t,
		autoAck:  t.AutoAck,
		consume:  c.Consume,
	}
}

// Events runs setup and streams events until the delivery channel closes or
// ctx is done. A setup failure is emitted as a single KindError event before
// the channel closes; the process decides what to do with it.
func (ec *EventConsumer) Events(ctx context.Context) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		deliveries, err := ec.consume(ec.topology)
		if err != nil {
			select {
			case events <- Event{Kind: KindError, Err: err}:
			case <-ctx.Done():
			}

			return
		}

		select {
		case events <- Event{Kind: KindConsume}:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}

				// Empty deliveries are broker keepalives, not data events.
				if len(delivery.Body) == 0 {
					continue
				}

				event, err := decodeDelivery(delivery.Body)
				if err != nil {
					select {
					case events <- Event{Kind: KindError, Err: err, delivery: delivery}:
					case <-ctx.Done():
						return
					}

					continue
				}

				select {
				case events <- Event{Kind: KindMessage, Message: event, delivery: delivery}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events
}

// AckEvent acknowledges one delivery. No-op in auto-ack mode.
func (ec *EventConsumer) AckEvent(event Event) error {
	if ec.autoAck || event.delivery.Acknowledger == nil {
		return nil
	}

	if err := event.delivery.Ack(false); err != nil {
		return fmt.Errorf("EventConsumer - AckEvent - event.delivery.Ack: %w", err)
	}

	return nil
}

func (ec *EventConsumer) Close() error {
	if err := ec.consumer.Close(); err != nil {
		return fmt.Errorf("EventConsumer - Close: %w", err)
	}

	return nil
}

func decodeDelivery(body []byte) (entity.UploadEvent, error) {
	var event entity.UploadEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return entity.UploadEvent{}, fmt.Errorf("EventConsumer - decodeDelivery - json.Unmarshal: %w", err)
	}

	return event, nil
}
