package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imageflow/facepoi/pkg/rabbitmq/consumer"
)

func newTestEventConsumer(deliveries <-chan amqp.Delivery, setupErr error) *EventConsumer {
	return &EventConsumer{
		autoAck: true,
		consume: func(consumer.Topology) (<-chan amqp.Delivery, error) {
			if setupErr != nil {
				return nil, setupErr
			}

			return deliveries, nil
		},
	}
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case event, ok := <-events:
		require.True(t, ok, "event channel closed unexpectedly")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func requireClosed(t *testing.T, events <-chan Event) {
	t.Helper()

	select {
	case _, ok := <-events:
		require.False(t, ok, "expected event channel to be closed")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event channel to close")
	}
}

func TestEventsEmitsConsumeThenMessages(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- amqp.Delivery{Body: []byte(`{"eventName":"images.post","image":{"user":"espen","identifier":"img1"}}`)}
	close(deliveries)

	events := newTestEventConsumer(deliveries, nil).Events(context.Background())

	first := nextEvent(t, events)
	assert.Equal(t, KindConsume, first.Kind)

	second := nextEvent(t, events)
	require.Equal(t, KindMessage, second.Kind)
	assert.Equal(t, "images.post", second.Message.EventName)
	require.NotNil(t, second.Message.Image)
	assert.Equal(t, "espen", second.Message.Image.User)

	requireClosed(t, events)
}

func TestEventsSkipsEmptyDeliveries(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- amqp.Delivery{}
	deliveries <- amqp.Delivery{Body: []byte(`{"eventName":"images.post"}`)}
	close(deliveries)

	events := newTestEventConsumer(deliveries, nil).Events(context.Background())

	assert.Equal(t, KindConsume, nextEvent(t, events).Kind)

	// The keepalive is dropped without producing any event: the next event
	// is already the real message.
	message := nextEvent(t, events)
	assert.Equal(t, KindMessage, message.Kind)
	assert.Equal(t, "images.post", message.Message.EventName)

	requireClosed(t, events)
}

func TestEventsEmitsErrorAndStaysUsableOnMalformedJSON(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- amqp.Delivery{Body: []byte(`{"eventName":`)}
	deliveries <- amqp.Delivery{Body: []byte(`{"eventName":"images.post"}`)}
	close(deliveries)

	events := newTestEventConsumer(deliveries, nil).Events(context.Background())

	assert.Equal(t, KindConsume, nextEvent(t, events).Kind)

	parseFailure := nextEvent(t, events)
	require.Equal(t, KindError, parseFailure.Kind)
	assert.Error(t, parseFailure.Err)

	// The bad delivery is dropped, the stream keeps flowing.
	message := nextEvent(t, events)
	assert.Equal(t, KindMessage, message.Kind)
	assert.Equal(t, "images.post", message.Message.EventName)

	requireClosed(t, events)
}

func TestEventsSetupFailureEmitsOneErrorThenCloses(t *testing.T) {
	setupErr := &consumer.SetupError{Stage: consumer.StageExchange, Err: errors.New("channel closed")}

	events := newTestEventConsumer(nil, setupErr).Events(context.Background())

	failure := nextEvent(t, events)
	require.Equal(t, KindError, failure.Kind)
	assert.True(t, errors.Is(failure.Err, setupErr))

	requireClosed(t, events)
}

func TestEventsStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	deliveries := make(chan amqp.Delivery)

	events := newTestEventConsumer(deliveries, nil).Events(ctx)

	assert.Equal(t, KindConsume, nextEvent(t, events).Kind)

	cancel()

	requireClosed(t, events)
}

func TestDecodeDelivery(t *testing.T) {
	body := []byte(`{"eventName":"images.post","image":{"user":"espen","identifier":"img1","width":1024,"height":768}}`)

	event, err := decodeDelivery(body)

	require.NoError(t, err)
	assert.Equal(t, "images.post", event.EventName)
	require.NotNil(t, event.Image)
	assert.Equal(t, "espen", event.Image.User)
	assert.Equal(t, "img1", event.Image.Identifier)
	assert.Equal(t, 1024, event.Image.Width)
}

func TestDecodeDeliveryMissingImage(t *testing.T) {
	event, err := decodeDelivery([]byte(`{"eventName":"images.post"}`))

	require.NoError(t, err)
	assert.Nil(t, event.Image)
}

func TestDecodeDeliveryKeepsRawPOI(t *testing.T) {
	body := []byte(`{"eventName":"images.post","image":{"user":"u","identifier":"i","metadata":{"poi":"oops"}}}`)

	event, err := decodeDelivery(body)

	// A non-array poi is not a decode error at this layer: the pipeline owns
	// that validation.
	require.NoError(t, err)
	require.NotNil(t, event.Image.Metadata)
	assert.Equal(t, `"oops"`, string(event.Image.Metadata.POI))
}

func TestAckEventIsNoopInAutoAckMode(t *testing.T) {
	ec := &EventConsumer{autoAck: true}

	assert.NoError(t, ec.AckEvent(Event{Kind: KindMessage}))
}
