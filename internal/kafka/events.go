package kafka

import (
	"context"
	"strconv"

	"github.com/ariefcatur/go-pixel-market.git/internal/orders"
	"github.com/segmentio/kafka-go"
)

// EventPublisher puts order envelopes on the producer's topic, keyed by
// order ID.
type EventPublisher struct {
	Producer *Producer
}

func (e *EventPublisher) PublishEvent(ctx context.Context, key string, env orders.Envelope) error {
	b, err := Marshal(env)
	if err != nil {
		return err
	}
	e.Producer.Publish(orders.PartitionKey(key), b,
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
	return nil
}
