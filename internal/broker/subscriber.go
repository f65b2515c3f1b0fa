package broker

import (
	"context"
	"fmt"

	"github.com/ayo6706/transaction-stream-processor/internal/consumer"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Delivery is a received message plus its settlement callbacks.
type Delivery struct {
	Message consumer.Message
	ack     func() error
	nack    func(requeue bool) error
}

func NewDelivery(msg consumer.Message, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{Message: msg, ack: ack, nack: nack}
}

func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Subscriber reads the consumer queue with manual acknowledgements.
type Subscriber struct {
	client *Client
}

func NewSubscriber(c *Client) *Subscriber {
	return &Subscriber{client: c}
}

// Deliveries streams messages until ctx is done or the channel closes.
func (s *Subscriber) Deliveries(ctx context.Context) (<-chan Delivery, error) {
	cfg := s.client.cfg
	ch, err := s.client.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume %s: %w", cfg.Queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- fromAMQP(d):
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func fromAMQP(d amqp.Delivery) Delivery {
	key, _ := d.Headers[PartitionKeyHeader].(string)
	return NewDelivery(
		consumer.Message{Topic: d.RoutingKey, Key: key, Payload: d.Body},
		func() error { return d.Ack(false) },
		func(requeue bool) error { return d.Nack(false, requeue) },
	)
}
