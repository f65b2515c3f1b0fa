package broker

import (
	"context"

	"github.com/ayo6706/transaction-stream-processor/internal/consumer"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetterSink republishes failed messages to the dead-letter exchange.
type DeadLetterSink struct {
	pub        *Publisher
	routingKey string
}

func NewDeadLetterSink(pub *Publisher, routingKey string) *DeadLetterSink {
	return &DeadLetterSink{pub: pub, routingKey: routingKey}
}

func (s *DeadLetterSink) DeadLetter(ctx context.Context, record consumer.DeadLetter) error {
	headers := amqp.Table{}
	for k, v := range record.Headers() {
		headers[k] = v
	}
	if record.Message.Key != "" {
		headers[PartitionKeyHeader] = record.Message.Key
	}
	return s.pub.publish(ctx, s.pub.dlxExchange, s.routingKey, newPublishing(record.Message.Payload, headers))
}
