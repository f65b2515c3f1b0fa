package broker

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher stands in for the broker when none is configured. Events are
// written to the log and dropped.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic, partitionKey string, payload []byte) error {
	p.logger.Info("event published",
		zap.String("topic", topic),
		zap.String("partition_key", partitionKey),
		zap.ByteString("payload", payload),
	)
	return nil
}
