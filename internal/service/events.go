package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/ayo6706/transaction-stream-processor/internal/observability"
	"go.uber.org/zap"
)

// publishEvent serializes and publishes an event. Failures are logged and
// counted; the caller's state change has already been committed.
func publishEvent(ctx context.Context, publisher EventPublisher, topic, partitionKey string, event any) {
	payload, err := json.Marshal(event)
	if err == nil {
		err = publisher.Publish(ctx, topic, partitionKey, payload)
	}
	if err != nil {
		observability.IncrementPublishFailure(topic)
		zap.L().Error("event publish failed",
			zap.String("topic", topic),
			zap.String("partition_key", partitionKey),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrPublish, err)),
		)
		return
	}
	zap.L().Debug("event published", zap.String("topic", topic), zap.String("partition_key", partitionKey))
}
