// Package idempotency caches the immutable mapping from a caller's external
// reference to the transaction created for it.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "txref"

// ReferenceCache is a read-through index in front of the store's
// external_reference lookup. Failures degrade to a miss.
type ReferenceCache struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewReferenceCache(redis redis.Cmdable, ttl time.Duration) *ReferenceCache {
	return &ReferenceCache{redis: redis, ttl: ttl}
}

type cacheEnvelope struct {
	TransactionID string `json:"transaction_id"`
	StoredAt      int64  `json:"stored_at"`
}

// Lookup returns the transaction id recorded for externalReference.
func (c *ReferenceCache) Lookup(ctx context.Context, externalReference string) (domain.TransactionID, bool) {
	if c == nil || c.redis == nil {
		return domain.TransactionID{}, false
	}

	val, err := c.redis.Get(ctx, redisKey(externalReference)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("redis reference lookup failed", zap.String("external_reference", externalReference), zap.Error(err))
		}
		return domain.TransactionID{}, false
	}

	var env cacheEnvelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		zap.L().Warn("corrupt reference cache entry", zap.String("external_reference", externalReference), zap.Error(err))
		return domain.TransactionID{}, false
	}
	id, err := domain.ParseTransactionID(env.TransactionID)
	if err != nil {
		zap.L().Warn("corrupt reference cache entry", zap.String("external_reference", externalReference), zap.Error(err))
		return domain.TransactionID{}, false
	}
	return id, true
}

// Remember records the owner of externalReference. An existing entry is never overwritten.
func (c *ReferenceCache) Remember(ctx context.Context, externalReference string, id domain.TransactionID) {
	if c == nil || c.redis == nil {
		return
	}

	payload, err := json.Marshal(cacheEnvelope{TransactionID: id.String(), StoredAt: time.Now().Unix()})
	if err != nil {
		zap.L().Warn("marshal reference cache entry", zap.Error(err))
		return
	}
	if err := c.redis.SetNX(ctx, redisKey(externalReference), payload, c.ttl).Err(); err != nil {
		zap.L().Warn("redis reference cache set failed", zap.String("external_reference", externalReference), zap.Error(err))
	}
}

func redisKey(externalReference string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, externalReference)
}
