package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/observability"
	"go.uber.org/zap"
)

const staleSampleSize = 10

// ReconciliationService reports transactions that were never processed,
// which usually means their creation event was lost.
type ReconciliationService struct {
	store      StaleStore
	staleAfter time.Duration
	now        func() time.Time
}

func NewReconciliationService(store StaleStore, staleAfter time.Duration) *ReconciliationService {
	return &ReconciliationService{store: store, staleAfter: staleAfter, now: time.Now}
}

// Run counts stale CREATED transactions and exposes the count as a gauge.
func (s *ReconciliationService) Run(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.staleAfter)
	count, sample, err := s.store.StaleCreated(ctx, cutoff, staleSampleSize)
	if err != nil {
		return 0, fmt.Errorf("find stale transactions: %w", err)
	}

	observability.SetStaleCreated(count)
	if count == 0 {
		zap.L().Info("no stale transactions")
		return 0, nil
	}

	ids := make([]string, 0, len(sample))
	for _, tx := range sample {
		ids = append(ids, tx.ID().String())
	}
	zap.L().Warn("transactions stuck in CREATED",
		zap.Int64("count", count),
		zap.Time("created_before", cutoff),
		zap.Strings("sample_ids", ids),
	)
	return count, nil
}
