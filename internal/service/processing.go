package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/ayo6706/transaction-stream-processor/internal/models"
	"go.uber.org/zap"
)

// ProcessingService moves CREATED transactions to PROCESSED.
type ProcessingService struct {
	store     TransactionStore
	publisher EventPublisher
}

func NewProcessingService(store TransactionStore, publisher EventPublisher) *ProcessingService {
	return &ProcessingService{store: store, publisher: publisher}
}

// ProcessByID processes the transaction and publishes transactions.processed
// once the new status is stored. Processing an already PROCESSED transaction
// returns domain.ErrAlreadyProcessed.
func (s *ProcessingService) ProcessByID(ctx context.Context, id domain.TransactionID) (domain.Transaction, error) {
	tx, found, err := s.store.FindByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("load transaction: %w", err)
	}
	if !found {
		return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
	}

	processed, err := tx.Process()
	if err != nil {
		return domain.Transaction{}, err
	}

	res, err := s.store.Save(ctx, processed)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("save processed transaction: %w", err)
	}
	if res.Conflict {
		return domain.Transaction{}, fmt.Errorf("%w: unexpected reference conflict updating %s", domain.ErrStore, id)
	}

	zap.L().Info("transaction processed", zap.String("transaction_id", id.String()))
	publishEvent(ctx, s.publisher, domain.TopicTransactionProcessed, id.String(), models.NewTransactionProcessedEvent(processed))
	return processed, nil
}
