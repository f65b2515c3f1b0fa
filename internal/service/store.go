package service

import (
	"context"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/ayo6706/transaction-stream-processor/internal/repository"
)

// TransactionStore is the persistence contract shared by the services.
// Save reports a reference collision through SaveResult.Conflict instead of an error.
type TransactionStore interface {
	Save(ctx context.Context, tx domain.Transaction) (repository.SaveResult, error)
	FindByID(ctx context.Context, id domain.TransactionID) (domain.Transaction, bool, error)
	FindByExternalReference(ctx context.Context, externalReference string) (domain.Transaction, bool, error)
}

// HistoryStore lists the audit trail of a transaction.
type HistoryStore interface {
	History(ctx context.Context, id domain.TransactionID) ([]domain.AuditEntry, error)
}

// StaleStore finds transactions that never left CREATED.
type StaleStore interface {
	StaleCreated(ctx context.Context, before time.Time, limit int32) (int64, []domain.Transaction, error)
}

// EventPublisher hands a serialized event to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic, partitionKey string, payload []byte) error
}

// ReferenceIndex is an optional cache of externalReference -> transaction id.
type ReferenceIndex interface {
	Lookup(ctx context.Context, externalReference string) (domain.TransactionID, bool)
	Remember(ctx context.Context, externalReference string, id domain.TransactionID)
}
