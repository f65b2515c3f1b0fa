package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/ayo6706/transaction-stream-processor/internal/models"
	"github.com/ayo6706/transaction-stream-processor/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SubmitTransactionCmd struct {
	Amount            decimal.Decimal
	Currency          string
	Type              string
	OccurredAt        time.Time
	ExternalReference string
}

// SubmitResult carries the stored transaction. Replayed is true when the
// external reference was already known and nothing new was created.
type SubmitResult struct {
	Transaction domain.Transaction
	Replayed    bool
}

// CreationService creates transactions exactly once per external reference.
type CreationService struct {
	store     TransactionStore
	publisher EventPublisher
	refs      ReferenceIndex
}

func NewCreationService(store TransactionStore, publisher EventPublisher) *CreationService {
	return &CreationService{store: store, publisher: publisher}
}

// WithReferenceIndex puts a cache in front of the external reference lookup.
func (s *CreationService) WithReferenceIndex(refs ReferenceIndex) *CreationService {
	s.refs = refs
	return s
}

// Submit returns the transaction owning cmd.ExternalReference, creating it if
// needed. Only the caller whose insert wins publishes transactions.created.
func (s *CreationService) Submit(ctx context.Context, cmd SubmitTransactionCmd) (*SubmitResult, error) {
	existing, found, err := s.findExisting(ctx, cmd.ExternalReference)
	if err != nil {
		return nil, err
	}
	if found {
		observability.IncrementSubmission("replayed")
		return &SubmitResult{Transaction: existing, Replayed: true}, nil
	}

	tx, err := buildTransaction(cmd)
	if err != nil {
		observability.IncrementSubmission("rejected")
		return nil, err
	}

	res, err := s.store.Save(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}
	if res.Conflict {
		winner, found, err := s.store.FindByExternalReference(ctx, cmd.ExternalReference)
		if err != nil {
			return nil, fmt.Errorf("load conflicting transaction: %w", err)
		}
		if !found {
			return nil, fmt.Errorf("%w: reference %q conflicted but no row was found", domain.ErrStore, cmd.ExternalReference)
		}
		observability.IncrementSubmission("race_lost")
		zap.L().Info("transaction creation lost reference race",
			zap.String("external_reference", cmd.ExternalReference),
			zap.String("transaction_id", winner.ID().String()),
		)
		s.remember(ctx, winner)
		return &SubmitResult{Transaction: winner, Replayed: true}, nil
	}

	observability.IncrementSubmission("created")
	zap.L().Info("transaction created",
		zap.String("transaction_id", tx.ID().String()),
		zap.String("external_reference", tx.ExternalReference()),
	)
	s.remember(ctx, tx)
	publishEvent(ctx, s.publisher, domain.TopicTransactionCreated, tx.ExternalReference(), models.NewTransactionCreatedEvent(tx))
	return &SubmitResult{Transaction: tx}, nil
}

func (s *CreationService) findExisting(ctx context.Context, externalReference string) (domain.Transaction, bool, error) {
	if s.refs != nil {
		if id, ok := s.refs.Lookup(ctx, externalReference); ok {
			tx, found, err := s.store.FindByID(ctx, id)
			if err != nil {
				return domain.Transaction{}, false, fmt.Errorf("find transaction by id: %w", err)
			}
			if found && tx.ExternalReference() == externalReference {
				return tx, true, nil
			}
		}
	}

	tx, found, err := s.store.FindByExternalReference(ctx, externalReference)
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("find transaction by external reference: %w", err)
	}
	if found {
		s.remember(ctx, tx)
	}
	return tx, found, nil
}

func (s *CreationService) remember(ctx context.Context, tx domain.Transaction) {
	if s.refs != nil {
		s.refs.Remember(ctx, tx.ExternalReference(), tx.ID())
	}
}

func buildTransaction(cmd SubmitTransactionCmd) (domain.Transaction, error) {
	currency, err := domain.ParseCurrency(cmd.Currency)
	if err != nil {
		return domain.Transaction{}, err
	}
	money, err := domain.NewMoney(cmd.Amount, currency)
	if err != nil {
		return domain.Transaction{}, err
	}
	txType, err := domain.ParseTransactionType(cmd.Type)
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.NewTransaction(money, txType, cmd.OccurredAt, cmd.ExternalReference)
}
