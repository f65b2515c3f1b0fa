package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionID identifies a transaction. The zero value is not a valid id.
type TransactionID struct {
	value uuid.UUID
}

// NewTransactionID returns a random v4 id.
func NewTransactionID() TransactionID {
	return TransactionID{value: uuid.New()}
}

// TransactionIDFromUUID wraps an existing uuid.
func TransactionIDFromUUID(id uuid.UUID) TransactionID {
	return TransactionID{value: id}
}

// ParseTransactionID parses the canonical string form of an id.
func ParseTransactionID(raw string) (TransactionID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return TransactionID{}, fmt.Errorf("%w: malformed transaction id %q", ErrInvalidArgument, raw)
	}
	if id == uuid.Nil {
		return TransactionID{}, fmt.Errorf("%w: transaction id cannot be nil", ErrInvalidArgument)
	}
	return TransactionID{value: id}, nil
}

func (id TransactionID) UUID() uuid.UUID { return id.value }
func (id TransactionID) String() string { return id.value.String() }
func (id TransactionID) IsZero() bool { return id.value == uuid.Nil }

var transactionTransitions = map[TransactionStatus]map[TransactionStatus]struct{}{
	TxStatusCreated: {
		TxStatusProcessed: {},
	},
	TxStatusProcessed: {},
}

// CanTransition reports whether a transaction may move from current to next.
func CanTransition(current, next TransactionStatus) bool {
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// Transaction is the aggregate root. Values are immutable; state changes return a new value.
type Transaction struct {
	id                TransactionID
	money             Money
	txType            TransactionType
	occurredAt        time.Time
	createdAt         time.Time
	status            TransactionStatus
	externalReference string
}

// NewTransaction creates a CREATED transaction with a fresh id and createdAt = now.
func NewTransaction(money Money, txType TransactionType, occurredAt time.Time, externalReference string) (Transaction, error) {
	return newTransaction(NewTransactionID(), money, txType, occurredAt, time.Now().UTC(), TxStatusCreated, externalReference)
}

// RestoreTransaction rebuilds a transaction read back from storage.
func RestoreTransaction(id TransactionID, money Money, status TransactionStatus, txType TransactionType, occurredAt, createdAt time.Time, externalReference string) (Transaction, error) {
	return newTransaction(id, money, txType, occurredAt, createdAt, status, externalReference)
}

func newTransaction(id TransactionID, money Money, txType TransactionType, occurredAt, createdAt time.Time, status TransactionStatus, externalReference string) (Transaction, error) {
	if id.IsZero() {
		return Transaction{}, fmt.Errorf("%w: id is required", ErrInvalidTransaction)
	}
	money, err := NewMoney(money.Amount, money.Currency)
	if err != nil {
		return Transaction{}, err
	}
	txType, err = ParseTransactionType(string(txType))
	if err != nil {
		return Transaction{}, err
	}
	status, err = ParseTransactionStatus(string(status))
	if err != nil {
		return Transaction{}, err
	}
	if occurredAt.IsZero() {
		return Transaction{}, fmt.Errorf("%w: occurredAt is required", ErrInvalidTransaction)
	}
	if createdAt.IsZero() {
		return Transaction{}, fmt.Errorf("%w: createdAt is required", ErrInvalidTransaction)
	}
	if strings.TrimSpace(externalReference) == "" {
		return Transaction{}, fmt.Errorf("%w: external reference is required", ErrInvalidTransaction)
	}
	if occurredAt.After(createdAt) {
		return Transaction{}, fmt.Errorf("%w: occurredAt cannot be after createdAt", ErrInvalidTransaction)
	}

	return Transaction{
		id:                id,
		money:             money,
		txType:            txType,
		occurredAt:        occurredAt.UTC(),
		createdAt:         createdAt.UTC(),
		status:            status,
		externalReference: externalReference,
	}, nil
}

func (t Transaction) ID() TransactionID { return t.id }
func (t Transaction) Money() Money { return t.money }
func (t Transaction) Type() TransactionType { return t.txType }
func (t Transaction) OccurredAt() time.Time { return t.occurredAt }
func (t Transaction) CreatedAt() time.Time { return t.createdAt }
func (t Transaction) Status() TransactionStatus { return t.status }
func (t Transaction) ExternalReference() string { return t.externalReference }
func (t Transaction) Equal(other Transaction) bool { return t.id == other.id }
func (t Transaction) IsProcessed() bool { return t.status == TxStatusProcessed }

// Process moves a CREATED transaction to PROCESSED.
func (t Transaction) Process() (Transaction, error) {
	if !CanTransition(t.status, TxStatusProcessed) {
		return Transaction{}, fmt.Errorf("%w: %s", ErrAlreadyProcessed, t.id)
	}
	next := t
	next.status = TxStatusProcessed
	return next, nil
}
