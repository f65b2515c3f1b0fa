package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const externalReferenceConstraint = "transactions_external_reference_key"

var errReferenceConflict = errors.New("external reference already stored")

// SaveResult is the outcome of Save. Conflict is set when another transaction
// already owns the external reference; Transaction is then the zero value.
type SaveResult struct {
	Transaction domain.Transaction
	Conflict    bool
}

// TransactionRepository persists transactions in Postgres.
type TransactionRepository struct {
	store *Store
}

func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

// Save inserts a new transaction or moves an existing one to its new status.
// Every status change writes an audit row in the same database transaction.
func (r *TransactionRepository) Save(ctx context.Context, tx domain.Transaction) (SaveResult, error) {
	err := r.store.RunInTx(ctx, func(q *Queries) error {
		current, err := q.GetTransactionStatusForUpdate(ctx, tx.ID().UUID())
		if errors.Is(err, pgx.ErrNoRows) {
			return insertNewTransaction(ctx, q, tx)
		}
		if err != nil {
			return fmt.Errorf("get current transaction state: %w", err)
		}
		return transitionTransaction(ctx, q, tx, domain.TransactionStatus(current))
	})

	switch {
	case err == nil:
		return SaveResult{Transaction: tx}, nil
	case errors.Is(err, errReferenceConflict):
		return SaveResult{Conflict: true}, nil
	case errors.Is(err, domain.ErrInvalidTransaction):
		return SaveResult{}, err
	default:
		return SaveResult{}, fmt.Errorf("%w: save transaction %s: %v", domain.ErrStore, tx.ID(), err)
	}
}

func insertNewTransaction(ctx context.Context, q *Queries, tx domain.Transaction) error {
	err := q.InsertTransaction(ctx, InsertTransactionParams{
		ID:                tx.ID().UUID(),
		Amount:            tx.Money().Amount.String(),
		Currency:          string(tx.Money().Currency),
		Type:              string(tx.Type()),
		Status:            string(tx.Status()),
		OccurredAt:        tx.OccurredAt(),
		CreatedAt:         tx.CreatedAt(),
		ExternalReference: tx.ExternalReference(),
	})
	if isReferenceConflict(err) {
		return errReferenceConflict
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return writeAudit(ctx, q, tx.ID(), domain.AuditActionCreated, "", tx.Status())
}

func transitionTransaction(ctx context.Context, q *Queries, tx domain.Transaction, current domain.TransactionStatus) error {
	next := tx.Status()
	if !domain.CanTransition(current, next) {
		switch {
		case current == domain.TxStatusProcessed:
			return fmt.Errorf("%w: %s", domain.ErrAlreadyProcessed, tx.ID())
		case current == next:
			return nil
		default:
			return fmt.Errorf("%w: invalid transaction state transition: %s -> %s", domain.ErrInvalidTransaction, current, next)
		}
	}

	rows, err := q.UpdateTransactionStatus(ctx, UpdateTransactionStatusParams{
		Status: string(next),
		ID:     tx.ID().UUID(),
	})
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return err
	}
	return writeAudit(ctx, q, tx.ID(), domain.AuditActionProcessed, current, next)
}

func writeAudit(ctx context.Context, q *Queries, id domain.TransactionID, action string, prev, next domain.TransactionStatus) error {
	var prevState *string
	if prev != "" {
		p := string(prev)
		prevState = &p
	}
	if _, err := q.InsertAuditLog(ctx, InsertAuditLogParams{
		TransactionID: id.UUID(),
		Action:        action,
		PrevState:     prevState,
		NextState:     string(next),
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id domain.TransactionID) (domain.Transaction, bool, error) {
	row, err := r.store.Queries().GetTransaction(ctx, id.UUID())
	return r.found(row, err, "find transaction by id")
}

func (r *TransactionRepository) FindByExternalReference(ctx context.Context, externalReference string) (domain.Transaction, bool, error) {
	row, err := r.store.Queries().GetTransactionByReference(ctx, externalReference)
	return r.found(row, err, "find transaction by external reference")
}

func (r *TransactionRepository) found(row TransactionRow, err error, op string) (domain.Transaction, bool, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, false, nil
	}
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("%w: %s: %v", domain.ErrStore, op, err)
	}
	tx, err := row.toDomain()
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("%w: %s: %v", domain.ErrStore, op, err)
	}
	return tx, true, nil
}

// History returns the audit trail of a transaction, oldest first.
func (r *TransactionRepository) History(ctx context.Context, id domain.TransactionID) ([]domain.AuditEntry, error) {
	rows, err := r.store.Queries().ListAuditLogs(ctx, id.UUID())
	if err != nil {
		return nil, fmt.Errorf("%w: list audit logs: %v", domain.ErrStore, err)
	}
	entries := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := domain.AuditEntry{
			ID:            row.ID,
			TransactionID: domain.TransactionIDFromUUID(row.TransactionID),
			Action:        row.Action,
			NextState:     domain.TransactionStatus(row.NextState),
			CreatedAt:     row.CreatedAt,
		}
		if row.PrevState != nil {
			entry.PrevState = domain.TransactionStatus(*row.PrevState)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// StaleCreated counts transactions still CREATED before the cutoff and returns up to limit of them.
func (r *TransactionRepository) StaleCreated(ctx context.Context, before time.Time, limit int32) (int64, []domain.Transaction, error) {
	q := r.store.Queries()
	count, err := q.CountStaleCreated(ctx, before)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: count stale transactions: %v", domain.ErrStore, err)
	}
	if count == 0 || limit <= 0 {
		return count, nil, nil
	}
	rows, err := q.ListStaleCreated(ctx, before, limit)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: list stale transactions: %v", domain.ErrStore, err)
	}
	sample := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.toDomain()
		if err != nil {
			return 0, nil, fmt.Errorf("%w: list stale transactions: %v", domain.ErrStore, err)
		}
		sample = append(sample, tx)
	}
	return count, sample, nil
}

func (row TransactionRow) toDomain() (domain.Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("parse amount %q: %w", row.Amount, err)
	}
	currency, err := domain.ParseCurrency(row.Currency)
	if err != nil {
		return domain.Transaction{}, err
	}
	money, err := domain.NewMoney(amount, currency)
	if err != nil {
		return domain.Transaction{}, err
	}
	status, err := domain.ParseTransactionStatus(row.Status)
	if err != nil {
		return domain.Transaction{}, err
	}
	txType, err := domain.ParseTransactionType(row.Type)
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.RestoreTransaction(
		domain.TransactionIDFromUUID(row.ID),
		money,
		status,
		txType,
		row.OccurredAt,
		row.CreatedAt,
		row.ExternalReference,
	)
}

func isReferenceConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == externalReferenceConstraint
}

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}
