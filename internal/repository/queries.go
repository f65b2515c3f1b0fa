package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries groups the SQL statements used by the repositories.
type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

type TransactionRow struct {
	ID                uuid.UUID
	Amount            string
	Currency          string
	Type              string
	Status            string
	OccurredAt        time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExternalReference string
}

type AuditLogRow struct {
	ID            int64
	TransactionID uuid.UUID
	Action        string
	PrevState     *string
	NextState     string
	CreatedAt     time.Time
}

const transactionColumns = `id, amount::text, currency, type, status, occurred_at, created_at, updated_at, external_reference`

func scanTransaction(row pgx.Row) (TransactionRow, error) {
	var r TransactionRow
	err := row.Scan(&r.ID, &r.Amount, &r.Currency, &r.Type, &r.Status, &r.OccurredAt, &r.CreatedAt, &r.UpdatedAt, &r.ExternalReference)
	return r, err
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (TransactionRow, error) {
	return scanTransaction(q.db.QueryRow(ctx, getTransaction, id))
}

const getTransactionByReference = `SELECT ` + transactionColumns + ` FROM transactions WHERE external_reference = $1`

func (q *Queries) GetTransactionByReference(ctx context.Context, externalReference string) (TransactionRow, error) {
	return scanTransaction(q.db.QueryRow(ctx, getTransactionByReference, externalReference))
}

const getTransactionStatusForUpdate = `SELECT status FROM transactions WHERE id = $1 FOR UPDATE`

func (q *Queries) GetTransactionStatusForUpdate(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := q.db.QueryRow(ctx, getTransactionStatusForUpdate, id).Scan(&status)
	return status, err
}

type InsertTransactionParams struct {
	ID                uuid.UUID
	Amount            string
	Currency          string
	Type              string
	Status            string
	OccurredAt        time.Time
	CreatedAt         time.Time
	ExternalReference string
}

const insertTransaction = `
INSERT INTO transactions (id, amount, currency, type, status, occurred_at, created_at, updated_at, external_reference)
VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, NOW(), $8)
`

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) error {
	_, err := q.db.Exec(ctx, insertTransaction,
		arg.ID,
		arg.Amount,
		arg.Currency,
		arg.Type,
		arg.Status,
		arg.OccurredAt,
		arg.CreatedAt,
		arg.ExternalReference,
	)
	return err
}

type UpdateTransactionStatusParams struct {
	Status string
	ID     uuid.UUID
}

const updateTransactionStatus = `UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2`

func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateTransactionStatus, arg.Status, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type InsertAuditLogParams struct {
	TransactionID uuid.UUID
	Action        string
	PrevState     *string
	NextState     string
}

const insertAuditLog = `
INSERT INTO transaction_audit (transaction_id, action, prev_state, next_state, created_at)
VALUES ($1, $2, $3, $4, NOW())
RETURNING id
`

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertAuditLog, arg.TransactionID, arg.Action, arg.PrevState, arg.NextState).Scan(&id)
	return id, err
}

const listAuditLogs = `
SELECT id, transaction_id, action, prev_state, next_state, created_at
FROM transaction_audit
WHERE transaction_id = $1
ORDER BY id
`

func (q *Queries) ListAuditLogs(ctx context.Context, transactionID uuid.UUID) ([]AuditLogRow, error) {
	rows, err := q.db.Query(ctx, listAuditLogs, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AuditLogRow
	for rows.Next() {
		var i AuditLogRow
		if err := rows.Scan(&i.ID, &i.TransactionID, &i.Action, &i.PrevState, &i.NextState, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countStaleCreated = `SELECT COUNT(*) FROM transactions WHERE status = 'CREATED' AND created_at < $1`

func (q *Queries) CountStaleCreated(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countStaleCreated, before).Scan(&n)
	return n, err
}

const listStaleCreated = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE status = 'CREATED' AND created_at < $1
ORDER BY created_at
LIMIT $2
`

func (q *Queries) ListStaleCreated(ctx context.Context, before time.Time, limit int32) ([]TransactionRow, error) {
	rows, err := q.db.Query(ctx, listStaleCreated, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TransactionRow
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
