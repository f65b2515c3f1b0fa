// Package pgtest gives integration tests exclusive access to a schema-ready
// Postgres database.
package pgtest

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

const lockAddr = "127.0.0.1:45433"

// Acquire blocks until no other test binary holds the database lock.
func Acquire() func() {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Connect returns a pool on DATABASE_URL with empty transaction tables, or
// skips the test when DATABASE_URL is not set.
func Connect(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../../.env")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	release := Acquire()
	t.Cleanup(release)

	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE TABLE transaction_audit, transactions"); err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
	return pool
}
