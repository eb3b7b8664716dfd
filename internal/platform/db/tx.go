package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentTxOptions is the transaction mode for document writes: READ
// COMMITTED plus explicit SELECT ... FOR UPDATE row locks. A writer blocked
// on a locked batch re-reads the committed row once the lock releases;
// REPEATABLE READ would instead abort the waiter with a 40001 serialization
// failure, turning a legitimate concurrent sale into an error.
func DocumentTxOptions() pgx.TxOptions {
	return pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
}

// WithTx executes fn within a document transaction. Any error from fn rolls
// the whole unit back.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, DocumentTxOptions())
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
