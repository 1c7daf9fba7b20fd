package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// InTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise, including when fn panics.
func InTx(ctx context.Context, pool Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin tx")
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(tx); err != nil {
		done = true
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			zap.L().Warn("db: rollback failed", zap.Error(rbErr))
		}
		return err
	}

	done = true
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: commit tx")
	}
	return nil
}

// AdvisoryXactLock takes a transaction-scoped advisory lock on key. The lock
// is released when the transaction ends.
func AdvisoryXactLock(ctx context.Context, q Querier, key string) error {
	if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return eris.Wrapf(err, "db: advisory lock %q", key)
	}
	return nil
}
