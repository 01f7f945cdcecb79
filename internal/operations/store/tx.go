package store

import (
	"context"
	"database/sql"
	"time"

	dErrors "amlcore/pkg/domain-errors"
	txcontext "amlcore/pkg/platform/tx"
)

// defaultTxTimeout is the maximum duration of one operations transaction.
const defaultTxTimeout = 5 * time.Second

// PostgresTx runs a unit of work in one database transaction carried
// through the context, so the Postgres store joins it transparently.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresTx builds a runner; a zero timeout uses the 5s default.
func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	return &PostgresTx{db: db, timeout: timeout}
}

// RunInTx commits when fn returns nil and rolls back otherwise.
func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}
