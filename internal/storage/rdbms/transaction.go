package rdbms

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trellisml/trellis/internal/debug"
	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/types"
)

// Verify txn implements storage.Transaction at compile time.
var _ storage.Transaction = (*txn)(nil)

// txn implements the storage.Transaction contract over a dedicated
// connection holding an open database transaction.
type txn struct {
	conn  *sql.Conn
	store *Store
}

// transientRetryMaxElapsed bounds how long a transaction is retried when the
// driver reports transient failures (lock contention, dropped connections).
const transientRetryMaxElapsed = 10 * time.Second

func newTransientRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = transientRetryMaxElapsed
	return bo
}

// ExecuteTransaction runs fn inside one database transaction, retrying the
// whole transaction on transient driver failures. Domain errors, anything
// carrying a status code, stop the loop immediately.
//
// Transaction lifecycle:
//  1. Acquire a dedicated connection from the pool
//  2. Open the transaction with the dialect's begin statement
//  3. Execute fn against the Transaction interface
//  4. On success: COMMIT
//  5. On error or panic: ROLLBACK, re-raising the panic
func (s *Store) ExecuteTransaction(ctx context.Context, opts *types.TransactionOptions, fn func(tx storage.Transaction) error) error {
	tag := ""
	if opts != nil {
		tag = opts.Tag
	}

	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			debug.Logf("retrying transaction %q (attempt %d)", tag, attempt)
		}
		err := s.withTransaction(ctx, func(conn *sql.Conn) error {
			return fn(&txn{conn: conn, store: s})
		})
		if err == nil {
			return nil
		}
		var coded *status.Error
		if errors.As(err, &coded) {
			return backoff.Permanent(err)
		}
		if s.dialect.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(operation, backoff.WithContext(newTransientRetryBackoff(), ctx))
}

// withTransaction runs fn on a dedicated connection inside a single
// transaction attempt, without retry. Schema changes and data transactions
// share this path.
func (s *Store) withTransaction(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return s.wrapDBError("acquire connection", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, s.dialect.BeginStmt()); err != nil {
		return s.wrapDBError("begin transaction", err)
	}

	// Track commit state for cleanup. The deferred rollback also runs when
	// fn panics, so the connection goes back to the pool clean either way.
	committed := false
	defer func() {
		if !committed {
			// Background context so the rollback completes even when ctx is
			// already cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return s.wrapDBError("commit transaction", err)
	}
	committed = true
	return nil
}

// runSchemaChange is withTransaction for DDL work. MySQL commits DDL
// statements implicitly, so atomicity is only real on sqlite; the migration
// steps are idempotent to compensate.
func (s *Store) runSchemaChange(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	err := s.withTransaction(ctx, func(conn *sql.Conn) error {
		return fn(ctx, conn)
	})
	return s.wrapDBError("schema change", err)
}
