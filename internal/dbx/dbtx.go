// Package dbx holds the small database plumbing shared by the SQLite and
// PostgreSQL repositories: the DBTX interface both *sql.DB and *sql.Tx
// satisfy, and a transaction helper.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql the repositories use. Constructing a
// repository over a *sql.Tx scopes all of its statements to that
// transaction, which is how a pushed change is applied atomically with its
// change-log entry.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Panics are rethrown after rollback.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
