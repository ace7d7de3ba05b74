// Package dbx holds the database/sql plumbing shared by SQL-backed session
// stores: a DBTX handle, WithTx and transaction-scoped advisory locks.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction. The transaction is committed only when fn
// returns nil; any error or panic rolls it back.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// LockClass namespaces advisory lock keys.
type LockClass int32

const (
	LockFamily LockClass = 1
	LockUser   LockClass = 2
)

// XactLock takes a Postgres advisory lock on (class, key) that is released
// when the surrounding transaction ends.
func XactLock(ctx context.Context, tx DBTX, class LockClass, key string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, int32(class), key)
	return err
}
