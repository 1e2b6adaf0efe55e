package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/ticket-reconciler/internal/store"
)

// dbtx is the subset of *sql.DB and *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repo provides data access to the ticketing tables.  A Repo built with
// New runs every statement on the connection pool; the Repo handed to an
// Atomic callback runs every statement on one transaction.  All timestamp
// columns are stored in UTC.
type Repo struct {
	db   *sql.DB
	conn dbtx
}

var _ store.Store = (*Repo)(nil)

// New returns a Repo bound to the provided database.
func New(db *sql.DB) *Repo { return &Repo{db: db, conn: db} }

// Atomic runs fn inside a transaction.  Nested calls reuse the outer
// transaction.
func (r *Repo) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	if _, inTx := r.conn.(*sql.Tx); inTx {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Repo{db: r.db, conn: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
