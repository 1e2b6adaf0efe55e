// Package repository implements store.Store on MySQL.  Lookups that match
// no row return store.ErrNotFound; conditional writes that find the row
// in an unexpected state return store.ErrConflict or report false, so
// higher layers never inspect driver errors.
package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticket-reconciler/internal/store"
)

// notFound maps sql.ErrNoRows to store.ErrNotFound and passes every other
// error through unchanged.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// requireOneRow turns an UPDATE that touched no row into store.ErrNotFound.
func requireOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// affected reports whether a conditional UPDATE changed a row.
func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullUint64(p *uint64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func uint64Ptr(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}
