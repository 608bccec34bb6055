package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Context is a handle through which reads or writes against the engine are
// issued. *sqlx.DB, *sqlx.Tx and the null context all satisfy it.
type Context interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	Rebind(query string) string
}

var (
	_ Context = (*sqlx.DB)(nil)
	_ Context = (*sqlx.Tx)(nil)
	_ Context = nullContext{}
)

// nullContext stands in for the engine once every open attempt, including
// the in-memory one, has failed. Reads see an empty store; writes fail.
type nullContext struct{}

func (nullContext) GetContext(context.Context, interface{}, string, ...interface{}) error {
	return sql.ErrNoRows
}

func (nullContext) SelectContext(context.Context, interface{}, string, ...interface{}) error {
	return nil
}

func (nullContext) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, ErrUnavailable
}

func (nullContext) NamedExecContext(context.Context, string, interface{}) (sql.Result, error) {
	return nil, ErrUnavailable
}

func (nullContext) Rebind(query string) string { return query }

// WriteContext is an isolated transaction. It must be finished with
// exactly one of Commit or Rollback; extra calls are no-ops.
type WriteContext struct {
	Context

	tx      *sqlx.Tx
	release func()
	once    sync.Once
}

func (w *WriteContext) finish(fn func() error) error {
	err := ErrUnavailable
	ran := false
	w.once.Do(func() {
		ran = true
		defer w.release()
		if w.tx == nil {
			err = nil
			return
		}
		err = fn()
	})
	if !ran {
		return nil
	}
	return err
}

// Commit makes the staged changes durable.
func (w *WriteContext) Commit() error {
	return w.finish(func() error {
		if err := w.tx.Commit(); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	})
}

// Rollback discards the staged changes.
func (w *WriteContext) Rollback() error {
	return w.finish(func() error {
		if err := w.tx.Rollback(); err != nil && err != sql.ErrTxDone {
			return fmt.Errorf("rolling back transaction: %w", err)
		}
		return nil
	})
}
