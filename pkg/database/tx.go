package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// WithTx runs fn inside a transaction carried by the returned context.
// Repositories obtain the ambient transaction through Conn, so a service can
// compose several repository calls into one atomic unit:
//
//	err := db.WithTx(ctx, func(ctx context.Context) error {
//	    if err := items.LockForUpdate(ctx, id); err != nil { return err }
//	    return checklists.RecomputeCounts(ctx, checklistID)
//	})
//
// Nested calls reuse the outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if db.getTx(ctx) != nil {
		return fn(ctx)
	}
	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction in ctx, or the pool when there is none.
func (db *DB) Conn(ctx context.Context) Querier {
	if tx := db.getTx(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// getTx extracts transaction from context if present
func (db *DB) getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
