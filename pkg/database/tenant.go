package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

type scopedTx struct {
	tx       *sqlx.Tx
	clinicID string
}

// WithClinic runs fn inside a transaction bound to one clinic.
//
// The transaction sets app.current_clinic with set_config(..., true), which is
// scoped to the transaction, so row-level security policies only see the
// clinic's rows. The transaction travels in the context passed to fn; queries
// issued through Conn(ctx) join it. A nested call for the same clinic reuses
// the outer transaction, so several repository calls commit or roll back
// together.
func (db *DB) WithClinic(ctx context.Context, clinicID string, fn func(context.Context) error) error {
	if clinicID == "" {
		return fmt.Errorf("clinic id is required")
	}

	if current, ok := ctx.Value(txKey{}).(*scopedTx); ok {
		if current.clinicID != clinicID {
			return fmt.Errorf("transaction is bound to clinic %s, not %s", current.clinicID, clinicID)
		}
		return fn(ctx)
	}

	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT set_config('app.current_clinic', $1, true)", clinicID); err != nil {
			return fmt.Errorf("failed to set app.current_clinic: %w", err)
		}
		return fn(context.WithValue(ctx, txKey{}, &scopedTx{tx: tx, clinicID: clinicID}))
	})
}

// Conn returns the transaction stored in ctx by WithClinic, or the pool.
func (db *DB) Conn(ctx context.Context) Querier {
	if current, ok := ctx.Value(txKey{}).(*scopedTx); ok {
		return current.tx
	}
	return db.DB
}

// InTransaction reports whether ctx carries a WithClinic transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*scopedTx)
	return ok
}
