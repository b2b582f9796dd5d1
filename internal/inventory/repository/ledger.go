package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentflow/dentflow-backend/pkg/database"
	"github.com/dentflow/dentflow-backend/pkg/errors"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TransactionRestock    TransactionType = "Restock"
	TransactionUsage      TransactionType = "Usage"
	TransactionAdjustment TransactionType = "Adjustment"
)

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionRestock, TransactionUsage, TransactionAdjustment:
		return true
	}
	return false
}

// InventoryTransaction is one immutable ledger entry. Quantity is the signed
// delta, BalanceAfter the material's quantity right after the entry.
type InventoryTransaction struct {
	ID              string              `db:"id" json:"id"`
	Seq             int64               `db:"seq" json:"-"`
	MaterialID      string              `db:"material_id" json:"material_id"`
	ClinicID        string              `db:"clinic_id" json:"clinic_id"`
	TransactionType TransactionType     `db:"transaction_type" json:"transaction_type"`
	Quantity        int                 `db:"quantity" json:"quantity"`
	BalanceAfter    int                 `db:"balance_after" json:"balance_after"`
	UnitCost        decimal.NullDecimal `db:"unit_cost" json:"unit_cost"`
	Supplier        *string             `db:"supplier" json:"supplier,omitempty"`
	Notes           *string             `db:"notes" json:"notes,omitempty"`
	PerformedBy     string              `db:"performed_by" json:"performed_by"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
}

// LedgerSummary aggregates the ledger of one material
type LedgerSummary struct {
	Entries     int64  `db:"entries"`
	Sum         int64  `db:"sum"`
	LastBalance *int64 `db:"last_balance"`
}

const transactionColumns = `id, seq, material_id, clinic_id, transaction_type, quantity, balance_after,
	unit_cost, supplier, notes, performed_by, created_at`

// LedgerRepository is the append-only inventory ledger. It exposes no update
// or delete; the table additionally rejects both with a trigger.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append inserts an entry. A material that vanished in the meantime fails
// the foreign key and is reported as Conflict.
func (r *LedgerRepository) Append(ctx context.Context, scope tenant.Scope, tx *InventoryTransaction) error {
	if err := checkScope(scope, "material", tx.MaterialID); err != nil {
		return err
	}
	if !tx.TransactionType.Valid() {
		return errors.InvalidArgument("transaction_type", "unknown transaction type")
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.ClinicID = scope.ClinicID
	if tx.PerformedBy == "" {
		tx.PerformedBy = scope.Actor()
	}

	return r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		// clock_timestamp() instead of now(): entries written by transactions
		// queued on the same row lock get increasing times in lock order.
		query := `
			INSERT INTO material_transactions (
				id, material_id, clinic_id, transaction_type, quantity, balance_after,
				unit_cost, supplier, notes, performed_by, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, clock_timestamp())
			RETURNING seq, created_at
		`
		err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
			tx.ID, tx.MaterialID, tx.ClinicID, tx.TransactionType, tx.Quantity, tx.BalanceAfter,
			tx.UnitCost, tx.Supplier, tx.Notes, tx.PerformedBy,
		).Scan(&tx.Seq, &tx.CreatedAt)
		if err != nil {
			return mapError(err, "failed to append ledger entry")
		}
		return nil
	})
}

// ListForMaterial returns a material's entries newest first. It does not
// check that the material exists.
func (r *LedgerRepository) ListForMaterial(ctx context.Context, scope tenant.Scope, materialID string) ([]*InventoryTransaction, error) {
	if err := checkScope(scope, "material", materialID); err != nil {
		return nil, err
	}

	entries := make([]*InventoryTransaction, 0)
	err := r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		query := `SELECT ` + transactionColumns + `
			FROM material_transactions
			WHERE material_id = $1 AND clinic_id = $2
			ORDER BY created_at DESC, seq DESC`
		return r.db.Conn(ctx).SelectContext(ctx, &entries, query, materialID, scope.ClinicID)
	})
	if err != nil {
		return nil, mapError(err, "failed to list ledger entries")
	}
	return entries, nil
}

// Summarize returns the entry count, the sum of deltas and the newest
// balance_after of a material's ledger.
func (r *LedgerRepository) Summarize(ctx context.Context, scope tenant.Scope, materialID string) (*LedgerSummary, error) {
	if err := checkScope(scope, "material", materialID); err != nil {
		return nil, err
	}

	var summary LedgerSummary
	err := r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		query := `
			SELECT
				COUNT(*) AS entries,
				COALESCE(SUM(quantity), 0) AS sum,
				(
					SELECT balance_after FROM material_transactions
					WHERE material_id = $1 AND clinic_id = $2
					ORDER BY created_at DESC, seq DESC
					LIMIT 1
				) AS last_balance
			FROM material_transactions
			WHERE material_id = $1 AND clinic_id = $2
		`
		return r.db.Conn(ctx).GetContext(ctx, &summary, query, materialID, scope.ClinicID)
	})
	if err != nil {
		return nil, mapError(err, "failed to summarize ledger")
	}
	return &summary, nil
}

// CheckSequence verifies that entries, given newest first as returned by
// ListForMaterial, form a cumulative sequence starting from zero. It returns
// the index of the first offending entry in chronological order, or -1.
func CheckSequence(entries []*InventoryTransaction) int {
	balance := 0
	for i := len(entries) - 1; i >= 0; i-- {
		balance += entries[i].Quantity
		if entries[i].BalanceAfter != balance {
			return len(entries) - 1 - i
		}
	}
	return -1
}
