package repository

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentflow/dentflow-backend/pkg/errors"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
	"github.com/dentflow/dentflow-backend/pkg/testutil"
)

const materialID = "5b8f0a3e-6c1d-4f0e-9a55-3d2b1c0e7f11"

func TestLedgerRepository_Append(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	scope := tenant.NewScope("0f6c7f0e-2b7a-4c55-8f4e-6a8d3e9b1c21", "dr.jones")
	repo := NewLedgerRepository(mockDB.Wrapped)

	created := time.Now().UTC()
	mockDB.ExpectClinicScope(scope.ClinicID)
	mockDB.ExpectQuery("clock_timestamp()").
		WithArgs(testutil.AnyUUID{}, materialID, scope.ClinicID, "Restock", 20, 70,
			"1.75", "Dentsply", nil, "dr.jones").
		WillReturnRows(testutil.MockRows("seq", "created_at").AddRow(int64(7), created))
	mockDB.ExpectCommit()

	entry := &InventoryTransaction{
		MaterialID:      materialID,
		TransactionType: TransactionRestock,
		Quantity:        20,
		BalanceAfter:    70,
		UnitCost:        decimal.NewNullDecimal(decimal.RequireFromString("1.75")),
		Supplier:        testutil.PtrString("Dentsply"),
	}
	err := repo.Append(context.Background(), scope, entry)

	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, int64(7), entry.Seq)
	assert.Equal(t, scope.ClinicID, entry.ClinicID)
	assert.Equal(t, "dr.jones", entry.PerformedBy)
	assert.Equal(t, created, entry.CreatedAt)
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerRepository_Append_DefaultsPerformedByToSystem(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	scope := testutil.TestScope()
	scope.PerformedBy = ""
	repo := NewLedgerRepository(mockDB.Wrapped)

	mockDB.ExpectClinicScope(scope.ClinicID)
	mockDB.ExpectQuery("INSERT INTO material_transactions").
		WillReturnRows(testutil.MockRows("seq", "created_at").AddRow(int64(1), time.Now()))
	mockDB.ExpectCommit()

	entry := &InventoryTransaction{MaterialID: materialID, TransactionType: TransactionUsage, Quantity: -2, BalanceAfter: 3}
	require.NoError(t, repo.Append(context.Background(), scope, entry))

	assert.Equal(t, "system", entry.PerformedBy)
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerRepository_Append_MaterialVanishedIsConflict(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	scope := testutil.TestScope()
	repo := NewLedgerRepository(mockDB.Wrapped)

	mockDB.ExpectClinicScope(scope.ClinicID)
	mockDB.ExpectQuery("INSERT INTO material_transactions").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "material_transactions_material_id_fkey"})
	mockDB.ExpectRollback()

	err := repo.Append(context.Background(), scope, &InventoryTransaction{
		MaterialID: materialID, TransactionType: TransactionAdjustment, Quantity: -5, BalanceAfter: 65,
	})

	assert.ErrorIs(t, err, errors.ErrConflict)
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerRepository_Append_RejectsUnknownType(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := NewLedgerRepository(mockDB.Wrapped)

	err := repo.Append(context.Background(), testutil.TestScope(), &InventoryTransaction{
		MaterialID: materialID, TransactionType: "Refund",
	})

	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerRepository_Append_MalformedClinicIsForbidden(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := NewLedgerRepository(mockDB.Wrapped)

	err := repo.Append(context.Background(), tenant.NewScope("clinic-1", "dr.jones"), &InventoryTransaction{
		MaterialID: materialID, TransactionType: TransactionRestock, Quantity: 1, BalanceAfter: 1,
	})

	assert.ErrorIs(t, err, errors.ErrForbidden)
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerRepository_ListForMaterial_NewestFirst(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	scope := testutil.TestScope()
	repo := NewLedgerRepository(mockDB.Wrapped)

	material, entries := testutil.NewFixtureFactory().GauzeScenario(scope.ClinicID)
	mockDB.ExpectClinicScope(scope.ClinicID)
	mockDB.ExpectQuery("ORDER BY created_at DESC, seq DESC").
		WithArgs(material.ID, scope.ClinicID).
		WillReturnRows(testutil.TransactionRows(entries...))
	mockDB.ExpectCommit()

	got, err := repo.ListForMaterial(context.Background(), scope, material.ID)

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, TransactionAdjustment, got[0].TransactionType)
	assert.Equal(t, -5, got[0].Quantity)
	assert.Equal(t, 65, got[0].BalanceAfter)
	assert.Equal(t, TransactionRestock, got[2].TransactionType)
	assert.False(t, got[2].UnitCost.Valid)
	assert.Equal(t, -1, CheckSequence(got))
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerRepository_Summarize(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	scope := testutil.TestScope()
	repo := NewLedgerRepository(mockDB.Wrapped)

	mockDB.ExpectClinicQuery(scope.ClinicID, "COALESCE(SUM(quantity), 0) AS sum",
		testutil.MockRows("entries", "sum", "last_balance").AddRow(int64(3), int64(65), int64(65)),
	)

	summary, err := repo.Summarize(context.Background(), scope, materialID)

	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Entries)
	assert.Equal(t, int64(65), summary.Sum)
	require.NotNil(t, summary.LastBalance)
	assert.Equal(t, int64(65), *summary.LastBalance)
	mockDB.ExpectationsWereMet(t)
}

func TestLedgerRepository_Summarize_EmptyLedger(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	scope := testutil.TestScope()
	repo := NewLedgerRepository(mockDB.Wrapped)

	mockDB.ExpectClinicQuery(scope.ClinicID, "FROM material_transactions",
		testutil.MockRows("entries", "sum", "last_balance").AddRow(int64(0), int64(0), nil),
	)

	summary, err := repo.Summarize(context.Background(), scope, materialID)

	require.NoError(t, err)
	assert.Zero(t, summary.Entries)
	assert.Nil(t, summary.LastBalance)
	mockDB.ExpectationsWereMet(t)
}

func TestCheckSequence(t *testing.T) {
	tx := func(delta, balance int) *InventoryTransaction {
		return &InventoryTransaction{Quantity: delta, BalanceAfter: balance}
	}

	tests := []struct {
		name    string
		entries []*InventoryTransaction // newest first
		want    int
	}{
		{"empty", nil, -1},
		{"seed only", []*InventoryTransaction{tx(50, 50)}, -1},
		{"zero seed", []*InventoryTransaction{tx(0, 0)}, -1},
		{"gauze", []*InventoryTransaction{tx(-5, 65), tx(20, 70), tx(50, 50)}, -1},
		{"bad seed", []*InventoryTransaction{tx(20, 70), tx(50, 40)}, 0},
		{"diverged second entry", []*InventoryTransaction{tx(-5, 65), tx(20, 75), tx(50, 50)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckSequence(tt.entries))
		})
	}
}
