package migrations

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventory(t *testing.T) {
	scripts, err := Inventory()
	require.NoError(t, err)
	require.Len(t, scripts, 2)

	schema := scripts[0]
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS clinics")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS materials")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS material_transactions")
	assert.Contains(t, schema, "uq_materials_clinic_name")
	assert.Contains(t, schema, "ON DELETE RESTRICT")
	assert.Contains(t, schema, "app.current_clinic")
	assert.Contains(t, scripts[1], "CREATE POLICY clinic_directory")

	down, err := InventoryDown()
	require.NoError(t, err)
	require.Len(t, down, 2)
	assert.Contains(t, down[0], "DROP POLICY IF EXISTS clinic_directory")
	assert.Contains(t, down[1], "DROP TABLE IF EXISTS material_transactions")
}

func TestApply(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE b").WillReturnError(assert.AnError)

	err = Apply(context.Background(), sqlx.NewDb(raw, "postgres"), []string{"CREATE TABLE a ()", "CREATE TABLE b ()"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}
