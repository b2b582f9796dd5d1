package testutil

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaterialColumns is the column order of a materials row as the repository selects it
var MaterialColumns = []string{
	"id", "clinic_id", "name", "description", "quantity", "unit", "price", "minimum_stock",
	"supplier", "created_at", "updated_at", "last_restocked", "deleted_at",
}

// TransactionColumns is the column order of a material_transactions row
var TransactionColumns = []string{
	"id", "seq", "material_id", "clinic_id", "transaction_type", "quantity", "balance_after",
	"unit_cost", "supplier", "notes", "performed_by", "created_at",
}

// MaterialFixture represents test material data
type MaterialFixture struct {
	ID            string
	ClinicID      string
	Name          string
	Description   *string
	Quantity      int
	Unit          string
	Price         decimal.Decimal
	MinimumStock  int
	Supplier      *string
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	LastRestocked *time.Time
}

// Row returns the fixture as driver values in MaterialColumns order
func (m MaterialFixture) Row() []driver.Value {
	return []driver.Value{
		m.ID, m.ClinicID, m.Name, ptrValue(m.Description), m.Quantity, m.Unit, m.Price.String(),
		m.MinimumStock, ptrValue(m.Supplier), m.CreatedAt, timeValue(m.UpdatedAt),
		timeValue(m.LastRestocked), nil,
	}
}

// MaterialRows returns sqlmock rows holding the given materials
func MaterialRows(materials ...MaterialFixture) *sqlmock.Rows {
	rows := sqlmock.NewRows(MaterialColumns)
	for _, m := range materials {
		rows.AddRow(m.Row()...)
	}
	return rows
}

// TransactionFixture represents test ledger entry data
type TransactionFixture struct {
	ID              string
	Seq             int64
	MaterialID      string
	ClinicID        string
	TransactionType string
	Quantity        int
	BalanceAfter    int
	UnitCost        *string
	Supplier        *string
	Notes           *string
	PerformedBy     string
	CreatedAt       time.Time
}

// Row returns the fixture as driver values in TransactionColumns order
func (tx TransactionFixture) Row() []driver.Value {
	return []driver.Value{
		tx.ID, tx.Seq, tx.MaterialID, tx.ClinicID, tx.TransactionType, tx.Quantity, tx.BalanceAfter,
		ptrValue(tx.UnitCost), ptrValue(tx.Supplier), ptrValue(tx.Notes), tx.PerformedBy, tx.CreatedAt,
	}
}

// TransactionRows returns sqlmock rows holding the given ledger entries
func TransactionRows(entries ...TransactionFixture) *sqlmock.Rows {
	rows := sqlmock.NewRows(TransactionColumns)
	for _, tx := range entries {
		rows.AddRow(tx.Row()...)
	}
	return rows
}

func ptrValue(s *string) driver.Value {
	if s == nil {
		return nil
	}
	return *s
}

func timeValue(t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return *t
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Material creates a material fixture with defaults
func (f *FixtureFactory) Material(clinicID string, opts ...func(*MaterialFixture)) MaterialFixture {
	seq := f.nextSeq()
	m := MaterialFixture{
		ID:           uuid.New().String(),
		ClinicID:     clinicID,
		Name:         fmt.Sprintf("Material %d", seq),
		Quantity:     50,
		Unit:         "pieces",
		Price:        decimal.RequireFromString("2.50"),
		MinimumStock: 10,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

// WithMaterialName sets the material name
func WithMaterialName(name string) func(*MaterialFixture) {
	return func(m *MaterialFixture) {
		m.Name = name
	}
}

// WithQuantity sets the stock level
func WithQuantity(quantity int) func(*MaterialFixture) {
	return func(m *MaterialFixture) {
		m.Quantity = quantity
	}
}

// WithMinimumStock sets the reorder threshold
func WithMinimumStock(minimum int) func(*MaterialFixture) {
	return func(m *MaterialFixture) {
		m.MinimumStock = minimum
	}
}

// WithPrice sets the unit price
func WithPrice(price string) func(*MaterialFixture) {
	return func(m *MaterialFixture) {
		m.Price = decimal.RequireFromString(price)
	}
}

// WithSupplier sets the supplier
func WithSupplier(supplier string) func(*MaterialFixture) {
	return func(m *MaterialFixture) {
		m.Supplier = &supplier
	}
}

// Transaction creates a ledger entry fixture for a material
func (f *FixtureFactory) Transaction(m MaterialFixture, txType string, delta, balance int) TransactionFixture {
	seq := f.nextSeq()
	return TransactionFixture{
		ID:              uuid.New().String(),
		Seq:             int64(seq),
		MaterialID:      m.ID,
		ClinicID:        m.ClinicID,
		TransactionType: txType,
		Quantity:        delta,
		BalanceAfter:    balance,
		PerformedBy:     "test-user",
		CreatedAt:       m.CreatedAt.Add(time.Duration(seq) * time.Second),
	}
}

// GauzeScenario returns the ledger of the reference scenario, newest first:
// created with 50, restocked by 20, manually corrected to 65.
func (f *FixtureFactory) GauzeScenario(clinicID string) (MaterialFixture, []TransactionFixture) {
	m := f.Material(clinicID, WithMaterialName("Gauze"), WithQuantity(65))
	seed := f.Transaction(m, "Restock", 50, 50)
	restock := f.Transaction(m, "Restock", 20, 70)
	adjust := f.Transaction(m, "Adjustment", -5, 65)
	return m, []TransactionFixture{adjust, restock, seed}
}
