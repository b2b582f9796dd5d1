package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dentflow/dentflow-backend/migrations"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
)

// TestClinic represents a clinic created for testing
type TestClinic struct {
	ID   string
	Name string
}

// Scope returns a tenant scope for the clinic acting as performedBy
func (c *TestClinic) Scope(performedBy string) tenant.Scope {
	return tenant.NewScope(c.ID, performedBy)
}

// ClinicManager creates test clinics. Every test gets its own clinic, so
// tests sharing the database never see each other's rows.
type ClinicManager struct {
	db      *sqlx.DB
	clinics []TestClinic
	mu      sync.Mutex
}

// NewClinicManager creates a new clinic manager for tests
func NewClinicManager(db *sqlx.DB) *ClinicManager {
	return &ClinicManager{
		db:      db,
		clinics: make([]TestClinic, 0),
	}
}

// CreateClinic inserts a clinic row directly, bypassing the repositories.
//
// Usage:
//
//	cm := testutil.NewClinicManager(db)
//	clinic, err := cm.CreateClinic(ctx, "Smile Dental")
//	scope := clinic.Scope("dr.jones")
//	material, err := materialRepo.Get(ctx, scope, id)
func (cm *ClinicManager) CreateClinic(ctx context.Context, name string) (*TestClinic, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c := TestClinic{ID: uuid.New().String(), Name: name}

	// The test role is a superuser and bypasses row-level security.
	_, err := cm.db.ExecContext(ctx, `INSERT INTO clinics (id, name) VALUES ($1, $2)`, c.ID, c.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create test clinic: %w", err)
	}

	cm.clinics = append(cm.clinics, c)
	return &c, nil
}

// Clinics returns the clinics created so far
func (cm *ClinicManager) Clinics() []TestClinic {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return append([]TestClinic(nil), cm.clinics...)
}

// Cleanup empties all inventory tables. TRUNCATE does not fire the ledger's
// row-level append-only trigger.
func (cm *ClinicManager) Cleanup(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	_, err := cm.db.ExecContext(ctx, `TRUNCATE material_transactions, materials, clinics`)
	if err != nil {
		return fmt.Errorf("failed to truncate inventory tables: %w", err)
	}

	cm.clinics = make([]TestClinic, 0)
	return nil
}

// TestScope returns a scope with a random clinic for unit tests that don't
// touch a database.
func TestScope() tenant.Scope {
	return tenant.NewScope(uuid.New().String(), "test-user")
}

// InventoryMigrations returns the inventory schema scripts embedded in the
// migrations package.
func InventoryMigrations() []string {
	scripts, err := migrations.Inventory()
	if err != nil {
		panic(fmt.Sprintf("testutil: cannot load inventory migrations: %v", err))
	}
	return scripts
}
