package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentflow/dentflow-backend/pkg/database"
	"github.com/dentflow/dentflow-backend/pkg/errors"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
)

// DefaultMinimumStock is the reorder threshold of a material created without one.
const DefaultMinimumStock = 10

// Material is a stock-tracked consumable owned by one clinic
type Material struct {
	ID            string          `db:"id" json:"id"`
	ClinicID      string          `db:"clinic_id" json:"clinic_id"`
	Name          string          `db:"name" json:"name"`
	Description   *string         `db:"description" json:"description,omitempty"`
	Quantity      int             `db:"quantity" json:"quantity"`
	Unit          string          `db:"unit" json:"unit"`
	Price         decimal.Decimal `db:"price" json:"price"`
	MinimumStock  int             `db:"minimum_stock" json:"minimum_stock"`
	Supplier      *string         `db:"supplier" json:"supplier,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
	LastRestocked *time.Time      `db:"last_restocked" json:"last_restocked,omitempty"`
	DeletedAt     *time.Time      `db:"deleted_at" json:"-"`
}

// IsLowStock reports whether the material is at or below its reorder threshold
func (m *Material) IsLowStock() bool {
	return m.Quantity <= m.MinimumStock
}

// MaterialUpdate lists every mutable field. Nil leaves a field unchanged; an
// empty string clears Description or Supplier.
type MaterialUpdate struct {
	Name          *string
	Description   *string
	Quantity      *int
	Unit          *string
	Price         *decimal.Decimal
	MinimumStock  *int
	Supplier      *string
	LastRestocked *time.Time
}

// Apply copies the set fields of u onto m
func (u MaterialUpdate) Apply(m *Material) {
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Description != nil {
		m.Description = nullable(*u.Description)
	}
	if u.Quantity != nil {
		m.Quantity = *u.Quantity
	}
	if u.Unit != nil {
		m.Unit = *u.Unit
	}
	if u.Price != nil {
		m.Price = *u.Price
	}
	if u.MinimumStock != nil {
		m.MinimumStock = *u.MinimumStock
	}
	if u.Supplier != nil {
		m.Supplier = nullable(*u.Supplier)
	}
	if u.LastRestocked != nil {
		m.LastRestocked = u.LastRestocked
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MaterialStats holds the dashboard counters of one clinic
type MaterialStats struct {
	TotalMaterials  int64           `db:"total_materials" json:"total_materials"`
	TotalUnits      int64           `db:"total_units" json:"total_units"`
	LowStockCount   int64           `db:"low_stock_count" json:"low_stock_count"`
	OutOfStockCount int64           `db:"out_of_stock_count" json:"out_of_stock_count"`
	StockValue      decimal.Decimal `db:"stock_value" json:"stock_value"`
}

const materialColumns = `id, clinic_id, name, description, quantity, unit, price, minimum_stock,
	supplier, created_at, updated_at, last_restocked, deleted_at`

// MaterialRepository is the material catalog. Every query filters on the
// scope's clinic and ignores soft-deleted rows.
type MaterialRepository struct {
	db *database.DB
}

// NewMaterialRepository creates a new material repository
func NewMaterialRepository(db *database.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Create inserts a material. It fails with DuplicateName if a live material
// with the same name exists in the clinic. No ledger entry is written.
func (r *MaterialRepository) Create(ctx context.Context, scope tenant.Scope, m *Material) error {
	if err := checkScope(scope, "material"); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.ClinicID = scope.ClinicID

	return r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		if err := r.ensureNameFree(ctx, scope.ClinicID, m.Name, ""); err != nil {
			return err
		}

		query := `
			INSERT INTO materials (
				id, clinic_id, name, description, quantity, unit, price, minimum_stock,
				supplier, last_restocked
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at
		`
		err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
			m.ID, m.ClinicID, m.Name, m.Description, m.Quantity, m.Unit, m.Price, m.MinimumStock,
			m.Supplier, m.LastRestocked,
		).Scan(&m.CreatedAt)
		if err != nil {
			return r.mapNameError(err, m.Name, "failed to create material")
		}
		return nil
	})
}

// Get returns a live material of the clinic. Missing, deleted and foreign
// materials all yield NotFound.
func (r *MaterialRepository) Get(ctx context.Context, scope tenant.Scope, id string) (*Material, error) {
	return r.get(ctx, scope, id, false)
}

// GetForUpdate is Get with a row lock held until the surrounding WithClinic
// transaction ends. Concurrent writers to the same material queue on it.
func (r *MaterialRepository) GetForUpdate(ctx context.Context, scope tenant.Scope, id string) (*Material, error) {
	return r.get(ctx, scope, id, true)
}

func (r *MaterialRepository) get(ctx context.Context, scope tenant.Scope, id string, lock bool) (*Material, error) {
	if err := checkScope(scope, "material", id); err != nil {
		return nil, err
	}

	query := `SELECT ` + materialColumns + `
		FROM materials
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL`
	if lock {
		query += ` FOR UPDATE`
	}

	var m Material
	err := r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		return r.db.Conn(ctx).GetContext(ctx, &m, query, id, scope.ClinicID)
	})
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("material")
	}
	if err != nil {
		return nil, mapError(err, "failed to get material")
	}
	return &m, nil
}

// List returns the clinic's materials ordered by name
func (r *MaterialRepository) List(ctx context.Context, scope tenant.Scope) ([]*Material, error) {
	return r.list(ctx, scope, `
		SELECT `+materialColumns+`
		FROM materials
		WHERE clinic_id = $1 AND deleted_at IS NULL
		ORDER BY name ASC
	`)
}

// ListLowStock returns materials with quantity <= minimum_stock, most depleted first
func (r *MaterialRepository) ListLowStock(ctx context.Context, scope tenant.Scope) ([]*Material, error) {
	return r.list(ctx, scope, `
		SELECT `+materialColumns+`
		FROM materials
		WHERE clinic_id = $1 AND deleted_at IS NULL AND quantity <= minimum_stock
		ORDER BY quantity ASC, name ASC
	`)
}

func (r *MaterialRepository) list(ctx context.Context, scope tenant.Scope, query string) ([]*Material, error) {
	if err := checkScope(scope, "material"); err != nil {
		return nil, err
	}

	materials := make([]*Material, 0)
	err := r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		return r.db.Conn(ctx).SelectContext(ctx, &materials, query, scope.ClinicID)
	})
	if err != nil {
		return nil, mapError(err, "failed to list materials")
	}
	return materials, nil
}

// Update locks the material, applies every set field of u and returns the
// updated row together with the quantity it had before.
func (r *MaterialRepository) Update(ctx context.Context, scope tenant.Scope, id string, u MaterialUpdate) (*Material, int, error) {
	if err := checkScope(scope, "material", id); err != nil {
		return nil, 0, err
	}

	var (
		updated  *Material
		previous int
	)

	err := r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		current, err := r.GetForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}
		previous = current.Quantity

		if u.Name != nil && *u.Name != current.Name {
			if err := r.ensureNameFree(ctx, scope.ClinicID, *u.Name, id); err != nil {
				return err
			}
		}

		u.Apply(current)

		query := `
			UPDATE materials SET
				name = $3, description = $4, quantity = $5, unit = $6, price = $7,
				minimum_stock = $8, supplier = $9, last_restocked = $10, updated_at = now()
			WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL
			RETURNING ` + materialColumns

		var m Material
		err = r.db.Conn(ctx).GetContext(ctx, &m, query,
			id, scope.ClinicID, current.Name, current.Description, current.Quantity, current.Unit,
			current.Price, current.MinimumStock, current.Supplier, current.LastRestocked,
		)
		if err != nil {
			return r.mapNameError(err, current.Name, "failed to update material")
		}
		updated = &m
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return updated, previous, nil
}

// SetQuantity overwrites the quantity and, when lastRestocked is set, the
// restock time. The caller is expected to hold the row lock.
func (r *MaterialRepository) SetQuantity(ctx context.Context, scope tenant.Scope, id string, quantity int, lastRestocked *time.Time) (*Material, error) {
	if err := checkScope(scope, "material", id); err != nil {
		return nil, err
	}

	query := `
		UPDATE materials SET
			quantity = $3,
			last_restocked = COALESCE($4, last_restocked),
			updated_at = now()
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL
		RETURNING ` + materialColumns

	var m Material
	err := r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		return r.db.Conn(ctx).GetContext(ctx, &m, query, id, scope.ClinicID, quantity, lastRestocked)
	})
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("material")
	}
	if err != nil {
		return nil, mapError(err, "failed to set material quantity")
	}
	return &m, nil
}

// Delete soft-deletes a material. Its ledger entries are kept and the name
// becomes available again.
func (r *MaterialRepository) Delete(ctx context.Context, scope tenant.Scope, id string) error {
	if err := checkScope(scope, "material", id); err != nil {
		return err
	}

	return r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		result, err := r.db.Conn(ctx).ExecContext(ctx, `
			UPDATE materials SET deleted_at = now()
			WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL
		`, id, scope.ClinicID)
		if err != nil {
			return mapError(err, "failed to delete material")
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return errors.NotFound("material")
		}
		return nil
	})
}

// Stats returns the clinic's dashboard counters
func (r *MaterialRepository) Stats(ctx context.Context, scope tenant.Scope) (*MaterialStats, error) {
	if err := checkScope(scope, "material"); err != nil {
		return nil, err
	}

	var stats MaterialStats
	err := r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		query := `
			SELECT
				COUNT(*) AS total_materials,
				COALESCE(SUM(quantity), 0) AS total_units,
				COUNT(*) FILTER (WHERE quantity <= minimum_stock) AS low_stock_count,
				COUNT(*) FILTER (WHERE quantity <= 0) AS out_of_stock_count,
				COALESCE(SUM(quantity * price), 0) AS stock_value
			FROM materials
			WHERE clinic_id = $1 AND deleted_at IS NULL
		`
		return r.db.Conn(ctx).GetContext(ctx, &stats, query, scope.ClinicID)
	})
	if err != nil {
		return nil, mapError(err, "failed to get material stats")
	}
	return &stats, nil
}

func (r *MaterialRepository) ensureNameFree(ctx context.Context, clinicID, name, excludeID string) error {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM materials
			WHERE clinic_id = $1 AND name = $2 AND deleted_at IS NULL AND id::text <> $3
		)
	`
	var exists bool
	if err := r.db.Conn(ctx).GetContext(ctx, &exists, query, clinicID, name, excludeID); err != nil {
		return mapError(err, "failed to check material name")
	}
	if exists {
		return errors.DuplicateName("material", name)
	}
	return nil
}

// mapNameError reports a unique index violation with the name that was written.
func (r *MaterialRepository) mapNameError(err error, name, op string) error {
	mapped := mapError(err, op)
	if errors.Is(mapped, errors.ErrDuplicateName) {
		return errors.DuplicateName("material", name)
	}
	return mapped
}
