package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dentflow/dentflow-backend/pkg/database"
	"github.com/dentflow/dentflow-backend/pkg/errors"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
)

// Clinic is the tenant root. Materials and ledger entries reference it with
// ON DELETE RESTRICT.
type Clinic struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   *string   `db:"address" json:"address,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClinicRepository handles clinic persistence
type ClinicRepository struct {
	db *database.DB
}

// NewClinicRepository creates a new clinic repository
func NewClinicRepository(db *database.DB) *ClinicRepository {
	return &ClinicRepository{db: db}
}

// Create registers a clinic. Administrative only: clinic CRUD lives in
// another service, this is used to provision tenants.
func (r *ClinicRepository) Create(ctx context.Context, clinic *Clinic) error {
	if strings.TrimSpace(clinic.Name) == "" {
		return errors.InvalidArgument("name", "must not be blank")
	}
	if clinic.ID == "" {
		clinic.ID = uuid.New().String()
	}

	return r.db.WithClinic(ctx, clinic.ID, func(ctx context.Context) error {
		query := `
			INSERT INTO clinics (id, name, address, phone)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`
		err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
			clinic.ID, clinic.Name, clinic.Address, clinic.Phone,
		).Scan(&clinic.CreatedAt)
		if err != nil {
			return mapError(err, "failed to create clinic")
		}
		return nil
	})
}

// Get returns the scope's clinic
func (r *ClinicRepository) Get(ctx context.Context, scope tenant.Scope) (*Clinic, error) {
	if err := checkScope(scope, "clinic"); err != nil {
		return nil, err
	}

	var clinic Clinic
	err := r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		query := `SELECT id, name, address, phone, created_at FROM clinics WHERE id = $1`
		return r.db.Conn(ctx).GetContext(ctx, &clinic, query, scope.ClinicID)
	})
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("clinic")
	}
	if err != nil {
		return nil, mapError(err, "failed to get clinic")
	}
	return &clinic, nil
}

// Delete removes the scope's clinic. It fails with Conflict while the clinic
// still owns materials or ledger entries, soft-deleted ones included.
func (r *ClinicRepository) Delete(ctx context.Context, scope tenant.Scope) error {
	if err := checkScope(scope, "clinic"); err != nil {
		return err
	}

	return r.db.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		result, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM clinics WHERE id = $1`, scope.ClinicID)
		if err != nil {
			return mapError(err, "failed to delete clinic")
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return errors.NotFound("clinic")
		}
		return nil
	})
}

// ListIDs returns every clinic id, oldest first. It reads through the
// clinic_directory policy and is meant for background sweeps only.
func (r *ClinicRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('app.clinic_directory', 'on', true)`); err != nil {
			return err
		}
		return tx.SelectContext(ctx, &ids, `SELECT id FROM clinics ORDER BY created_at, id`)
	})
	if err != nil {
		return nil, mapError(err, "failed to list clinics")
	}
	return ids, nil
}
