package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dentflow/dentflow-backend/internal/inventory/repository"
	"github.com/dentflow/dentflow-backend/pkg/errors"
)

// MaxQuantity is the largest stock count the INTEGER columns can hold.
const MaxQuantity = math.MaxInt32

func checkQuantity(field string, v int) error {
	if v < 0 {
		return errors.InvalidArgument(field, "must not be negative")
	}
	if v > MaxQuantity {
		return errors.InvalidArgument(field, fmt.Sprintf("must not exceed %d", MaxQuantity))
	}
	return nil
}

// CreateMaterialRequest is the payload of a new catalog entry
type CreateMaterialRequest struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Description  *string         `json:"description" validate:"omitempty,max=2000"`
	Quantity     int             `json:"quantity" validate:"gte=0"`
	Unit         string          `json:"unit" validate:"required,max=50"`
	Price        decimal.Decimal `json:"price" validate:"gte=0"`
	MinimumStock *int            `json:"minimum_stock" validate:"omitempty,gte=0"`
	Supplier     *string         `json:"supplier" validate:"omitempty,max=200"`
}

func (r CreateMaterialRequest) toMaterial() (*repository.Material, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, errors.InvalidArgument("name", "must not be blank")
	}
	unit := strings.TrimSpace(r.Unit)
	if unit == "" {
		return nil, errors.InvalidArgument("unit", "must not be blank")
	}
	if err := checkQuantity("quantity", r.Quantity); err != nil {
		return nil, err
	}
	if r.Price.IsNegative() {
		return nil, errors.InvalidArgument("price", "must not be negative")
	}

	minimum := repository.DefaultMinimumStock
	if r.MinimumStock != nil {
		if err := checkQuantity("minimum_stock", *r.MinimumStock); err != nil {
			return nil, err
		}
		minimum = *r.MinimumStock
	}

	return &repository.Material{
		Name:         name,
		Description:  emptyToNil(trimmed(r.Description)),
		Quantity:     r.Quantity,
		Unit:         unit,
		Price:        r.Price,
		MinimumStock: minimum,
		Supplier:     emptyToNil(trimmed(r.Supplier)),
	}, nil
}

// UpdateMaterialRequest is a partial update. Nil fields are left unchanged;
// an empty Description or Supplier clears it. ID, when sent, must match the
// material being updated.
type UpdateMaterialRequest struct {
	ID            *string          `json:"id"`
	Name          *string          `json:"name" validate:"omitempty,max=200"`
	Description   *string          `json:"description" validate:"omitempty,max=2000"`
	Quantity      *int             `json:"quantity"`
	Unit          *string          `json:"unit" validate:"omitempty,max=50"`
	Price         *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	MinimumStock  *int             `json:"minimum_stock" validate:"omitempty,gte=0"`
	Supplier      *string          `json:"supplier" validate:"omitempty,max=200"`
	LastRestocked *time.Time       `json:"last_restocked"`
}

func (r UpdateMaterialRequest) toUpdate(id string) (repository.MaterialUpdate, error) {
	if r.ID != nil && *r.ID != "" && *r.ID != id {
		return repository.MaterialUpdate{}, errors.InvalidArgument("id", "does not match the material being updated")
	}

	u := repository.MaterialUpdate{
		Name:          trimmed(r.Name),
		Description:   trimmed(r.Description),
		Quantity:      r.Quantity,
		Unit:          trimmed(r.Unit),
		Price:         r.Price,
		MinimumStock:  r.MinimumStock,
		Supplier:      trimmed(r.Supplier),
		LastRestocked: r.LastRestocked,
	}

	if u.Name != nil && *u.Name == "" {
		return u, errors.InvalidArgument("name", "must not be blank")
	}
	if u.Unit != nil && *u.Unit == "" {
		return u, errors.InvalidArgument("unit", "must not be blank")
	}
	if u.Price != nil && u.Price.IsNegative() {
		return u, errors.InvalidArgument("price", "must not be negative")
	}
	if u.MinimumStock != nil {
		if err := checkQuantity("minimum_stock", *u.MinimumStock); err != nil {
			return u, err
		}
	}
	if u.Quantity != nil && *u.Quantity > MaxQuantity {
		return u, errors.InvalidArgument("quantity", fmt.Sprintf("must not exceed %d", MaxQuantity))
	}
	return u, nil
}

// RestockRequest adds stock to a material
type RestockRequest struct {
	Quantity int              `json:"quantity"`
	UnitCost *decimal.Decimal `json:"unit_cost" validate:"omitempty,gte=0"`
	Supplier *string          `json:"supplier" validate:"omitempty,max=200"`
	Notes    *string          `json:"notes" validate:"omitempty,max=2000"`

	// IdempotencyKey, when set, makes a retried request fail with Conflict
	// instead of restocking twice.
	IdempotencyKey string `json:"-"`
}

// RestockResult is what a restock reports back
type RestockResult struct {
	Quantity      int        `json:"quantity"`
	LastRestocked *time.Time `json:"last_restocked"`
}

// UsageRequest takes stock out of a material
type UsageRequest struct {
	Quantity       int     `json:"quantity"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
	IdempotencyKey string  `json:"-"`
}

// UsageResult is what a usage record reports back
type UsageResult struct {
	Quantity int `json:"quantity"`
}

// Reconciliation compares a material's stored quantity with its ledger
type Reconciliation struct {
	MaterialID  string `json:"material_id"`
	Quantity    int    `json:"quantity"`
	LedgerSum   int64  `json:"ledger_sum"`
	LastBalance *int64 `json:"last_balance"`
	Entries     int64  `json:"entries"`
	// SequenceBreak is the chronological index of the first entry whose
	// balance_after does not follow from its predecessors, or -1.
	SequenceBreak int  `json:"sequence_break"`
	Consistent    bool `json:"consistent"`
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
