package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"

	"github.com/dentflow/dentflow-backend/pkg/errors"
)

// Constraint names referenced by error mapping. They must match the migrations.
const (
	ConstraintMaterialName = "uq_materials_clinic_name"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if err carries no pq.Error or the code is not mapped.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// unique_violation
	case "23505":
		if pqErr.Constraint == ConstraintMaterialName {
			return errors.DuplicateName("material", keyValue(pqErr.Detail))
		}
		return errors.Conflict("a record with these values already exists")

	// foreign_key_violation
	case "23503":
		return errors.Conflict("referenced record does not exist or is still in use")

	// serialization_failure, deadlock_detected
	case "40001", "40P01":
		return errors.Conflict("concurrent update detected, please retry")

	// check_violation
	case "23514":
		return mapCheckConstraint(pqErr)

	// not_null_violation
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// numeric_value_out_of_range
	case "22003":
		col := pqErr.Column
		if col == "" {
			col = "value"
		}
		return errors.Validation(map[string]string{
			col: "out of range",
		})

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "price"):
		return errors.Validation(map[string]string{"price": "must not be negative"})
	case strings.Contains(constraint, "minimum_stock"):
		return errors.Validation(map[string]string{"minimum_stock": "must not be negative"})
	case strings.Contains(constraint, "transaction_type"):
		return errors.Validation(map[string]string{"transaction_type": "must be one of: Restock, Usage, Adjustment"})
	case strings.Contains(constraint, "name"):
		return errors.Validation(map[string]string{"name": "must not be blank"})
	default:
		return errors.Validation(map[string]string{"record": "violates " + constraint})
	}
}

// keyValue extracts the last value from a unique violation detail such as
// `Key (clinic_id, name)=(8f1c..., Gauze) already exists.`
func keyValue(detail string) string {
	start := strings.Index(detail, ")=(")
	end := strings.LastIndex(detail, ") already exists")
	if start < 0 || end <= start {
		return ""
	}
	values := strings.SplitN(detail[start+3:end], ", ", 2)
	return values[len(values)-1]
}
