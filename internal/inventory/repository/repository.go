package repository

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dentflow/dentflow-backend/pkg/database"
	"github.com/dentflow/dentflow-backend/pkg/errors"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
)

// mapError turns PostgreSQL errors into AppErrors and wraps everything else.
func mapError(err error, op string) error {
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return fmt.Errorf("%s: %w", op, err)
}

// checkScope rejects a scope whose clinic is missing or not a UUID, and ids
// that are not UUIDs. Malformed ids are reported as NotFound so they are
// indistinguishable from ids of another clinic.
func checkScope(scope tenant.Scope, resource string, ids ...string) error {
	if err := scope.Validate(); err != nil {
		return errors.Forbidden(err.Error())
	}
	if _, err := uuid.Parse(scope.ClinicID); err != nil {
		return errors.Forbidden("invalid clinic")
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return errors.NotFound(resource)
		}
	}
	return nil
}
