// Package tenant carries the identity of the clinic an operation runs for.
//
// HTTP middleware resolves the clinic once per request and stores it in the
// request context. Handlers turn it into an explicit Scope value which is
// passed as a parameter to every catalog, ledger and service method.
package tenant

import (
	"context"
	"errors"
	"strings"
)

// ErrNoTenantInContext is returned when the clinic is missing from the request context
var ErrNoTenantInContext = errors.New("no tenant in context")

// ErrInvalidScope is returned when a Scope has no clinic
var ErrInvalidScope = errors.New("tenant scope has no clinic")

// Scope identifies the tenant and the person performing an operation.
type Scope struct {
	ClinicID    string
	PerformedBy string
}

// NewScope builds a Scope, trimming whitespace from both fields.
func NewScope(clinicID, performedBy string) Scope {
	return Scope{
		ClinicID:    strings.TrimSpace(clinicID),
		PerformedBy: strings.TrimSpace(performedBy),
	}
}

// Validate reports ErrInvalidScope when the clinic id is empty.
func (s Scope) Validate() error {
	if s.ClinicID == "" {
		return ErrInvalidScope
	}
	return nil
}

// Actor returns PerformedBy, or "system" if it is empty.
func (s Scope) Actor() string {
	if s.PerformedBy == "" {
		return "system"
	}
	return s.PerformedBy
}

type contextKey struct{}

// WithClinicID stores the clinic id in the context. Only middleware should call this.
func WithClinicID(ctx context.Context, clinicID string) context.Context {
	return context.WithValue(ctx, contextKey{}, clinicID)
}

// ClinicID extracts the clinic id stored by WithClinicID.
func ClinicID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(contextKey{}).(string)
	if !ok || id == "" {
		return "", ErrNoTenantInContext
	}
	return id, nil
}
