// Package actor identifies the user or system performing an action.
//
// The inventory ledger records the actor's display name in performed_by.
package actor

import (
	"context"
	"fmt"
)

const systemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the user id (JWT sub)
	ID string `json:"id"`

	// Name is the display name written to audit columns
	Name string `json:"name"`

	Email    string `json:"email"`
	ClinicID string `json:"clinic_id"`
	Role     string `json:"role,omitempty"`
}

// DisplayName returns the name recorded in ledger entries, falling back to
// the email and then the id.
func (a *Actor) DisplayName() string {
	switch {
	case a == nil:
		return "System"
	case a.Name != "":
		return a.Name
	case a.Email != "":
		return a.Email
	default:
		return a.ID
	}
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.DisplayName(), a.ID)
}

type contextKey struct{}

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(contextKey{}).(*Actor)
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// SystemActor returns an Actor representing the system itself.
func SystemActor() *Actor {
	return &Actor{ID: systemID, Name: "System"}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	return a == nil || a.ID == systemID
}
