// Package permissions maps clinic roles to permissions and checks them with
// wildcard support.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "inventory.*")
//   - "resource.action" - Specific action (e.g., "inventory.read")
package permissions

import (
	"strings"
)

// Clinic roles carried in the access token.
const (
	RoleManager      = "Manager"
	RoleDoctor       = "Doctor"
	RoleReceptionist = "Receptionist"
)

// Inventory permissions
const (
	InventoryRead   = "inventory.read"
	InventoryWrite  = "inventory.write"
	InventoryUsage  = "inventory.usage"
	InventoryDelete = "inventory.delete"
)

var rolePermissions = map[string][]string{
	RoleManager:      {"inventory.*"},
	RoleDoctor:       {InventoryRead, InventoryUsage},
	RoleReceptionist: {InventoryRead},
}

// ForRole returns the permissions granted to a role. Role names are matched
// case-insensitively; unknown roles get none.
func ForRole(role string) []string {
	for name, perms := range rolePermissions {
		if strings.EqualFold(name, role) {
			return perms
		}
	}
	return nil
}

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "inventory.*" matches "inventory.read", "inventory.write", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, ".*"); ok && strings.HasPrefix(required, prefix+".") {
			return true
		}
	}
	return false
}

// RoleHasPermission is HasPermission applied to a role's permissions.
func RoleHasPermission(role, required string) bool {
	return HasPermission(ForRole(role), required)
}
