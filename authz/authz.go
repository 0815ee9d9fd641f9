// Package authz checks whether a user identity may invoke a given tool,
// using a static tool-to-permission mapping and role-to-permission-set
// mapping. It is grounded on the teacher's policy engine, replacing the
// allow/block tag lists with the kernel's role hierarchy.
package authz

import (
	"github.com/shaleyeah/agentkernel/types"
)

// Permission names, fixed per spec.md's policy table.
const (
	PermReadAnalysis     = "read:analysis"
	PermWriteReports     = "write:reports"
	PermExecuteDecisions = "execute:decisions"
	PermAdminServers     = "admin:servers"
	PermAdminUsers       = "admin:users"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed             bool
	Reason              string
	RequiredRole        types.Role
	RequiredPermissions []string
}

// toolPermission maps a server name to the permission its command tools
// require. Query tools always default to PermReadAnalysis.
var toolPermission = map[string]string{
	"reporter": PermWriteReports,
	"decision": PermExecuteDecisions,
}

// rolePermissions maps each role to the permissions it holds. Each role
// lists everything it grants; higher roles are supersets by construction,
// not by inheritance.
var rolePermissions = map[types.Role]map[string]struct{}{
	types.RoleAnalyst: {
		PermReadAnalysis: {},
	},
	types.RoleEngineer: {
		PermReadAnalysis: {},
		PermWriteReports: {},
	},
	types.RoleExecutive: {
		PermReadAnalysis:     {},
		PermWriteReports:     {},
		PermExecuteDecisions: {},
	},
	types.RoleAdmin: {
		PermReadAnalysis:     {},
		PermWriteReports:     {},
		PermExecuteDecisions: {},
		PermAdminServers:     {},
		PermAdminUsers:       {},
	},
}

var roleOrder = []types.Role{types.RoleAnalyst, types.RoleEngineer, types.RoleExecutive, types.RoleAdmin}

// requiredPermission returns the permission a tool requires: the server's
// command permission if one is mapped, else the universal read permission.
func requiredPermission(server string) string {
	if perm, ok := toolPermission[server]; ok {
		return perm
	}
	return PermReadAnalysis
}

// minimumRoleFor returns the lowest role (in spec order) granted a
// permission, used for error reporting when a check is denied.
func minimumRoleFor(perm string) types.Role {
	for _, role := range roleOrder {
		if _, ok := rolePermissions[role][perm]; ok {
			return role
		}
	}
	return types.RoleAdmin
}

// Check evaluates whether identity's permission set is a superset of
// toolName's required permissions. When requireAuth is false, the check
// still runs and returns a structured Decision for auditing, but reports
// Allowed=true so the caller does not enforce denial in that mode.
func Check(toolName, server string, identity *types.UserIdentity, requireAuth bool) Decision {
	perm := requiredPermission(server)

	if identity == nil || !identity.HasPermission(perm) {
		reason := "missing required permission: " + perm
		if identity == nil {
			reason = "no identity supplied"
		}
		if !requireAuth {
			return Decision{Allowed: true, Reason: reason + " (not enforced)"}
		}
		return Decision{
			Allowed:             false,
			Reason:              reason,
			RequiredRole:        minimumRoleFor(perm),
			RequiredPermissions: []string{perm},
		}
	}

	return Decision{Allowed: true}
}

// PermissionsForRole returns the permission set for a role, used when
// constructing a UserIdentity from a bare role at session creation.
func PermissionsForRole(role types.Role) map[string]struct{} {
	src, ok := rolePermissions[role]
	if !ok {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(src))
	for k := range src {
		out[k] = struct{}{}
	}
	return out
}
