package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shaleyeah/agentkernel/types"
)

func identity(role types.Role) *types.UserIdentity {
	return &types.UserIdentity{UserID: "u1", Role: role, Permissions: PermissionsForRole(role)}
}

func TestAnalystCanReadButNotDecide(t *testing.T) {
	t.Parallel()
	id := identity(types.RoleAnalyst)

	read := Check("geowiz.analyze", "geowiz", id, true)
	assert.True(t, read.Allowed)

	decide := Check("decision.analyze", "decision", id, true)
	assert.False(t, decide.Allowed)
	assert.Equal(t, types.RoleExecutive, decide.RequiredRole)
}

func TestExecutiveCanDecideButNotAdminister(t *testing.T) {
	t.Parallel()
	id := identity(types.RoleExecutive)

	decide := Check("decision.analyze", "decision", id, true)
	assert.True(t, decide.Allowed)
	assert.False(t, id.HasPermission(PermAdminServers))
}

func TestEngineerCanWriteReports(t *testing.T) {
	t.Parallel()
	id := identity(types.RoleEngineer)
	decision := Check("reporter.analyze", "reporter", id, true)
	assert.True(t, decision.Allowed)
}

func TestRequireAuthFalseAllowsDeniedCheckWithReason(t *testing.T) {
	t.Parallel()
	id := identity(types.RoleAnalyst)
	decision := Check("decision.analyze", "decision", id, false)
	assert.True(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "not enforced")
}

func TestNilIdentityDeniedWhenAuthRequired(t *testing.T) {
	t.Parallel()
	decision := Check("geowiz.analyze", "geowiz", nil, true)
	assert.False(t, decision.Allowed)
}
