package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/core/apperror"
	appctx "crm/internal/core/context"
)

func withRole(role Role, perms ...string) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID:      "u-1",
		Role:        string(role),
		Permissions: perms,
	})
}

func TestDefaultPolicyRoleTable(t *testing.T) {
	p := NewDefaultPolicy()

	cases := []struct {
		role Role
		op   Operation
		want bool
	}{
		{RoleManager, OpCreateDeal, true},
		{RoleManager, OpApproveFinance, false},
		{RoleAccountant, OpApproveFinance, true},
		{RoleAccountant, OpRejectFinance, true},
		{RoleAccountant, OpApproveAdmin, false},
		{RoleAdmin, OpApproveAdmin, true},
		{RoleSuperAdmin, OpApproveAdmin, true},
		{RoleWarehouse, OpWarehouseResponse, true},
		{RoleWarehouse, OpSubmitShipment, false},
		{RoleWarehouseManager, OpSubmitShipment, true},
		{RoleWarehouseManager, OpHoldShipment, true},
		{RoleManager, OpHoldShipment, false},
		{RoleAccountant, OpCloseDay, true},
		{RoleWarehouse, OpViewDeal, true},
	}

	for _, tc := range cases {
		err := p.Authorize(withRole(tc.role), tc.op)
		if tc.want {
			assert.NoError(t, err, "%s %s", tc.role, tc.op)
		} else {
			assert.True(t, apperror.IsForbidden(err), "%s %s: %v", tc.role, tc.op, err)
		}
	}
}

func TestExplicitPermissionGrants(t *testing.T) {
	p := NewDefaultPolicy()

	assert.NoError(t, p.Authorize(withRole(RoleManager, string(OpApproveFinance)), OpApproveFinance))
}

func TestMissingCallerIsUnauthorized(t *testing.T) {
	err := NewDefaultPolicy().Authorize(context.Background(), OpCreateDeal)

	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))
}

func TestCELRulesExtendGrants(t *testing.T) {
	rules, err := ParseRules(`{"deal.approve_admin": "role == 'ACCOUNTANT' && 'finance.lead' in permissions"}`)
	require.NoError(t, err)
	p := NewPolicy(DefaultGrants(), rules)

	assert.NoError(t, p.Authorize(withRole(RoleAccountant, "finance.lead"), OpApproveAdmin))
	assert.Error(t, p.Authorize(withRole(RoleAccountant), OpApproveAdmin))
	assert.Error(t, p.Authorize(withRole(RoleManager, "finance.lead"), OpApproveAdmin))
}

func TestParseRulesRejectsBadExpression(t *testing.T) {
	_, err := ParseRules(`{"deal.create": "role =="}`)
	assert.Error(t, err)

	empty, err := ParseRules("")
	require.NoError(t, err)
	assert.False(t, empty.Allows(OpCreateDeal, &appctx.UserContext{Role: "MANAGER"}))
}

func TestNonBoolRuleDenies(t *testing.T) {
	rules, err := CompileRules(map[Operation]string{OpCreateDeal: "role"})
	require.NoError(t, err)

	assert.False(t, rules.Allows(OpCreateDeal, &appctx.UserContext{Role: "WAREHOUSE"}))
}
