package models

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetPay(t *testing.T) {
	got := NetPay(decimal.NewFromInt(2000), decimal.RequireFromString("350.50"), decimal.NewFromInt(120))
	assert.Equal(t, "2230.50", got.StringFixed(2))
}

func TestNewPayroll_Validate(t *testing.T) {
	valid := NewPayroll{StaffName: "Ama Mensah", Period: "2024-03", BasicSalary: decimal.NewFromInt(1500)}
	require.NoError(t, valid.validate())

	cases := map[string]NewPayroll{
		"period":       {StaffName: "Ama", Period: "2024-13", BasicSalary: decimal.NewFromInt(1)},
		"basic_salary": {StaffName: "Ama", Period: "2024-01", BasicSalary: decimal.Zero},
		"deductions":   {StaffName: "Ama", Period: "2024-01", BasicSalary: decimal.NewFromInt(100), Deductions: decimal.NewFromInt(101)},
	}
	for field, input := range cases {
		err := input.validate()
		var ve *utils.ValidationError
		require.ErrorAs(t, err, &ve, field)
		assert.Contains(t, ve.Fields, field)
	}
}

func TestEnumUnmarshal(t *testing.T) {
	var input struct {
		Status LoanStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"approved"}`), &input))
	assert.Equal(t, LoanStatusApproved, input.Status)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"archived"}`), &input))
	assert.Error(t, json.Unmarshal([]byte(`{"status":3}`), &input))

	var branch BranchStatus
	require.NoError(t, json.Unmarshal([]byte(`" Inactive "`), &branch))
	assert.Equal(t, BranchStatusInactive, branch)
}

func TestRolePermissions(t *testing.T) {
	role := Role{Permissions: joinPermissions([]string{"Loans:Approve", "clients:read", "loans:approve "})}
	assert.Equal(t, "clients:read,loans:approve", role.Permissions)
	assert.True(t, role.HasPermission("LOANS:APPROVE"))
	assert.False(t, role.HasPermission("payroll:pay"))
	assert.Empty(t, Role{}.PermissionList())
}

func TestListParams_Normalized(t *testing.T) {
	p := ListParams{PageSize: 5000, Status: " active ", Search: "  ama "}.normalized()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, maxPageSize, p.PageSize)
	assert.Equal(t, "ACTIVE", p.Status)
	assert.Equal(t, "ama", p.Search)
	assert.Equal(t, defaultPageSize, ListParams{}.normalized().PageSize)
}

func TestResolveBranchId(t *testing.T) {
	staff := utils.SetBranchIdInContext(context.Background(), 4)
	id, err := resolveBranchId(staff, 9)
	require.NoError(t, err)
	assert.Equal(t, 4, id, "branch staff always write into their own branch")

	admin := utils.SetIsAdminInContext(staff, true)
	id, err = resolveBranchId(admin, 9)
	require.NoError(t, err)
	assert.Equal(t, 9, id)

	_, err = resolveBranchId(context.Background(), 0)
	assert.True(t, utils.IsValidationError(err))
}

func TestNewClient_NormalizesPhone(t *testing.T) {
	input := NewClient{FirstName: "Kofi", LastName: "Boateng", Phone: "024 123 4567"}
	require.NoError(t, input.validate())
	assert.Equal(t, "+233241234567", input.Phone)
	assert.Equal(t, ClientStatusPending, input.Status)

	bad := NewClient{FirstName: "Kofi", LastName: "Boateng", Email: "not-an-email"}
	assert.True(t, utils.IsValidationError(bad.validate()))
}
