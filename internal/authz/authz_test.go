package authz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storekeep/backend/internal/domain"
)

func TestAdminIsGrantedEveryOperation(t *testing.T) {
	assert.ElementsMatch(t, Operations(), PermissionsFor(domain.RoleAdmin))
	for _, op := range Operations() {
		assert.NoError(t, Authorize(domain.RoleAdmin, op), "admin should be allowed %s", op)
	}
}

func TestEveryRoleIsSubsetOfUniverse(t *testing.T) {
	universe := map[domain.Operation]bool{}
	for _, op := range Operations() {
		universe[op] = true
	}
	for _, role := range domain.Roles() {
		for _, op := range PermissionsFor(role) {
			assert.True(t, universe[op], "role %s has %s outside universe", role, op)
		}
	}
}

func TestRolePermissionSets(t *testing.T) {
	cases := map[domain.Role][]domain.Operation{
		domain.RoleCashier: {
			domain.OpCreateSale, domain.OpCreatePayment, domain.OpCreateReturn,
			domain.OpListSales, domain.OpListPayment, domain.OpListReturn,
		},
		domain.RoleSupport: {domain.OpCreateReturn, domain.OpListReturn},
		domain.RoleViewer: {
			domain.OpListProduct, domain.OpListSupplier, domain.OpListCategory,
			domain.OpListPurchase, domain.OpViewInventory,
		},
		domain.RoleStockist: {
			domain.OpCreatePurchase, domain.OpListPurchase, domain.OpListProduct,
			domain.OpListSupplier, domain.OpListCategory, domain.OpViewInventory,
		},
	}
	for role, want := range cases {
		assert.ElementsMatch(t, want, PermissionsFor(role), "role %s", role)
	}
}

func TestManagerCannotManageUsers(t *testing.T) {
	err := Authorize(domain.RoleManager, domain.OpCreateUser)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDenied))

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, domain.RoleManager, denied.Role)
	assert.Equal(t, domain.OpCreateUser, denied.Operation)

	assert.NoError(t, Authorize(domain.RoleManager, domain.OpGenerateReport))
}

func TestUnknownRoleHasNoPermissions(t *testing.T) {
	ghost := domain.Role("ghost")
	assert.Empty(t, PermissionsFor(ghost))
	for _, op := range Operations() {
		assert.ErrorIs(t, Authorize(ghost, op), ErrDenied)
	}
}

func TestPermissionsForReturnsCopy(t *testing.T) {
	ops := PermissionsFor(domain.RoleSupport)
	require.NotEmpty(t, ops)
	ops[0] = domain.OpDeleteUser

	assert.False(t, Can(domain.RoleSupport, domain.OpDeleteUser))
	assert.Equal(t, domain.OpCreateReturn, PermissionsFor(domain.RoleSupport)[0])

	universe := Operations()
	universe[0] = "tampered"
	assert.Equal(t, domain.OpCreateSale, Operations()[0])
}

func TestHasAnyRole(t *testing.T) {
	assert.True(t, HasAnyRole(domain.RoleCashier, domain.RoleAdmin, domain.RoleCashier))
	assert.False(t, HasAnyRole(domain.RoleViewer, domain.RoleAdmin, domain.RoleCashier))
	assert.False(t, HasAnyRole(domain.RoleAdmin))
}

func TestCheckRequiresBothLayers(t *testing.T) {
	// Role list admits the manager, registry does not grant createPurchase.
	err := Check(domain.RoleManager, domain.OpCreatePurchase, domain.RoleAdmin, domain.RoleManager, domain.RoleStockist)
	assert.ErrorIs(t, err, ErrDenied)

	// Registry grants createReturn to support, route list excludes it.
	err = Check(domain.RoleSupport, domain.OpCreateReturn, domain.RoleAdmin, domain.RoleCashier)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient role")

	assert.NoError(t, Check(domain.RoleStockist, domain.OpCreatePurchase, domain.RoleAdmin, domain.RoleStockist))
}
