// Package authz maps roles to the operations they may perform and decides
// whether a caller is allowed to run a given operation.
package authz

import "storekeep/backend/internal/domain"

// operations is the closed universe. Admin is granted all of it.
var operations = []domain.Operation{
	domain.OpCreateSale,
	domain.OpCreateReturn,
	domain.OpCreatePayment,
	domain.OpListSales,
	domain.OpListPayment,
	domain.OpListReturn,
	domain.OpCreateProduct,
	domain.OpEditProduct,
	domain.OpDeleteProduct,
	domain.OpListProduct,
	domain.OpCreateCategory,
	domain.OpEditCategory,
	domain.OpDeleteCategory,
	domain.OpListCategory,
	domain.OpCreatePurchase,
	domain.OpListPurchase,
	domain.OpCreateSupplier,
	domain.OpEditSupplier,
	domain.OpDeleteSupplier,
	domain.OpListSupplier,
	domain.OpCreateUser,
	domain.OpEditUser,
	domain.OpDeleteUser,
	domain.OpListUsers,
	domain.OpGenerateReport,
	domain.OpViewInventory,
}

var grants = map[domain.Role][]domain.Operation{
	domain.RoleManager: {
		domain.OpCreateSale,
		domain.OpCreateReturn,
		domain.OpCreatePayment,
		domain.OpListSales,
		domain.OpListPayment,
		domain.OpListReturn,
		domain.OpListProduct,
		domain.OpListCategory,
		domain.OpListPurchase,
		domain.OpListSupplier,
		domain.OpGenerateReport,
		domain.OpViewInventory,
	},
	domain.RoleCashier: {
		domain.OpCreateSale,
		domain.OpCreatePayment,
		domain.OpCreateReturn,
		domain.OpListSales,
		domain.OpListPayment,
		domain.OpListReturn,
	},
	domain.RoleStockist: {
		domain.OpCreatePurchase,
		domain.OpListPurchase,
		domain.OpListProduct,
		domain.OpListSupplier,
		domain.OpListCategory,
		domain.OpViewInventory,
	},
	domain.RoleViewer: {
		domain.OpListProduct,
		domain.OpListSupplier,
		domain.OpListCategory,
		domain.OpListPurchase,
		domain.OpViewInventory,
	},
	domain.RoleSupport: {
		domain.OpCreateReturn,
		domain.OpListReturn,
	},
}

type opSet map[domain.Operation]struct{}

// registry is built once at package init and never written afterwards.
var registry = buildRegistry()

func buildRegistry() map[domain.Role]opSet {
	universe := make(opSet, len(operations))
	for _, op := range operations {
		universe[op] = struct{}{}
	}

	out := map[domain.Role]opSet{domain.RoleAdmin: universe}
	for role, ops := range grants {
		set := make(opSet, len(ops))
		for _, op := range ops {
			if _, known := universe[op]; !known {
				panic("authz: role " + string(role) + " granted unknown operation " + string(op))
			}
			set[op] = struct{}{}
		}
		out[role] = set
	}
	return out
}

// Operations returns the full operation universe in declaration order.
func Operations() []domain.Operation {
	out := make([]domain.Operation, len(operations))
	copy(out, operations)
	return out
}

// PermissionsFor returns the operations granted to role, in universe order.
// Unknown roles get an empty slice.
func PermissionsFor(role domain.Role) []domain.Operation {
	set := registry[role]
	out := make([]domain.Operation, 0, len(set))
	for _, op := range operations {
		if _, ok := set[op]; ok {
			out = append(out, op)
		}
	}
	return out
}

func Can(role domain.Role, op domain.Operation) bool {
	_, ok := registry[role][op]
	return ok
}
