// Package security holds the authorization contract.
//
// The stock ledger never calls into this package: HTTP middleware asks an
// Authorizer before a handler runs, so rules can change without touching
// movement logic.
package security

// Permission names an action a caller may perform.
type Permission string

const (
	PermissionCatalogRead  Permission = "catalog:read"
	PermissionCatalogWrite Permission = "catalog:write"

	PermissionStockRead    Permission = "stock:read"
	PermissionStockReserve Permission = "stock:reserve"

	PermissionMovementRead    Permission = "movement:read"
	PermissionMovementCreate  Permission = "movement:create"
	PermissionMovementPost    Permission = "movement:post"
	PermissionMovementCancel  Permission = "movement:cancel"
	PermissionMovementReverse Permission = "movement:reverse"

	PermissionAuditRead Permission = "audit:read"
)

// AllPermissions lists every permission known to the service.
func AllPermissions() []Permission {
	return []Permission{
		PermissionCatalogRead, PermissionCatalogWrite,
		PermissionStockRead, PermissionStockReserve,
		PermissionMovementRead, PermissionMovementCreate, PermissionMovementPost,
		PermissionMovementCancel, PermissionMovementReverse,
		PermissionAuditRead,
	}
}
