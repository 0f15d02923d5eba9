package auth

import "restaurant-fulfillment/internal/domain"

type Role string

const (
	RoleGuest    Role = "guest"
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

type Permission string

const (
	PermOrdersTransition  Permission = "orders:transition"
	PermOrdersOverride    Permission = "orders:override"
	PermOrdersRefund      Permission = "orders:refund"
	PermOrdersCancel      Permission = "orders:cancel"
	PermOrdersRead        Permission = "orders:read"
	PermPaymentsReconcile Permission = "payments:reconcile"
	PermInventoryReduce   Permission = "inventory:reduce"
	PermOpsRead           Permission = "ops:read"
)

var rolePermissions = map[Role][]Permission{
	RoleStaff: {PermOrdersTransition, PermOrdersCancel, PermOrdersRead},
	RoleManager: {
		PermOrdersTransition, PermOrdersCancel, PermOrdersRead, PermOrdersOverride, PermOrdersRefund,
		PermPaymentsReconcile, PermInventoryReduce, PermOpsRead,
	},
	RoleAdmin: {
		PermOrdersTransition, PermOrdersCancel, PermOrdersRead, PermOrdersOverride, PermOrdersRefund,
		PermPaymentsReconcile, PermInventoryReduce, PermOpsRead,
	},
	RoleSystem: {PermOrdersTransition, PermInventoryReduce},
}

// Actor is whoever is calling: a customer, a guest session, staff, or the worker.
type Actor struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	SessionID string `json:"sessionId,omitempty"`
}

// System is the actor used by background jobs.
var System = Actor{ID: "system", Role: RoleSystem}

func (a Actor) Can(p Permission) bool {
	for _, granted := range rolePermissions[a.Role] {
		if granted == p {
			return true
		}
	}
	return false
}

// Owner is the cart/order owner this actor shops as. Staff have none.
func (a Actor) Owner() domain.Owner {
	switch a.Role {
	case RoleCustomer:
		return domain.Owner{CustomerID: a.ID}
	case RoleGuest:
		return domain.Owner{SessionID: a.SessionID}
	default:
		return domain.Owner{}
	}
}

// Owns reports whether the actor is the owner of a cart or order.
func (a Actor) Owns(owner domain.Owner) bool {
	mine := a.Owner()
	if !mine.Valid() {
		return false
	}
	if mine.CustomerID != "" {
		return mine.CustomerID == owner.CustomerID
	}
	return mine.SessionID == owner.SessionID
}

// Name is what goes into audit fields such as timeline updatedBy.
func (a Actor) Name() string {
	if a.ID != "" {
		return a.ID
	}
	if a.SessionID != "" {
		return "session:" + a.SessionID
	}
	return string(a.Role)
}
