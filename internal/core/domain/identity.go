package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Identity is the caller as established by the identity collaborator.
type Identity struct {
	OwnerID int64
	Role    Role
}

// CanPurchase reports whether the caller may own a cart and check out.
// Only customers may; an unset role is refused.
func (i Identity) CanPurchase() bool {
	return i.OwnerID > 0 && i.Role == RoleCustomer
}
