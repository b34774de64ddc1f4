package auth

import "slices"

// Action names an operation guarded by the policy
type Action string

// Actions
const (
	ActionManageCart           Action = "cart:manage"
	ActionCreateOrder          Action = "order:create"
	ActionListOwnOrders        Action = "order:list"
	ActionReadOrder            Action = "order:read"
	ActionTrackOrder           Action = "order:track"
	ActionCancelOrder          Action = "order:cancel"
	ActionUpdateOrderStatus    Action = "order:update_status"
	ActionCreatePaymentIntent  Action = "payment:create_intent"
	ActionReadPayment          Action = "payment:read"
	ActionVerifyPayment        Action = "payment:verify"
	ActionRecordPaymentFailure Action = "payment:record_failure"
)

// Resource describes the ownership facts the policy needs
type Resource struct {
	OwnerID     string
	SupplierIDs []string
}

// CanPerform is the single access policy consulted by every service operation.
// A zero Resource means the action targets the actor's own data.
func CanPerform(actor Actor, action Action, res Resource) bool {
	if actor.ID == "" {
		return false
	}

	isOwner := res.OwnerID == "" || res.OwnerID == actor.ID
	customerOwner := actor.Role == RoleCustomer && isOwner

	switch action {
	case ActionManageCart, ActionCreateOrder, ActionListOwnOrders:
		return actor.Role == RoleCustomer
	case ActionTrackOrder, ActionCreatePaymentIntent, ActionVerifyPayment, ActionRecordPaymentFailure:
		return customerOwner
	case ActionCancelOrder:
		return customerOwner || actor.Role == RoleAdmin
	case ActionReadPayment:
		return customerOwner || actor.Role == RoleAdmin
	case ActionReadOrder:
		switch actor.Role {
		case RoleAdmin:
			return true
		case RoleSupplier:
			return slices.Contains(res.SupplierIDs, actor.ID)
		default:
			return customerOwner
		}
	case ActionUpdateOrderStatus:
		switch actor.Role {
		case RoleAdmin:
			return true
		case RoleSupplier:
			return slices.Contains(res.SupplierIDs, actor.ID)
		}
	}
	return false
}
