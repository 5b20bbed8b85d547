package order

import "fmt"

// transitions is the role-gated status machine. For each current status it
// lists the statuses each role may move the order to. Absent entries mean
// the transition is rejected. Delivered, cancelled, and refunded are
// terminal except for the admin-only delivered -> refunded path.
var transitions = map[Status]map[Role][]Status{
	StatusPending: {
		RoleBuyer:  {StatusCancelled},
		RoleVendor: {StatusConfirmed, StatusCancelled},
		RoleAdmin:  {StatusConfirmed, StatusCancelled},
	},
	StatusConfirmed: {
		RoleVendor: {StatusProcessing, StatusCancelled},
		RoleAdmin:  {StatusProcessing, StatusCancelled},
	},
	StatusProcessing: {
		RoleVendor: {StatusShipped},
		RoleAdmin:  {StatusShipped, StatusCancelled},
	},
	StatusShipped: {
		RoleVendor: {StatusDelivered},
		RoleAdmin:  {StatusDelivered},
	},
	StatusDelivered: {
		RoleAdmin: {StatusRefunded},
	},
}

// IllegalTransitionError reports a status change rejected by the role-gated
// transition table. The order is left unchanged.
type IllegalTransitionError struct {
	From  Status
	To    Status
	Actor Role
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s may not move order from %s to %s", e.Actor, e.From, e.To)
}

// Allowed returns the statuses the given role may move an order to from the
// current status.
func Allowed(from Status, role Role) []Status {
	return transitions[from][role]
}

// CanTransition reports whether the role may move an order from one status
// to another.
func CanTransition(from, to Status, role Role) bool {
	for _, s := range transitions[from][role] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions for any
// role.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}
