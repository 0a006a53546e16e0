package order

// allowedTransitions is the full status graph. Delivered and cancelled are
// terminal: no outgoing edges, not even to themselves.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusPaid:      true,
		StatusCancelled: true,
	},
	StatusPaid: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// transitionTriggers names the only party allowed to trigger each target
// status. Cancellation is absent here: either party may cancel.
var transitionTriggers = map[Status]Role{
	StatusPaid:      RoleBuyer,
	StatusShipped:   RoleSeller,
	StatusDelivered: RoleBuyer,
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// Terminal reports whether no transitions may leave the status.
func (s Status) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

func roleMayTrigger(role Role, to Status) bool {
	if to == StatusCancelled {
		return role == RoleBuyer || role == RoleSeller
	}
	required, ok := transitionTriggers[to]
	return ok && role == required
}
