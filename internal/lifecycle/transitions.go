// Package lifecycle holds the booking state machine. Every status change goes
// through Apply, which validates against a single transition table and
// returns a modified copy of the booking.
package lifecycle

import (
	"sort"
	"strings"

	"warehub/internal/models"
)

type Action string

const (
	ActionRequestPayment      Action = "request_payment"
	ActionPaymentCaptured     Action = "payment_captured"
	ActionAcceptRequestedDate Action = "accept_requested_date"
	ActionProposeDate         Action = "propose_date"
	ActionSelectSlot          Action = "select_slot"
	ActionConfirmTimeSlot     Action = "confirm_time_slot"
	ActionActivate            Action = "activate"
	ActionComplete            Action = "complete"
	ActionCancel              Action = "cancel"
	ActionReject              Action = "reject"
	ActionRecalculate         Action = "recalculate"
)

type rule struct {
	from  []models.Status
	roles []models.Role
}

var nonTerminal = []models.Status{
	models.StatusPending,
	models.StatusPaymentPending,
	models.StatusPreOrder,
	models.StatusAwaitingTimeSlot,
	models.StatusConfirmed,
	models.StatusActive,
}

var (
	customerSide = []models.Role{models.RoleCustomer, models.RoleTeamAdmin}
	staffSide    = []models.Role{models.RoleStaff, models.RoleAdmin}
)

var transitionMap = map[Action]rule{
	ActionRequestPayment: {
		from:  []models.Status{models.StatusPending},
		roles: []models.Role{models.RoleCustomer, models.RoleTeamAdmin, models.RoleSystem},
	},
	ActionPaymentCaptured: {
		from:  []models.Status{models.StatusPaymentPending},
		roles: []models.Role{models.RoleSystem},
	},
	ActionAcceptRequestedDate: {
		from:  []models.Status{models.StatusPreOrder},
		roles: staffSide,
	},
	ActionProposeDate: {
		from:  []models.Status{models.StatusPreOrder, models.StatusAwaitingTimeSlot, models.StatusPending},
		roles: staffSide,
	},
	ActionSelectSlot: {
		from:  []models.Status{models.StatusAwaitingTimeSlot},
		roles: customerSide,
	},
	ActionConfirmTimeSlot: {
		from:  []models.Status{models.StatusAwaitingTimeSlot},
		roles: customerSide,
	},
	ActionActivate: {
		from:  []models.Status{models.StatusConfirmed},
		roles: []models.Role{models.RoleStaff, models.RoleAdmin, models.RoleSystem},
	},
	ActionComplete: {
		from:  []models.Status{models.StatusActive},
		roles: []models.Role{models.RoleStaff, models.RoleAdmin, models.RoleSystem},
	},
	ActionCancel: {
		from:  nonTerminal,
		roles: []models.Role{models.RoleCustomer, models.RoleTeamAdmin, models.RoleStaff, models.RoleAdmin, models.RoleSystem},
	},
	ActionReject: {
		from:  []models.Status{models.StatusPending, models.StatusPaymentPending},
		roles: []models.Role{models.RoleCustomer, models.RoleSystem},
	},
	ActionRecalculate: {
		from:  []models.Status{models.StatusPending},
		roles: []models.Role{models.RoleCustomer, models.RoleTeamAdmin, models.RoleAdmin, models.RoleSystem},
	},
}

// IsTerminal reports whether no action can leave the status.
func IsTerminal(s models.Status) bool {
	switch s {
	case models.StatusCompleted, models.StatusCancelled, models.StatusRejected:
		return true
	}
	return false
}

// IsKnown reports whether the action is in the transition table.
func IsKnown(action Action) bool {
	_, ok := transitionMap[action]
	return ok
}

// Actions lists every action in a stable order.
func Actions() []Action {
	out := make([]Action, 0, len(transitionMap))
	for a := range transitionMap {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RequiredStatuses returns the statuses the action may start from.
func RequiredStatuses(action Action) []models.Status {
	r, ok := transitionMap[action]
	if !ok {
		return nil
	}
	return append([]models.Status(nil), r.from...)
}

// IsTransitionAllowed is the pure table lookup.
func IsTransitionAllowed(status models.Status, action Action, role models.Role) bool {
	r, ok := transitionMap[action]
	if !ok {
		return false
	}
	return containsStatus(r.from, status) && containsRole(r.roles, role)
}

func statusAllowed(action Action, status models.Status) bool {
	r, ok := transitionMap[action]
	return ok && containsStatus(r.from, status)
}

func roleAllowed(action Action, role models.Role) bool {
	r, ok := transitionMap[action]
	return ok && containsRole(r.roles, role)
}

func containsStatus(list []models.Status, s models.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsRole(list []models.Role, r models.Role) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}

func joinStatuses(list []models.Status) string {
	parts := make([]string, len(list))
	for i, s := range list {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
