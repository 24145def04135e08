package lifecycle

import (
	"testing"

	"warehub/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestIsTransitionAllowed(t *testing.T) {
	cases := []struct {
		status models.Status
		action Action
		role   models.Role
		valid  bool
	}{
		{models.StatusPending, ActionRequestPayment, models.RoleCustomer, true},
		{models.StatusPending, ActionRequestPayment, models.RoleStaff, false},
		{models.StatusPaymentPending, ActionPaymentCaptured, models.RoleSystem, true},
		{models.StatusPaymentPending, ActionPaymentCaptured, models.RoleCustomer, false},
		{models.StatusPreOrder, ActionAcceptRequestedDate, models.RoleStaff, true},
		{models.StatusAwaitingTimeSlot, ActionAcceptRequestedDate, models.RoleStaff, false},
		{models.StatusPending, ActionProposeDate, models.RoleAdmin, true},
		{models.StatusAwaitingTimeSlot, ActionProposeDate, models.RoleStaff, true},
		{models.StatusConfirmed, ActionProposeDate, models.RoleStaff, false},
		{models.StatusAwaitingTimeSlot, ActionSelectSlot, models.RoleCustomer, true},
		{models.StatusAwaitingTimeSlot, ActionConfirmTimeSlot, models.RoleTeamAdmin, true},
		{models.StatusAwaitingTimeSlot, ActionConfirmTimeSlot, models.RoleStaff, false},
		{models.StatusConfirmed, ActionActivate, models.RoleStaff, true},
		{models.StatusActive, ActionComplete, models.RoleSystem, true},
		{models.StatusActive, ActionCancel, models.RoleCustomer, true},
		{models.StatusCompleted, ActionCancel, models.RoleAdmin, false},
		{models.StatusCancelled, ActionCancel, models.RoleAdmin, false},
		{models.StatusPending, ActionReject, models.RoleCustomer, true},
		{models.StatusConfirmed, ActionReject, models.RoleCustomer, false},
		{models.StatusPending, ActionRecalculate, models.RoleCustomer, true},
		{models.StatusPaymentPending, ActionRecalculate, models.RoleCustomer, false},
		{models.StatusPending, "teleport", models.RoleAdmin, false},
	}

	for _, tt := range cases {
		got := IsTransitionAllowed(tt.status, tt.action, tt.role)
		assert.Equal(t, tt.valid, got, "IsTransitionAllowed(%s, %s, %s)", tt.status, tt.action, tt.role)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	roles := []models.Role{models.RoleCustomer, models.RoleTeamAdmin, models.RoleStaff, models.RoleAdmin, models.RoleSystem}
	for _, status := range []models.Status{models.StatusCompleted, models.StatusCancelled, models.StatusRejected} {
		assert.True(t, IsTerminal(status))
		for _, action := range Actions() {
			for _, role := range roles {
				assert.False(t, IsTransitionAllowed(status, action, role), "%s from %s as %s", action, status, role)
			}
		}
	}
	assert.False(t, IsTerminal(models.StatusActive))
}

func TestActions(t *testing.T) {
	actions := Actions()
	assert.Len(t, actions, 11)
	assert.Contains(t, actions, ActionCancel)
	assert.True(t, IsKnown(ActionSelectSlot))
	assert.False(t, IsKnown("unknown"))
	assert.Nil(t, RequiredStatuses("unknown"))
}
