package lifecycle

import (
	"time"

	"warehub/internal/apperror"
	"warehub/internal/models"
)

// Payload carries the action-specific inputs. Fields an action does not use
// are ignored.
type Payload struct {
	ProposedDate *time.Time `json:"proposed_date,omitempty"`
	ProposedTime string     `json:"proposed_time,omitempty"`
	SlotStart    *time.Time `json:"slot_start,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// Apply validates the action against the booking's current status, then the
// actor's role, and returns the updated copy. The input booking is never
// modified and nothing is persisted.
func Apply(b *models.Booking, action Action, p Payload, actor models.Actor, now time.Time) (*models.Booking, error) {
	if b == nil {
		return nil, apperror.NotFound("booking not found")
	}
	if !IsKnown(action) {
		return nil, apperror.Validation("unknown action %q", action)
	}
	if !statusAllowed(action, b.Status) {
		return nil, apperror.State("cannot %s: booking status is %s, required status: %s",
			action, b.Status, joinStatuses(RequiredStatuses(action)))
	}
	if !roleAllowed(action, actor.Role) {
		return nil, apperror.Authorization("role %q cannot %s", actor.Role, action)
	}

	out := b.Clone()
	switch action {
	case ActionRequestPayment:
		out.Status = models.StatusPaymentPending

	case ActionPaymentCaptured:
		out.PaidAt = timePtr(now)
		if out.TimeSlotConfirmedAt != nil {
			out.Status = models.StatusConfirmed
		} else {
			out.Status = models.StatusPreOrder
		}

	case ActionAcceptRequestedDate:
		start := out.StartDate
		out.ProposedStartDate = &start
		if p.ProposedTime != "" {
			if err := validateClock(p.ProposedTime); err != nil {
				return nil, err
			}
			out.ProposedStartTime = p.ProposedTime
		}
		markDateChange(out, actor, now)
		out.Status = models.StatusAwaitingTimeSlot

	case ActionProposeDate:
		if p.ProposedDate == nil {
			return nil, apperror.Validation("proposed date required")
		}
		if p.ProposedTime != "" {
			if err := validateClock(p.ProposedTime); err != nil {
				return nil, err
			}
		}
		out.ProposedStartDate = timePtr(*p.ProposedDate)
		out.ProposedStartTime = p.ProposedTime
		// a new proposal invalidates any slot picked for the old one
		out.ScheduledDropoff = nil
		out.TimeSlotConfirmedAt = nil
		markDateChange(out, actor, now)
		out.Status = models.StatusAwaitingTimeSlot

	case ActionSelectSlot:
		if p.SlotStart == nil {
			return nil, apperror.Validation("slot start required")
		}
		out.ScheduledDropoff = timePtr(*p.SlotStart)

	case ActionConfirmTimeSlot:
		if out.ScheduledDropoff == nil {
			return nil, apperror.State("cannot %s: no drop-off slot selected", action)
		}
		out.TimeSlotConfirmedAt = timePtr(now)
		if out.PaidAt != nil {
			out.Status = models.StatusConfirmed
		} else {
			out.Status = models.StatusPaymentPending
		}

	case ActionActivate:
		out.Status = models.StatusActive

	case ActionComplete:
		out.Status = models.StatusCompleted

	case ActionCancel:
		out.Status = models.StatusCancelled

	case ActionReject:
		out.Status = models.StatusRejected

	case ActionRecalculate:
		// pricing is redone by the caller, the status stays pending
	}

	out.UpdatedAt = now
	return out, nil
}

func markDateChange(b *models.Booking, actor models.Actor, now time.Time) {
	b.DateChangeRequestedAt = timePtr(now)
	id := actor.ID
	b.DateChangeRequestedBy = &id
}

func validateClock(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return apperror.Validation("time %q must be HH:MM", s)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
