package service

import (
	"context"
	"time"

	"warehub/internal/apperror"
	"warehub/internal/domain"
	"warehub/internal/lifecycle"
	"warehub/internal/models"
)

// TimeSlotService runs drop-off negotiation between warehouse staff and the
// customer on top of the booking lifecycle.
type TimeSlotService struct {
	bookings     *BookingService
	availability domain.AvailabilityProvider
}

func NewTimeSlotService(bookings *BookingService, availability domain.AvailabilityProvider) *TimeSlotService {
	return &TimeSlotService{bookings: bookings, availability: availability}
}

// AcceptRequestedDate keeps the customer's start date. clock may be empty.
func (s *TimeSlotService) AcceptRequestedDate(ctx context.Context, bookingID int64, actor models.Actor, clock string) (*models.Booking, error) {
	return s.bookings.TransitionBooking(ctx, bookingID, lifecycle.ActionAcceptRequestedDate, actor, lifecycle.Payload{
		ProposedTime: clock,
	})
}

// ProposeDateChange suggests another drop-off date and optional time.
func (s *TimeSlotService) ProposeDateChange(ctx context.Context, bookingID int64, actor models.Actor, date time.Time, clock, reason string) (*models.Booking, error) {
	if date.IsZero() {
		return nil, apperror.Validation("proposed date required")
	}
	return s.bookings.TransitionBooking(ctx, bookingID, lifecycle.ActionProposeDate, actor, lifecycle.Payload{
		ProposedDate: &date,
		ProposedTime: clock,
		Reason:       reason,
	})
}

// AvailableSlots lists drop-off slots of a warehouse on the given date.
func (s *TimeSlotService) AvailableSlots(ctx context.Context, warehouseID int64, date time.Time) ([]models.Slot, error) {
	slots, err := s.availability.GetAvailableSlots(ctx, warehouseID, date)
	if err != nil {
		return nil, availabilityError(err)
	}
	return slots, nil
}

// AvailableSlotsForBooking lists slots for the booking's warehouse. A zero
// date means the proposed start date, or the requested one.
func (s *TimeSlotService) AvailableSlotsForBooking(ctx context.Context, bookingID int64, actor models.Actor, date time.Time) ([]models.Slot, error) {
	b, err := s.bookings.GetBooking(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = b.StartDate
		if b.ProposedStartDate != nil {
			date = *b.ProposedStartDate
		}
	}
	return s.AvailableSlots(ctx, b.WarehouseID, date)
}

// SelectSlot records the customer's chosen drop-off time.
func (s *TimeSlotService) SelectSlot(ctx context.Context, bookingID int64, actor models.Actor, start time.Time) (*models.Booking, error) {
	if start.IsZero() {
		return nil, apperror.Validation("slot start required")
	}
	return s.bookings.TransitionBooking(ctx, bookingID, lifecycle.ActionSelectSlot, actor, lifecycle.Payload{
		SlotStart: &start,
	})
}

// ConfirmTimeSlot stamps the confirmation and advances toward payment.
func (s *TimeSlotService) ConfirmTimeSlot(ctx context.Context, bookingID int64, actor models.Actor) (*models.Booking, error) {
	return s.bookings.TransitionBooking(ctx, bookingID, lifecycle.ActionConfirmTimeSlot, actor, lifecycle.Payload{})
}
