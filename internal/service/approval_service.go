package service

import (
	"context"
	"errors"
	"fmt"

	"warehub/internal/apperror"
	"warehub/internal/database"
	"warehub/internal/domain"
	"warehub/internal/events"
	"warehub/internal/lifecycle"
	"warehub/internal/models"

	"github.com/rs/zerolog"
)

// ApprovalService handles bookings team admins create for their members.
type ApprovalService struct {
	bookings       *BookingService
	repo           domain.Repository
	approvals      domain.ApprovalRepository
	auth           domain.Authorizer
	eventBus       domain.EventPublisher
	cancelOnReject bool
	logger         *zerolog.Logger
}

func NewApprovalService(bookings *BookingService, approvals domain.ApprovalRepository, cancelOnReject bool, logger *zerolog.Logger) *ApprovalService {
	return &ApprovalService{
		bookings:       bookings,
		repo:           bookings.repo,
		approvals:      approvals,
		auth:           bookings.auth,
		eventBus:       bookings.eventBus,
		cancelOnReject: cancelOnReject,
		logger:         logger,
	}
}

// OnBehalfRequest is a booking a team admin places for a member.
type OnBehalfRequest struct {
	BookingRequest
	RequiresApproval bool   `json:"requires_approval"`
	Message          string `json:"message,omitempty"`
}

// CreateOnBehalf prices and stores the booking and, when approval is
// required, the pending approval in the same transaction.
func (s *ApprovalService) CreateOnBehalf(ctx context.Context, req OnBehalfRequest, actor models.Actor) (*models.Booking, *models.BookingApproval, error) {
	if actor.Role != models.RoleTeamAdmin {
		return nil, nil, apperror.Authorization("only team admins can book on behalf of members")
	}
	if req.CustomerID == actor.ID {
		return nil, nil, apperror.Validation("on-behalf bookings must name another team member")
	}
	ok, err := s.auth.IsTeamAdmin(ctx, actor.ID, req.CustomerID)
	if err != nil {
		return nil, nil, fmt.Errorf("check team admin: %w", err)
	}
	if !ok {
		return nil, nil, apperror.Authorization("user %d is not a member of your team", req.CustomerID)
	}
	if err := s.bookings.checkRateLimit(ctx, actor); err != nil {
		return nil, nil, err
	}

	p, err := s.bookings.price(ctx, req.BookingRequest)
	if err != nil {
		return nil, nil, err
	}
	booking := s.bookings.newBooking(p, actor)

	var approval *models.BookingApproval
	if req.RequiresApproval {
		approval = &models.BookingApproval{
			RequesterID: actor.ID,
			ApproverID:  booking.CustomerID,
			Status:      models.ApprovalPending,
			Message:     req.Message,
		}
		err = s.repo.CreateBookingWithApproval(ctx, booking, approval)
	} else {
		err = s.repo.CreateBooking(ctx, booking)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create on-behalf booking: %w", err)
	}

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("customer_id", booking.CustomerID).
		Int64("team_admin_id", actor.ID).
		Bool("requires_approval", req.RequiresApproval).
		Msg("on-behalf booking created")

	s.bookings.publishEvent(events.EventBookingCreated, booking, "", "", actor, "")
	s.bookings.enqueueSync(ctx, booking, "upsert")
	if approval != nil {
		s.publishApproval(events.EventApprovalRequested, approval)
	}
	return booking, approval, nil
}

// RequestApproval asks the member to approve an existing on-behalf booking.
func (s *ApprovalService) RequestApproval(ctx context.Context, bookingID int64, actor models.Actor, message string) (*models.BookingApproval, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, lookupError(err, "booking", bookingID)
	}
	if actor.Role != models.RoleTeamAdmin || b.CreatedBy != actor.ID || b.CustomerID == actor.ID {
		return nil, apperror.Authorization("only the team admin who booked on behalf of the member can request approval")
	}
	if lifecycle.IsTerminal(b.Status) {
		return nil, apperror.State("cannot request approval: booking status is %s", b.Status)
	}

	_, err = s.approvals.GetPendingApproval(ctx, bookingID)
	if err == nil {
		return nil, apperror.State("booking %d already has a pending approval", bookingID)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("get pending approval: %w", err)
	}

	approval := &models.BookingApproval{
		BookingID:   bookingID,
		RequesterID: actor.ID,
		ApproverID:  b.CustomerID,
		Status:      models.ApprovalPending,
		Message:     message,
	}
	err = s.approvals.CreateApproval(ctx, approval)
	if errors.Is(err, database.ErrPendingApprovalExists) {
		// проиграли гонку с параллельным запросом
		return nil, apperror.State("booking %d already has a pending approval", bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}

	s.publishApproval(events.EventApprovalRequested, approval)
	return approval, nil
}

// Respond records the approver's decision. Approval does not move the
// booking; rejection cancels it only when configured to.
func (s *ApprovalService) Respond(ctx context.Context, approvalID int64, actor models.Actor, decision models.ApprovalDecision, note string) (*models.BookingApproval, error) {
	var status models.ApprovalStatus
	switch decision {
	case models.DecisionApprove:
		status = models.ApprovalApproved
	case models.DecisionReject:
		status = models.ApprovalRejected
	default:
		return nil, apperror.Validation("decision must be approve or reject")
	}

	approval, err := s.approvals.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, lookupError(err, "approval", approvalID)
	}
	if approval.ApproverID != actor.ID {
		return nil, apperror.Authorization("only the approver can respond to approval %d", approvalID)
	}
	if approval.Status != models.ApprovalPending {
		return nil, apperror.State("approval %d is already %s", approvalID, approval.Status)
	}

	approval.Status = status
	approval.ResponseNote = note
	err = s.approvals.RespondApproval(ctx, approval)
	if errors.Is(err, database.ErrConcurrentModification) {
		return nil, apperror.State("approval %d was already answered", approvalID)
	}
	if err != nil {
		return nil, fmt.Errorf("respond approval: %w", err)
	}

	s.logger.Info().
		Int64("approval_id", approval.ID).
		Int64("booking_id", approval.BookingID).
		Str("status", string(approval.Status)).
		Msg("approval answered")
	s.publishApproval(events.EventApprovalResponded, approval)

	if status == models.ApprovalRejected && s.cancelOnReject {
		_, err := s.bookings.TransitionBooking(ctx, approval.BookingID, lifecycle.ActionCancel, models.SystemActor, lifecycle.Payload{
			Reason: "approval rejected",
		})
		if err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", approval.BookingID).Msg("cancel after rejected approval failed")
		}
	}
	return approval, nil
}

// ListPendingForApprover returns approvals waiting for the actor's decision.
func (s *ApprovalService) ListPendingForApprover(ctx context.Context, actor models.Actor) ([]*models.BookingApproval, error) {
	return s.approvals.ListApprovalsByApprover(ctx, actor.ID, models.ApprovalPending)
}

// ListRequestedBy returns approvals the actor asked for. An empty status
// lists all of them.
func (s *ApprovalService) ListRequestedBy(ctx context.Context, actor models.Actor, status models.ApprovalStatus) ([]*models.BookingApproval, error) {
	if status != "" && status != models.ApprovalPending && status != models.ApprovalApproved && status != models.ApprovalRejected {
		return nil, apperror.Validation("unknown approval status %q", status)
	}
	return s.approvals.ListApprovalsByRequester(ctx, actor.ID, status)
}

func (s *ApprovalService) Stats(ctx context.Context, actor models.Actor) (*models.ApprovalStats, error) {
	return s.approvals.GetApprovalStats(ctx, actor.ID)
}

func (s *ApprovalService) publishApproval(eventType string, a *models.BookingApproval) {
	if s.eventBus == nil {
		return
	}
	payload := events.ApprovalEventPayload{
		ApprovalID:  a.ID,
		BookingID:   a.BookingID,
		RequesterID: a.RequesterID,
		ApproverID:  a.ApproverID,
		Status:      string(a.Status),
		Message:     a.Message,
		Note:        a.ResponseNote,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("approval_id", a.ID).Msg("publish event error")
	}
}
