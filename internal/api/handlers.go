package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"warehub/internal/apperror"
	"warehub/internal/export"
	"warehub/internal/lifecycle"
	"warehub/internal/models"
	"warehub/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ActionRequest is the body of a lifecycle action. All fields are optional
// and only read by the actions that need them.
type ActionRequest struct {
	ProposedDate string     `json:"proposed_date,omitempty"`
	ProposedTime string     `json:"proposed_time,omitempty"`
	SlotStart    *time.Time `json:"slot_start,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

func (a ActionRequest) payload() (lifecycle.Payload, error) {
	p := lifecycle.Payload{
		ProposedTime: strings.TrimSpace(a.ProposedTime),
		SlotStart:    a.SlotStart,
		Reason:       strings.TrimSpace(a.Reason),
	}
	if raw := strings.TrimSpace(a.ProposedDate); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return p, apperror.Validation("invalid proposed_date format; expected YYYY-MM-DD")
		}
		p.ProposedDate = &d
	}
	return p, nil
}

type approvalRequest struct {
	Message string `json:"message,omitempty"`
}

type respondRequest struct {
	Decision models.ApprovalDecision `json:"decision"`
	Note     string                  `json:"note,omitempty"`
}

type onBehalfResponse struct {
	Booking  *models.Booking         `json:"booking"`
	Approval *models.BookingApproval `json:"approval,omitempty"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var req service.BookingRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, err)
		return
	}

	quote, err := s.svc.Bookings.QuoteBooking(r.Context(), req, actor)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var req service.BookingRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.CreateBooking(r.Context(), req, actor)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleCreateOnBehalf(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var req service.OnBehalfRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeAppError(w, r, err)
		return
	}

	booking, approval, err := s.svc.Approvals.CreateOnBehalf(r.Context(), req, actor)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, onBehalfResponse{Booking: booking, Approval: approval})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.GetBooking(r.Context(), id, actor)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingAction(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	action := lifecycle.Action(r.PathValue("action"))
	if !lifecycle.IsKnown(action) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", action))
		return
	}

	var body ActionRequest
	if err := decodeJSON(r, &body, true); err != nil {
		writeAppError(w, r, err)
		return
	}
	payload, err := body.payload()
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.TransitionBooking(r.Context(), id, action, actor, payload)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingSlots(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	date, err := queryDate(r, "date", false)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	slots, err := s.svc.Slots.AvailableSlotsForBooking(r.Context(), id, actor, date)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (s *HTTPServer) handleWarehouseSlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	date, err := queryDate(r, "date", true)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	slots, err := s.svc.Slots.AvailableSlots(r.Context(), id, date)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"warehouse_id": id,
		"date":         date.Format(dateLayout),
		"slots":        slots,
	})
}

func (s *HTTPServer) handleCustomerBookings(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	bookings, err := s.svc.Bookings.GetCustomerBookings(r.Context(), id, actor)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleRequestApproval(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	var body approvalRequest
	if err := decodeJSON(r, &body, true); err != nil {
		writeAppError(w, r, err)
		return
	}

	approval, err := s.svc.Approvals.RequestApproval(r.Context(), id, actor, strings.TrimSpace(body.Message))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, approval)
}

func (s *HTTPServer) handleRespondApproval(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	var body respondRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeAppError(w, r, err)
		return
	}

	approval, err := s.svc.Approvals.Respond(r.Context(), id, actor, body.Decision, strings.TrimSpace(body.Note))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

// handleListApprovals lists approvals waiting on the caller (role=approver,
// the default) or the ones the caller asked for (role=requester).
func (s *HTTPServer) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var (
		list []*models.BookingApproval
		err  error
	)
	switch role := r.URL.Query().Get("role"); role {
	case "", "approver":
		list, err = s.svc.Approvals.ListPendingForApprover(r.Context(), actor)
	case "requester":
		status := models.ApprovalStatus(r.URL.Query().Get("status"))
		list, err = s.svc.Approvals.ListRequestedBy(r.Context(), actor, status)
	default:
		err = apperror.Validation("role must be approver or requester")
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.BookingApproval{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": list})
}

func (s *HTTPServer) handleApprovalStats(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	stats, err := s.svc.Approvals.Stats(r.Context(), actor)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleExportBookings streams the xlsx ledger for [from, to]. Defaults to
// the current month.
func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	if !actor.IsStaffLike() && actor.Role != models.RoleSystem {
		writeAppError(w, r, apperror.Authorization("only staff can export bookings"))
		return
	}
	if s.svc.Exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export disabled")
		return
	}

	from, err := queryDate(r, "from", false)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	to, err := queryDate(r, "to", false)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if from.IsZero() {
		now := time.Now().UTC()
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	if to.IsZero() {
		to = from.AddDate(0, 1, -1)
	}
	if to.Before(from) {
		writeAppError(w, r, apperror.Validation("to must not be before from"))
		return
	}

	// Пишем в буфер, чтобы ошибка не оборвала уже начатый ответ
	var buf bytes.Buffer
	if err := s.svc.Exporter.Write(r.Context(), &buf, from, to); err != nil {
		writeAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
