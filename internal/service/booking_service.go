package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warehub/internal/apperror"
	"warehub/internal/database"
	"warehub/internal/domain"
	"warehub/internal/events"
	"warehub/internal/lifecycle"
	"warehub/internal/metrics"
	"warehub/internal/models"
	"warehub/internal/pricing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RateLimiter caps how often one actor may create bookings.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, actorID int64, limit int, window time.Duration) (bool, error)
}

// BookingDeps wires the booking service to its collaborators. Limiter,
// Availability, EventBus and SheetsWorker are optional.
type BookingDeps struct {
	Repo         domain.Repository
	Pricing      domain.PricingSource
	Warehouses   domain.WarehouseDirectory
	Customers    domain.CustomerDirectory
	Auth         domain.Authorizer
	Availability domain.AvailabilityProvider
	Limiter      RateLimiter
	EventBus     domain.EventPublisher
	SheetsWorker domain.SyncWorker
	Calculator   *pricing.Calculator
}

type BookingService struct {
	repo         domain.Repository
	pricing      domain.PricingSource
	warehouses   domain.WarehouseDirectory
	customers    domain.CustomerDirectory
	auth         domain.Authorizer
	availability domain.AvailabilityProvider
	limiter      RateLimiter
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	calc         *pricing.Calculator

	rateLimit  int
	rateWindow time.Duration
	defaultLoc *time.Location
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewBookingService(deps BookingDeps, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		repo:         deps.Repo,
		pricing:      deps.Pricing,
		warehouses:   deps.Warehouses,
		customers:    deps.Customers,
		auth:         deps.Auth,
		availability: deps.Availability,
		limiter:      deps.Limiter,
		eventBus:     deps.EventBus,
		sheetsWorker: deps.SheetsWorker,
		calc:         deps.Calculator,
		rateLimit:    models.RateLimitRequests,
		rateWindow:   models.RateLimitWindow * time.Second,
		defaultLoc:   time.UTC,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetRateLimit overrides the booking creation limit per actor.
func (s *BookingService) SetRateLimit(limit int, window time.Duration) {
	if limit > 0 && window > 0 {
		s.rateLimit, s.rateWindow = limit, window
	}
}

// SetDefaultLocation sets the zone used for warehouses without one.
func (s *BookingService) SetDefaultLocation(loc *time.Location) {
	if loc != nil {
		s.defaultLoc = loc
	}
}

// BookingRequest is a booking or quote request of either shape.
type BookingRequest struct {
	WarehouseID    int64                      `json:"warehouse_id"`
	CustomerID     int64                      `json:"customer_id"`
	Type           models.BookingType         `json:"type"`
	PalletCount    *int                       `json:"pallet_count,omitempty"`
	AreaSqFt       *decimal.Decimal           `json:"area_sq_ft,omitempty"`
	FloorRef       string                     `json:"floor_ref,omitempty"`
	StartDate      time.Time                  `json:"start_date"`
	EndDate        *time.Time                 `json:"end_date,omitempty"`
	DurationMonths int                        `json:"duration_months,omitempty"`
	Services       []pricing.ServiceSelection `json:"services,omitempty"`
}

// priced is a request after validation and pricing.
type priced struct {
	req      BookingRequest
	shape    models.BookingShape
	customer *models.Customer
	quote    *pricing.Quote
}

// PriceBooking computes the cost of a request without persisting anything.
func (s *BookingService) PriceBooking(ctx context.Context, req BookingRequest) (*pricing.Quote, error) {
	p, err := s.price(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.quote, nil
}

// QuoteBooking prices a request on behalf of an actor. The quote carries the
// customer's membership discount, so only actors who could book for that
// customer may see it.
func (s *BookingService) QuoteBooking(ctx context.Context, req BookingRequest, actor models.Actor) (*pricing.Quote, error) {
	if err := s.authorizeQuote(ctx, req, actor); err != nil {
		return nil, err
	}
	return s.PriceBooking(ctx, req)
}

func (s *BookingService) price(ctx context.Context, req BookingRequest) (*priced, error) {
	shape, err := models.NewShape(req.Type, req.PalletCount, req.AreaSqFt, req.FloorRef)
	if err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}
	if shape == nil {
		return nil, apperror.Validation("booking type must be pallet or area_rental")
	}
	if req.StartDate.IsZero() {
		return nil, apperror.Validation("start date is required")
	}
	stayDays, err := pricing.StayDays(req.StartDate, req.EndDate, req.DurationMonths)
	if err != nil {
		return nil, err
	}

	warehouse, err := s.warehouses.GetWarehouse(ctx, req.WarehouseID)
	if err != nil {
		return nil, lookupError(err, "warehouse", req.WarehouseID)
	}
	if !warehouse.IsActive {
		return nil, apperror.Validation("warehouse %d is not accepting bookings", req.WarehouseID)
	}

	customer, err := s.customers.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, lookupError(err, "customer", req.CustomerID)
	}

	existing := 0
	if shape.Type() == models.BookingTypePallet {
		existing, err = s.repo.CountActivePallets(ctx, customer.ID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("customer_id", customer.ID).Msg("existing pallet count unavailable, pricing without it")
		}
	}

	table, rules, err := s.loadPricing(ctx, req.WarehouseID)
	if err != nil && len(req.Services) > 0 {
		// storage falls back to defaults, add-on services have no default price
		return nil, apperror.Upstream(err, "service catalog for warehouse %d is unavailable, try again later", req.WarehouseID)
	}

	quote, err := s.calc.Quote(pricing.QuoteInput{
		Shape:               shape,
		StayDays:            stayDays,
		Tier:                customer.MembershipTier,
		ExistingPalletCount: existing,
		Table:               table,
		Rules:               rules,
		Services:            req.Services,
	})
	if err != nil {
		return nil, err
	}
	metrics.IncQuote(string(shape.Type()))

	return &priced{req: req, shape: shape, customer: customer, quote: quote}, nil
}

// loadPricing falls back to the calculator defaults when the warehouse
// pricing cannot be read. The lookup error is returned alongside the nil
// table.
func (s *BookingService) loadPricing(ctx context.Context, warehouseID int64) (*models.PricingTable, []models.FreeStorageRule, error) {
	table, err := s.pricing.GetWarehousePricing(ctx, warehouseID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("warehouse_id", warehouseID).Msg("pricing table lookup failed, using defaults")
		metrics.IncPricingFallback()
		return nil, nil, err
	}
	rules, err := s.pricing.GetFreeStorageRules(ctx, warehouseID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("warehouse_id", warehouseID).Msg("free storage rules lookup failed, ignoring them")
		metrics.IncPricingFallback()
		rules = nil
	}
	return table, rules, nil
}

// CreateBooking prices the request and stores it as a pending booking.
func (s *BookingService) CreateBooking(ctx context.Context, req BookingRequest, actor models.Actor) (*models.Booking, error) {
	if err := s.authorizeCreate(ctx, req, actor); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, actor); err != nil {
		return nil, err
	}

	p, err := s.price(ctx, req)
	if err != nil {
		return nil, err
	}

	booking := s.newBooking(p, actor)
	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("customer_id", booking.CustomerID).
		Str("type", string(booking.Type())).
		Str("total", booking.TotalAmount.StringFixed(2)).
		Msg("booking created")

	s.publishEvent(events.EventBookingCreated, booking, "", "", actor, "")
	s.enqueueSync(ctx, booking, "upsert")
	return booking, nil
}

func (s *BookingService) newBooking(p *priced, actor models.Actor) *models.Booking {
	now := s.now()
	createdBy := actor.ID
	if actor.Role == models.RoleSystem {
		createdBy = p.customer.ID
	}

	b := &models.Booking{
		CustomerID:     p.customer.ID,
		CustomerName:   p.customer.Name,
		CustomerEmail:  p.customer.Email,
		WarehouseID:    p.req.WarehouseID,
		CreatedBy:      createdBy,
		Shape:          p.shape,
		StartDate:      p.req.StartDate.UTC(),
		EndDate:        utcPtr(p.req.EndDate),
		DurationMonths: p.req.DurationMonths,
		Status:         models.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if b.EndDate != nil {
		b.DurationMonths = 0
	}
	p.quote.ApplyTo(b, p.customer.MembershipTier)
	return b
}

func (s *BookingService) authorizeCreate(ctx context.Context, req BookingRequest, actor models.Actor) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
		return nil
	case models.RoleCustomer:
		if actor.ID != req.CustomerID {
			return apperror.Authorization("customers can only book for themselves")
		}
		return nil
	case models.RoleTeamAdmin:
		if actor.ID != req.CustomerID {
			return apperror.Authorization("bookings for team members must be created on their behalf")
		}
		return nil
	case models.RoleStaff:
		return s.checkWarehouseAccess(ctx, actor, req.WarehouseID)
	default:
		return apperror.Authorization("role %q cannot create bookings", actor.Role)
	}
}

// authorizeQuote follows authorizeCreate, except team admins may also
// price bookings for their members.
func (s *BookingService) authorizeQuote(ctx context.Context, req BookingRequest, actor models.Actor) error {
	if actor.Role != models.RoleTeamAdmin || actor.ID == req.CustomerID {
		return s.authorizeCreate(ctx, req, actor)
	}
	ok, err := s.auth.IsTeamAdmin(ctx, actor.ID, req.CustomerID)
	if err != nil {
		return fmt.Errorf("check team admin: %w", err)
	}
	if !ok {
		return apperror.Authorization("user %d is not a member of your team", req.CustomerID)
	}
	return nil
}

func (s *BookingService) checkRateLimit(ctx context.Context, actor models.Actor) error {
	if s.limiter == nil || actor.Role == models.RoleSystem {
		return nil
	}
	allowed, err := s.limiter.CheckRateLimit(ctx, actor.ID, s.rateLimit, s.rateWindow)
	if err != nil {
		s.logger.Warn().Err(err).Int64("actor_id", actor.ID).Msg("rate limit check failed, allowing request")
		return nil
	}
	if !allowed {
		return apperror.Validation("too many booking requests, try again later")
	}
	return nil
}

// GetBooking returns a booking the actor may see.
func (s *BookingService) GetBooking(ctx context.Context, id int64, actor models.Actor) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, lookupError(err, "booking", id)
	}
	if err := s.authorizeBooking(ctx, b, actor); err != nil {
		return nil, err
	}
	return b, nil
}

// GetCustomerBookings lists the bookings of a customer the actor may see.
func (s *BookingService) GetCustomerBookings(ctx context.Context, customerID int64, actor models.Actor) ([]*models.Booking, error) {
	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
	case models.RoleCustomer:
		if actor.ID != customerID {
			return nil, apperror.Authorization("customers can only list their own bookings")
		}
	case models.RoleTeamAdmin:
		if actor.ID != customerID {
			ok, err := s.auth.IsTeamAdmin(ctx, actor.ID, customerID)
			if err != nil {
				return nil, fmt.Errorf("check team admin: %w", err)
			}
			if !ok {
				return nil, apperror.Authorization("user %d is not a member of your team", customerID)
			}
		}
	default:
		return nil, apperror.Authorization("role %q cannot list customer bookings", actor.Role)
	}
	return s.repo.GetCustomerBookings(ctx, customerID)
}

// GetBookingsByDateRange is the staff ledger view used by exports.
func (s *BookingService) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	return s.repo.GetBookingsByDateRange(ctx, start, end)
}

// TransitionBooking applies a lifecycle action to the stored booking and
// writes the result back with a conditional update.
func (s *BookingService) TransitionBooking(ctx context.Context, id int64, action lifecycle.Action, actor models.Actor, payload lifecycle.Payload) (*models.Booking, error) {
	b, err := s.transition(ctx, id, action, actor, payload)
	if err != nil {
		result := string(apperror.KindOf(err))
		if result == "" {
			result = "error"
		}
		metrics.IncTransition(string(action), result)
		return nil, err
	}
	metrics.IncTransition(string(action), "ok")
	return b, nil
}

func (s *BookingService) transition(ctx context.Context, id int64, action lifecycle.Action, actor models.Actor, payload lifecycle.Payload) (*models.Booking, error) {
	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, lookupError(err, "booking", id)
	}
	if err := s.authorizeBooking(ctx, current, actor); err != nil {
		return nil, err
	}

	updated, err := lifecycle.Apply(current, action, payload, actor, s.now())
	if err != nil {
		return nil, err
	}

	if action == lifecycle.ActionSelectSlot {
		if err := s.validateSlot(ctx, updated.WarehouseID, *updated.ScheduledDropoff); err != nil {
			return nil, err
		}
	}

	if action == lifecycle.ActionRecalculate {
		if err := s.reprice(ctx, updated); err != nil {
			return nil, err
		}
		err = s.repo.RepriceBooking(ctx, updated, current.Status)
	} else {
		err = s.repo.SaveBooking(ctx, updated, current.Status)
	}
	if errors.Is(err, database.ErrConcurrentModification) {
		return nil, apperror.State("booking was modified concurrently")
	}
	if err != nil {
		return nil, fmt.Errorf("save booking %d: %w", id, err)
	}

	s.logger.Info().
		Int64("booking_id", updated.ID).
		Str("action", string(action)).
		Str("from", string(current.Status)).
		Str("to", string(updated.Status)).
		Int64("actor_id", actor.ID).
		Str("actor_role", string(actor.Role)).
		Msg("booking transitioned")

	eventType := events.EventBookingStatusChanged
	taskType := "update_status"
	switch action {
	case lifecycle.ActionRecalculate:
		eventType, taskType = events.EventBookingRepriced, "upsert"
	case lifecycle.ActionProposeDate, lifecycle.ActionAcceptRequestedDate:
		eventType, taskType = events.EventBookingDateProposed, "upsert"
	case lifecycle.ActionSelectSlot, lifecycle.ActionConfirmTimeSlot:
		taskType = "upsert"
	}
	s.publishEvent(eventType, updated, current.Status, action, actor, payload.Reason)
	s.enqueueSync(ctx, updated, taskType)

	return updated, nil
}

// reprice recomputes the pricing snapshot of a pending booking from its
// stored parameters, keeping the selected services.
func (s *BookingService) reprice(ctx context.Context, b *models.Booking) error {
	req := BookingRequest{
		WarehouseID:    b.WarehouseID,
		CustomerID:     b.CustomerID,
		Type:           b.Type(),
		StartDate:      b.StartDate,
		EndDate:        b.EndDate,
		DurationMonths: b.DurationMonths,
	}
	switch shape := b.Shape.(type) {
	case models.PalletShape:
		count := shape.PalletCount
		req.PalletCount = &count
	case models.AreaRentalShape:
		area := shape.AreaSqFt
		req.AreaSqFt = &area
		req.FloorRef = shape.FloorRef
	}
	for _, line := range b.Services {
		req.Services = append(req.Services, pricing.ServiceSelection{ServiceID: line.ServiceID, Quantity: line.Quantity})
	}

	p, err := s.price(ctx, req)
	if err != nil {
		return err
	}
	p.quote.ApplyTo(b, p.customer.MembershipTier)
	return nil
}

func (s *BookingService) validateSlot(ctx context.Context, warehouseID int64, start time.Time) error {
	if s.availability == nil {
		return nil
	}
	warehouse, err := s.warehouses.GetWarehouse(ctx, warehouseID)
	if err != nil {
		return lookupError(err, "warehouse", warehouseID)
	}
	local := start.In(warehouse.Location(s.defaultLoc))
	y, m, d := local.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, local.Location())

	slots, err := s.availability.GetAvailableSlots(ctx, warehouseID, day)
	if err != nil {
		return availabilityError(err)
	}
	for _, slot := range slots {
		if slot.Start.Equal(start) {
			if !slot.Available {
				return apperror.Validation("slot %s is not available", local.Format("2006-01-02 15:04"))
			}
			return nil
		}
	}
	return apperror.Validation("%s is not an offered drop-off slot", local.Format("2006-01-02 15:04"))
}

// authorizeBooking checks that the actor may act on this particular booking.
// Role permissions per action are checked by the lifecycle table.
func (s *BookingService) authorizeBooking(ctx context.Context, b *models.Booking, actor models.Actor) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
		return nil
	case models.RoleStaff:
		return s.checkWarehouseAccess(ctx, actor, b.WarehouseID)
	case models.RoleCustomer:
		if b.CustomerID != actor.ID {
			return apperror.Authorization("booking %d belongs to another customer", b.ID)
		}
		return nil
	case models.RoleTeamAdmin:
		if b.CustomerID == actor.ID || b.CreatedBy == actor.ID {
			return nil
		}
		ok, err := s.auth.IsTeamAdmin(ctx, actor.ID, b.CustomerID)
		if err != nil {
			return fmt.Errorf("check team admin: %w", err)
		}
		if !ok {
			return apperror.Authorization("booking %d belongs to a user outside your team", b.ID)
		}
		return nil
	default:
		return apperror.Authorization("role %q is not allowed", actor.Role)
	}
}

func (s *BookingService) checkWarehouseAccess(ctx context.Context, actor models.Actor, warehouseID int64) error {
	ok, err := s.auth.HasWarehouseAccess(ctx, actor.ID, warehouseID)
	if err != nil {
		return fmt.Errorf("check warehouse access: %w", err)
	}
	if !ok {
		return apperror.Authorization("staff %d has no access to warehouse %d", actor.ID, warehouseID)
	}
	return nil
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, previous models.Status, action lifecycle.Action, actor models.Actor, reason string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:        b.ID,
		CustomerID:       b.CustomerID,
		CustomerName:     b.CustomerName,
		WarehouseID:      b.WarehouseID,
		BookingType:      string(b.Type()),
		Status:           string(b.Status),
		PreviousStatus:   string(previous),
		Action:           string(action),
		TotalAmount:      b.TotalAmount.StringFixed(2),
		StartDate:        b.StartDate,
		ProposedDate:     b.ProposedStartDate,
		ScheduledDropoff: b.ScheduledDropoff,
		Reason:           reason,
		ChangedByID:      actor.ID,
		ChangedByRole:    string(actor.Role),
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, b *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status models.Status
	if taskType == "update_status" {
		status = b.Status
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, b.ID, b, status); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func lookupError(err error, what string, id int64) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperror.NotFound("%s %d not found", what, id)
	}
	return fmt.Errorf("get %s %d: %w", what, id, err)
}

func availabilityError(err error) error {
	if apperror.KindOf(err) != "" {
		return err
	}
	return apperror.Upstream(err, "availability lookup failed")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
