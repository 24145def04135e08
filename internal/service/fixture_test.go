package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"warehub/internal/availability"
	"warehub/internal/config"
	"warehub/internal/database"
	"warehub/internal/events"
	"warehub/internal/models"
	"warehub/internal/pricing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	warehouseNorth   int64 = 1
	warehouseClosed  int64 = 2
	customerAcme     int64 = 10
	memberBeta       int64 = 20
	teamAdminCarol   int64 = 30
	staffNorth       int64 = 100
	staffElsewhere   int64 = 101
	unknownWarehouse int64 = 99
)

var (
	acme      = models.Actor{ID: customerAcme, Role: models.RoleCustomer}
	beta      = models.Actor{ID: memberBeta, Role: models.RoleCustomer}
	carol     = models.Actor{ID: teamAdminCarol, Role: models.RoleTeamAdmin}
	staff     = models.Actor{ID: staffNorth, Role: models.RoleStaff}
	outsider  = models.Actor{ID: staffElsewhere, Role: models.RoleStaff}
	startDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
)

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) handle(e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db        *database.DB
	bookings  *BookingService
	slots     *TimeSlotService
	approvals *ApprovalService
	events    *recorder
}

// newFixture builds the services on an in-memory database seeded with one
// active and one closed warehouse, two customers, a team and staff.
func newFixture(t *testing.T, mutate ...func(*BookingDeps)) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertWarehouse(ctx, &models.Warehouse{ID: warehouseNorth, Name: "North Dock", Timezone: "UTC", IsActive: true}))
	require.NoError(t, db.UpsertWarehouse(ctx, &models.Warehouse{ID: warehouseClosed, Name: "Old Shed", IsActive: false}))
	require.NoError(t, db.UpsertCustomer(ctx, &models.Customer{ID: customerAcme, Name: "Acme", Email: "ops@acme.test", MembershipTier: models.TierSilver}))
	require.NoError(t, db.UpsertCustomer(ctx, &models.Customer{ID: memberBeta, Name: "Beta", Email: "beta@acme.test", MembershipTier: models.TierGold}))
	require.NoError(t, db.UpsertCustomer(ctx, &models.Customer{ID: teamAdminCarol, Name: "Carol"}))
	require.NoError(t, db.AssignStaff(ctx, staffNorth, warehouseNorth))
	require.NoError(t, db.AddTeamMember(ctx, teamAdminCarol, memberBeta))

	inFee := decimal.RequireFromString("4.00")
	perMonth := decimal.RequireFromString("15.00")
	require.NoError(t, db.SetPricingTable(ctx, &models.PricingTable{
		WarehouseID:    warehouseNorth,
		PalletInFee:    &inFee,
		PalletPerMonth: &perMonth,
		Services: []models.ServiceOffer{
			{ID: "wrap", Name: "Shrink wrap", PricingType: models.PricingPerPallet, BasePrice: decimal.RequireFromString("1.25")},
			{ID: "label", Name: "Labelling", PricingType: models.PricingOneTime, BasePrice: decimal.RequireFromString("30")},
		},
	}))

	provider, err := availability.NewProvider(db, db, config.SchedulingConfig{OpenHour: 8, CloseHour: 12, SlotMinutes: 60, Timezone: "UTC"}, time.Second)
	require.NoError(t, err)

	calc, err := pricing.NewCalculator(pricing.DefaultConfig())
	require.NoError(t, err)

	bus := events.NewEventBus()
	rec := &recorder{}
	bus.Subscribe(events.AllEvents, rec.handle)

	deps := BookingDeps{
		Repo:         db,
		Pricing:      db,
		Warehouses:   db,
		Customers:    db,
		Auth:         db,
		Availability: provider,
		EventBus:     bus,
		Calculator:   calc,
	}
	for _, m := range mutate {
		m(&deps)
	}

	bookings := NewBookingService(deps, &logger)
	return &fixture{
		db:        db,
		bookings:  bookings,
		slots:     NewTimeSlotService(bookings, provider),
		approvals: NewApprovalService(bookings, db, false, &logger),
		events:    rec,
	}
}

func palletRequest(customerID int64, pallets int) BookingRequest {
	return BookingRequest{
		WarehouseID:    warehouseNorth,
		CustomerID:     customerID,
		Type:           models.BookingTypePallet,
		PalletCount:    &pallets,
		StartDate:      startDate,
		DurationMonths: 1,
	}
}

// storeBooking inserts a booking directly in the given status.
func (f *fixture) storeBooking(t *testing.T, status models.Status) *models.Booking {
	t.Helper()
	b := &models.Booking{
		CustomerID:  customerAcme,
		WarehouseID: warehouseNorth,
		CreatedBy:   customerAcme,
		Shape:       models.PalletShape{PalletCount: 3},
		StartDate:   startDate,
		Status:      status,
	}
	require.NoError(t, f.db.CreateBooking(context.Background(), b))
	return b
}
