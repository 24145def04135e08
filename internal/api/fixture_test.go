package api

import (
	"context"
	"testing"
	"time"

	"warehub/internal/availability"
	"warehub/internal/config"
	"warehub/internal/database"
	"warehub/internal/export"
	"warehub/internal/models"
	"warehub/internal/pricing"
	"warehub/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	warehouseNorth int64 = 1
	customerAcme   int64 = 10
	memberBeta     int64 = 20
	staffNorth     int64 = 100
)

var startDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	db  *database.DB
	svc Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertWarehouse(ctx, &models.Warehouse{ID: warehouseNorth, Name: "North Dock", Timezone: "UTC", IsActive: true}))
	require.NoError(t, db.UpsertCustomer(ctx, &models.Customer{ID: customerAcme, Name: "Acme", Email: "ops@acme.test", MembershipTier: models.TierSilver}))
	require.NoError(t, db.UpsertCustomer(ctx, &models.Customer{ID: memberBeta, Name: "Beta", Email: "beta@acme.test"}))
	require.NoError(t, db.AssignStaff(ctx, staffNorth, warehouseNorth))

	inFee := decimal.RequireFromString("4.00")
	perMonth := decimal.RequireFromString("15.00")
	require.NoError(t, db.SetPricingTable(ctx, &models.PricingTable{
		WarehouseID:    warehouseNorth,
		PalletInFee:    &inFee,
		PalletPerMonth: &perMonth,
	}))

	provider, err := availability.NewProvider(db, db, config.SchedulingConfig{OpenHour: 8, CloseHour: 12, SlotMinutes: 60, Timezone: "UTC"}, time.Second)
	require.NoError(t, err)
	calc, err := pricing.NewCalculator(pricing.DefaultConfig())
	require.NoError(t, err)

	bookings := service.NewBookingService(service.BookingDeps{
		Repo:         db,
		Pricing:      db,
		Warehouses:   db,
		Customers:    db,
		Auth:         db,
		Availability: provider,
		Calculator:   calc,
	}, &logger)

	return &fixture{
		db: db,
		svc: Services{
			Bookings:  bookings,
			Slots:     service.NewTimeSlotService(bookings, provider),
			Approvals: service.NewApprovalService(bookings, db, false, &logger),
			Exporter:  export.NewExporter(bookings, t.TempDir(), &logger),
		},
	}
}

func palletRequest(customerID int64, pallets int) service.BookingRequest {
	return service.BookingRequest{
		WarehouseID:    warehouseNorth,
		CustomerID:     customerID,
		Type:           models.BookingTypePallet,
		PalletCount:    &pallets,
		StartDate:      startDate,
		DurationMonths: 1,
	}
}

func (f *fixture) createBooking(t *testing.T) *models.Booking {
	t.Helper()
	b, err := f.svc.Bookings.CreateBooking(context.Background(), palletRequest(customerAcme, 10),
		models.Actor{ID: customerAcme, Role: models.RoleCustomer})
	require.NoError(t, err)
	return b
}
