package domain

import (
	"context"
	"time"

	"warehub/internal/models"
)

type Repository interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	CreateBookingWithApproval(ctx context.Context, booking *models.Booking, approval *models.BookingApproval) error
	SaveBooking(ctx context.Context, booking *models.Booking, expectedStatus models.Status) error
	RepriceBooking(ctx context.Context, booking *models.Booking, expectedStatus models.Status) error
	CountActivePallets(ctx context.Context, customerID int64) (int, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	GetCustomerBookings(ctx context.Context, customerID int64) ([]*models.Booking, error)
}

type ApprovalRepository interface {
	CreateApproval(ctx context.Context, approval *models.BookingApproval) error
	GetApproval(ctx context.Context, id int64) (*models.BookingApproval, error)
	GetPendingApproval(ctx context.Context, bookingID int64) (*models.BookingApproval, error)
	RespondApproval(ctx context.Context, approval *models.BookingApproval) error
	ListApprovalsByApprover(ctx context.Context, approverID int64, status models.ApprovalStatus) ([]*models.BookingApproval, error)
	ListApprovalsByRequester(ctx context.Context, requesterID int64, status models.ApprovalStatus) ([]*models.BookingApproval, error)
	GetApprovalStats(ctx context.Context, userID int64) (*models.ApprovalStats, error)
}

// PricingSource provides per-warehouse reference data for pricing.
type PricingSource interface {
	GetWarehousePricing(ctx context.Context, warehouseID int64) (*models.PricingTable, error)
	GetFreeStorageRules(ctx context.Context, warehouseID int64) ([]models.FreeStorageRule, error)
}

type WarehouseDirectory interface {
	GetWarehouse(ctx context.Context, id int64) (*models.Warehouse, error)
}

type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
}

type AvailabilityProvider interface {
	GetAvailableSlots(ctx context.Context, warehouseID int64, date time.Time) ([]models.Slot, error)
}

// Authorizer answers the role questions the booking core cannot decide on
// its own.
type Authorizer interface {
	HasWarehouseAccess(ctx context.Context, staffID, warehouseID int64) (bool, error)
	IsTeamAdmin(ctx context.Context, teamAdminID, memberID int64) (bool, error)
}

// PricingCache holds warehouse pricing snapshots between requests.
type PricingCache interface {
	GetPricing(ctx context.Context, warehouseID int64) (*models.PricingSnapshot, error)
	SetPricing(ctx context.Context, snapshot *models.PricingSnapshot) error
	InvalidatePricing(ctx context.Context, warehouseID int64) error
	CheckRateLimit(ctx context.Context, actorID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status models.Status) error
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status models.Status) error
}
