package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"warehub/internal/models"

	"github.com/shopspring/decimal"
)

const bookingColumns = `id, customer_id, customer_name, customer_email, warehouse_id, created_by,
        booking_type, pallet_count, area_sq_ft, floor_ref,
        start_date, end_date, duration_months,
        proposed_start_date, proposed_start_time, scheduled_dropoff, time_slot_confirmed_at, paid_at,
        date_change_requested_at, date_change_requested_by,
        membership_tier, volume_discount_percent, membership_discount_percent, free_days, billable_days,
        base_storage_amount, services_amount, total_amount,
        status, version, created_at, updated_at`

// committedStatuses are bookings from payment_pending through active.
var committedStatuses = []interface{}{
	models.StatusPaymentPending, models.StatusPreOrder, models.StatusAwaitingTimeSlot,
	models.StatusConfirmed, models.StatusActive,
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	return db.CreateBookingWithApproval(ctx, booking, nil)
}

// CreateBookingWithApproval stores the booking, its service lines and, when
// given, the pending approval in one transaction.
func (db *DB) CreateBookingWithApproval(ctx context.Context, booking *models.Booking, approval *models.BookingApproval) error {
	if booking.Shape == nil {
		return fmt.Errorf("booking shape is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	palletCount, areaSqFt := shapeColumns(booking.Shape)

	result, err := tx.ExecContext(ctx, `INSERT INTO bookings (
            customer_id, customer_name, customer_email, warehouse_id, created_by,
            booking_type, pallet_count, area_sq_ft, floor_ref,
            start_date, end_date, duration_months,
            membership_tier, volume_discount_percent, membership_discount_percent, free_days, billable_days,
            base_storage_amount, services_amount, total_amount,
            status, version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.CustomerID, booking.CustomerName, booking.CustomerEmail, booking.WarehouseID, booking.CreatedBy,
		booking.Type(), palletCount, areaSqFt, floorRef(booking.Shape),
		booking.StartDate.UTC(), utcPtr(booking.EndDate), booking.DurationMonths,
		booking.MembershipTier, booking.VolumeDiscountPercent, booking.MembershipDiscountPercent,
		booking.FreeDays, booking.BillableDays,
		booking.BaseStorageAmount, booking.ServicesAmount, booking.TotalAmount,
		booking.Status, 1, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := insertServices(ctx, tx, id, booking.Services); err != nil {
		return err
	}

	if approval != nil {
		approval.BookingID = id
		if err := insertApproval(ctx, tx, approval, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.Version = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now
	for i := range booking.Services {
		booking.Services[i].BookingID = id
	}
	return nil
}

func insertServices(ctx context.Context, tx execer, bookingID int64, services []models.BookingService) error {
	for i := range services {
		s := &services[i]
		result, err := tx.ExecContext(ctx, `INSERT INTO booking_services (
                booking_id, service_id, name, pricing_type, base_price, quantity, calculated_price
            ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			bookingID, s.ServiceID, s.Name, s.PricingType, s.BasePrice, s.Quantity, s.CalculatedPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to create booking service %s: %w", s.ServiceID, err)
		}
		if s.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get booking service id: %w", err)
		}
		s.BookingID = bookingID
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	booking.Services, err = db.getBookingServices(ctx, id)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (db *DB) getBookingServices(ctx context.Context, bookingID int64) ([]models.BookingService, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, booking_id, service_id, name, pricing_type, base_price, quantity, calculated_price
              FROM booking_services WHERE booking_id = ? ORDER BY id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking services: %w", err)
	}
	defer rows.Close()

	var services []models.BookingService
	for rows.Next() {
		var s models.BookingService
		if err := rows.Scan(&s.ID, &s.BookingID, &s.ServiceID, &s.Name, &s.PricingType, &s.BasePrice, &s.Quantity, &s.CalculatedPrice); err != nil {
			return nil, fmt.Errorf("failed to scan booking service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// SaveBooking writes the mutable booking fields back. The update only applies
// while the stored row still has the booking's version and expectedStatus;
// otherwise ErrConcurrentModification is returned. On success the booking's
// version is advanced.
func (db *DB) SaveBooking(ctx context.Context, booking *models.Booking, expectedStatus models.Status) error {
	now := time.Now().UTC()
	if err := updateBooking(ctx, db, booking, expectedStatus, now); err != nil {
		return err
	}
	booking.Version++
	booking.UpdatedAt = now
	return nil
}

// RepriceBooking saves a recalculated booking and replaces its service lines.
func (db *DB) RepriceBooking(ctx context.Context, booking *models.Booking, expectedStatus models.Status) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	if err := updateBooking(ctx, tx, booking, expectedStatus, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_services WHERE booking_id = ?`, booking.ID); err != nil {
		return fmt.Errorf("failed to clear booking services: %w", err)
	}
	if err := insertServices(ctx, tx, booking.ID, booking.Services); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reprice: %w", err)
	}

	booking.Version++
	booking.UpdatedAt = now
	return nil
}

func updateBooking(ctx context.Context, ex execer, b *models.Booking, expectedStatus models.Status, now time.Time) error {
	result, err := ex.ExecContext(ctx, `UPDATE bookings SET
            proposed_start_date = ?, proposed_start_time = ?, scheduled_dropoff = ?,
            time_slot_confirmed_at = ?, paid_at = ?,
            date_change_requested_at = ?, date_change_requested_by = ?,
            membership_tier = ?, volume_discount_percent = ?, membership_discount_percent = ?,
            free_days = ?, billable_days = ?,
            base_storage_amount = ?, services_amount = ?, total_amount = ?,
            status = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ? AND status = ?`,
		utcPtr(b.ProposedStartDate), b.ProposedStartTime, utcPtr(b.ScheduledDropoff),
		utcPtr(b.TimeSlotConfirmedAt), utcPtr(b.PaidAt),
		utcPtr(b.DateChangeRequestedAt), b.DateChangeRequestedBy,
		b.MembershipTier, b.VolumeDiscountPercent, b.MembershipDiscountPercent,
		b.FreeDays, b.BillableDays,
		b.BaseStorageAmount, b.ServicesAmount, b.TotalAmount,
		b.Status, now,
		b.ID, b.Version, expectedStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CountActivePallets sums the pallets a customer already holds in committed
// bookings.
func (db *DB) CountActivePallets(ctx context.Context, customerID int64) (int, error) {
	query := `SELECT COALESCE(SUM(pallet_count), 0) FROM bookings
              WHERE customer_id = ? AND booking_type = 'pallet' AND status IN (?, ?, ?, ?, ?)`
	args := append([]interface{}{customerID}, committedStatuses...)

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active pallets: %w", err)
	}
	return count, nil
}

// CountScheduledDropoffs counts confirmed or active bookings at the warehouse
// whose drop-off falls in [from, to).
func (db *DB) CountScheduledDropoffs(ctx context.Context, warehouseID int64, from, to time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM bookings
              WHERE warehouse_id = ? AND status IN (?, ?)
              AND scheduled_dropoff >= ? AND scheduled_dropoff < ?`
	var count int
	err := db.QueryRowContext(ctx, query, warehouseID,
		models.StatusConfirmed, models.StatusActive, from.UTC(), to.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scheduled drop-offs: %w", err)
	}
	return count, nil
}

// GetBookingsByDateRange returns bookings starting within [startDate, endDate].
func (db *DB) GetBookingsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE start_date >= ? AND start_date < ? ORDER BY start_date ASC, id ASC`
	return db.queryBookings(ctx, query, startDate.UTC(), endDate.UTC().AddDate(0, 0, 1))
}

func (db *DB) GetCustomerBookings(ctx context.Context, customerID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE customer_id = ? ORDER BY created_at DESC, id DESC`
	return db.queryBookings(ctx, query, customerID)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b           models.Booking
		bookingType models.BookingType
		palletCount sql.NullInt64
		areaSqFt    decimal.NullDecimal
		floor       string
	)
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.CustomerName, &b.CustomerEmail, &b.WarehouseID, &b.CreatedBy,
		&bookingType, &palletCount, &areaSqFt, &floor,
		&b.StartDate, &b.EndDate, &b.DurationMonths,
		&b.ProposedStartDate, &b.ProposedStartTime, &b.ScheduledDropoff, &b.TimeSlotConfirmedAt, &b.PaidAt,
		&b.DateChangeRequestedAt, &b.DateChangeRequestedBy,
		&b.MembershipTier, &b.VolumeDiscountPercent, &b.MembershipDiscountPercent, &b.FreeDays, &b.BillableDays,
		&b.BaseStorageAmount, &b.ServicesAmount, &b.TotalAmount,
		&b.Status, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	switch bookingType {
	case models.BookingTypePallet:
		b.Shape = models.PalletShape{PalletCount: int(palletCount.Int64)}
	case models.BookingTypeAreaRental:
		b.Shape = models.AreaRentalShape{AreaSqFt: areaSqFt.Decimal, FloorRef: floor}
	default:
		return nil, fmt.Errorf("booking %d has unknown type %q", b.ID, bookingType)
	}
	return &b, nil
}

func shapeColumns(shape models.BookingShape) (palletCount *int, areaSqFt *decimal.Decimal) {
	switch s := shape.(type) {
	case models.PalletShape:
		n := s.PalletCount
		return &n, nil
	case models.AreaRentalShape:
		a := s.AreaSqFt
		return nil, &a
	}
	return nil, nil
}

func floorRef(shape models.BookingShape) string {
	if s, ok := shape.(models.AreaRentalShape); ok {
		return s.FloorRef
	}
	return ""
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
