package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrPendingApprovalExists  = errors.New("booking already has a pending approval")
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := db.ensureBookingVersionColumn(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS customers (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL DEFAULT '',
            membership_tier TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS warehouses (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            timezone TEXT NOT NULL DEFAULT 'UTC',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS pricing_tables (
            warehouse_id INTEGER PRIMARY KEY REFERENCES warehouses(id),
            pallet_in_fee TEXT,
            pallet_per_day TEXT,
            pallet_per_month TEXT,
            area_annual_per_sqft TEXT,
            min_area_sq_ft TEXT,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS service_offers (
            warehouse_id INTEGER NOT NULL REFERENCES warehouses(id),
            service_id TEXT NOT NULL,
            name TEXT NOT NULL,
            pricing_type TEXT NOT NULL,
            base_price TEXT NOT NULL,
            PRIMARY KEY (warehouse_id, service_id)
        )`,
		`CREATE TABLE IF NOT EXISTS free_storage_rules (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            warehouse_id INTEGER NOT NULL REFERENCES warehouses(id),
            kind TEXT NOT NULL,
            free_days INTEGER NOT NULL,
            per_billed_days INTEGER NOT NULL DEFAULT 0,
            min_stay_days INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS warehouse_staff (
            user_id INTEGER NOT NULL,
            warehouse_id INTEGER NOT NULL REFERENCES warehouses(id),
            PRIMARY KEY (user_id, warehouse_id)
        )`,
		`CREATE TABLE IF NOT EXISTS team_members (
            team_admin_id INTEGER NOT NULL,
            member_id INTEGER NOT NULL,
            PRIMARY KEY (team_admin_id, member_id)
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            customer_id INTEGER NOT NULL,
            customer_name TEXT NOT NULL DEFAULT '',
            customer_email TEXT NOT NULL DEFAULT '',
            warehouse_id INTEGER NOT NULL REFERENCES warehouses(id),
            created_by INTEGER NOT NULL,
            booking_type TEXT NOT NULL,
            pallet_count INTEGER,
            area_sq_ft TEXT,
            floor_ref TEXT NOT NULL DEFAULT '',
            start_date DATETIME NOT NULL,
            end_date DATETIME,
            duration_months INTEGER NOT NULL DEFAULT 0,
            proposed_start_date DATETIME,
            proposed_start_time TEXT NOT NULL DEFAULT '',
            scheduled_dropoff DATETIME,
            time_slot_confirmed_at DATETIME,
            paid_at DATETIME,
            date_change_requested_at DATETIME,
            date_change_requested_by INTEGER,
            membership_tier TEXT NOT NULL DEFAULT '',
            volume_discount_percent TEXT NOT NULL DEFAULT '0',
            membership_discount_percent TEXT NOT NULL DEFAULT '0',
            free_days INTEGER NOT NULL DEFAULT 0,
            billable_days INTEGER NOT NULL DEFAULT 0,
            base_storage_amount TEXT NOT NULL DEFAULT '0',
            services_amount TEXT NOT NULL DEFAULT '0',
            total_amount TEXT NOT NULL DEFAULT '0',
            status TEXT NOT NULL DEFAULT 'pending',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            CHECK ((booking_type = 'pallet' AND area_sq_ft IS NULL) OR
                   (booking_type = 'area_rental' AND pallet_count IS NULL))
        )`,
		`CREATE TABLE IF NOT EXISTS booking_services (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            service_id TEXT NOT NULL,
            name TEXT NOT NULL,
            pricing_type TEXT NOT NULL,
            base_price TEXT NOT NULL,
            quantity INTEGER NOT NULL,
            calculated_price TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS booking_approvals (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            requester_id INTEGER NOT NULL,
            approver_id INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            message TEXT NOT NULL DEFAULT '',
            response_note TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            responded_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_warehouse_dropoff ON bookings(warehouse_id, scheduled_dropoff)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_services_booking ON booking_services(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_approver ON booking_approvals(approver_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_requester ON booking_approvals(requester_id, status)`,
		// одна живая заявка на согласование на бронь
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_approvals_live ON booking_approvals(booking_id) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// ensureBookingVersionColumn adds the optimistic locking column to databases
// created before it existed.
func (db *DB) ensureBookingVersionColumn() error {
	_, err := db.Exec(`ALTER TABLE bookings ADD COLUMN version INTEGER NOT NULL DEFAULT 1`)
	if err != nil && !strings.Contains(err.Error(), "duplicate column") {
		return fmt.Errorf("failed to add version column: %w", err)
	}
	return nil
}
