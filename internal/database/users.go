package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"warehub/internal/models"
)

func (db *DB) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO customers (id, name, email, membership_tier, created_at)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                email = excluded.email,
                membership_tier = excluded.membership_tier`,
		c.ID, c.Name, c.Email, c.MembershipTier, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

func (db *DB) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	err := db.QueryRowContext(ctx, `SELECT id, name, email, membership_tier, created_at FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.MembershipTier, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

func (db *DB) AssignStaff(ctx context.Context, userID, warehouseID int64) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO warehouse_staff (user_id, warehouse_id) VALUES (?, ?)`, userID, warehouseID)
	if err != nil {
		return fmt.Errorf("failed to assign staff: %w", err)
	}
	return nil
}

// HasWarehouseAccess is the one lookup deciding whether a staff member may act
// on a warehouse's bookings.
func (db *DB) HasWarehouseAccess(ctx context.Context, userID, warehouseID int64) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM warehouse_staff WHERE user_id = ? AND warehouse_id = ?)`,
		userID, warehouseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check warehouse access: %w", err)
	}
	return exists, nil
}

func (db *DB) AddTeamMember(ctx context.Context, teamAdminID, memberID int64) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO team_members (team_admin_id, member_id) VALUES (?, ?)`, teamAdminID, memberID)
	if err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}
	return nil
}

func (db *DB) IsTeamAdmin(ctx context.Context, teamAdminID, memberID int64) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM team_members WHERE team_admin_id = ? AND member_id = ?)`,
		teamAdminID, memberID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check team membership: %w", err)
	}
	return exists, nil
}
