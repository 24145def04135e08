package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"warehub/internal/models"

	"github.com/mattn/go-sqlite3"
)

const approvalColumns = `id, booking_id, requester_id, approver_id, status, message, response_note, created_at, responded_at`

func (db *DB) CreateApproval(ctx context.Context, approval *models.BookingApproval) error {
	return insertApproval(ctx, db, approval, time.Now().UTC())
}

func insertApproval(ctx context.Context, ex execer, a *models.BookingApproval, now time.Time) error {
	if a.Status == "" {
		a.Status = models.ApprovalPending
	}
	result, err := ex.ExecContext(ctx, `INSERT INTO booking_approvals (
            booking_id, requester_id, approver_id, status, message, created_at
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		a.BookingID, a.RequesterID, a.ApproverID, a.Status, a.Message, now,
	)
	if isUniqueViolation(err) {
		return ErrPendingApprovalExists
	}
	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}
	if a.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.CreatedAt = now
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (db *DB) GetApproval(ctx context.Context, id int64) (*models.BookingApproval, error) {
	a, err := scanApproval(db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM booking_approvals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return a, nil
}

// GetPendingApproval returns the live approval of a booking or ErrNotFound.
func (db *DB) GetPendingApproval(ctx context.Context, bookingID int64) (*models.BookingApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM booking_approvals WHERE booking_id = ? AND status = ?`
	a, err := scanApproval(db.QueryRowContext(ctx, query, bookingID, models.ApprovalPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending approval: %w", err)
	}
	return a, nil
}

// RespondApproval records a decision on a still pending approval.
func (db *DB) RespondApproval(ctx context.Context, approval *models.BookingApproval) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `UPDATE booking_approvals
            SET status = ?, response_note = ?, responded_at = ?
            WHERE id = ? AND status = ?`,
		approval.Status, approval.ResponseNote, now, approval.ID, models.ApprovalPending,
	)
	if err != nil {
		return fmt.Errorf("failed to respond to approval: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	approval.RespondedAt = &now
	return nil
}

// ListApprovalsByApprover returns approvals addressed to the user, optionally
// restricted to one status.
func (db *DB) ListApprovalsByApprover(ctx context.Context, approverID int64, status models.ApprovalStatus) ([]*models.BookingApproval, error) {
	return db.listApprovals(ctx, "approver_id", approverID, status)
}

func (db *DB) ListApprovalsByRequester(ctx context.Context, requesterID int64, status models.ApprovalStatus) ([]*models.BookingApproval, error) {
	return db.listApprovals(ctx, "requester_id", requesterID, status)
}

func (db *DB) listApprovals(ctx context.Context, column string, userID int64, status models.ApprovalStatus) ([]*models.BookingApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM booking_approvals WHERE ` + column + ` = ?`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.BookingApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

func (db *DB) GetApprovalStats(ctx context.Context, userID int64) (*models.ApprovalStats, error) {
	stats := &models.ApprovalStats{UserID: userID}
	if err := db.countApprovals(ctx, "approver_id", userID, &stats.AsApprover); err != nil {
		return nil, err
	}
	if err := db.countApprovals(ctx, "requester_id", userID, &stats.AsRequester); err != nil {
		return nil, err
	}
	return stats, nil
}

func (db *DB) countApprovals(ctx context.Context, column string, userID int64, counts *models.ApprovalCounts) error {
	rows, err := db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM booking_approvals WHERE `+column+` = ? GROUP BY status`, userID)
	if err != nil {
		return fmt.Errorf("failed to count approvals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.ApprovalStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return fmt.Errorf("failed to scan approval count: %w", err)
		}
		switch status {
		case models.ApprovalPending:
			counts.Pending = n
		case models.ApprovalApproved:
			counts.Approved = n
		case models.ApprovalRejected:
			counts.Rejected = n
		}
	}
	return rows.Err()
}

func scanApproval(row rowScanner) (*models.BookingApproval, error) {
	var a models.BookingApproval
	err := row.Scan(&a.ID, &a.BookingID, &a.RequesterID, &a.ApproverID, &a.Status,
		&a.Message, &a.ResponseNote, &a.CreatedAt, &a.RespondedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
