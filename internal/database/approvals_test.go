package database

import (
	"context"
	"testing"

	"warehub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBookingWithApproval(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seedWarehouse(t, db)
	ctx := context.Background()

	b := newPalletBooking(3)
	b.CreatedBy = 50
	approval := &models.BookingApproval{RequesterID: 50, ApproverID: 10, Message: "please approve"}
	require.NoError(t, db.CreateBookingWithApproval(ctx, b, approval))

	assert.Equal(t, b.ID, approval.BookingID)
	assert.Equal(t, models.ApprovalPending, approval.Status)

	live, err := db.GetPendingApproval(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.ID, live.ID)
	assert.Equal(t, "please approve", live.Message)

	// a second live approval for the same booking violates the partial index
	err = db.CreateApproval(ctx, &models.BookingApproval{BookingID: b.ID, RequesterID: 50, ApproverID: 10})
	assert.ErrorIs(t, err, ErrPendingApprovalExists)
}

func TestCreateBookingWithApproval_RollsBack(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seedWarehouse(t, db)
	ctx := context.Background()

	first := newPalletBooking(1)
	require.NoError(t, db.CreateBookingWithApproval(ctx, first, &models.BookingApproval{RequesterID: 50, ApproverID: 10}))

	bookingsBefore, err := db.GetCustomerBookings(ctx, 10)
	require.NoError(t, err)

	// unknown warehouse breaks the foreign key, nothing must be left behind
	broken := newPalletBooking(1)
	broken.WarehouseID = 404
	err = db.CreateBookingWithApproval(ctx, broken, &models.BookingApproval{RequesterID: 50, ApproverID: 10})
	require.Error(t, err)

	bookingsAfter, err := db.GetCustomerBookings(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, bookingsAfter, len(bookingsBefore))

	requested, err := db.ListApprovalsByRequester(ctx, 50, "")
	require.NoError(t, err)
	assert.Len(t, requested, 1)
}

func TestRespondApproval(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seedWarehouse(t, db)
	ctx := context.Background()

	b := newPalletBooking(3)
	approval := &models.BookingApproval{RequesterID: 50, ApproverID: 10}
	require.NoError(t, db.CreateBookingWithApproval(ctx, b, approval))

	approval.Status = models.ApprovalApproved
	approval.ResponseNote = "ok"
	require.NoError(t, db.RespondApproval(ctx, approval))
	assert.NotNil(t, approval.RespondedAt)

	got, err := db.GetApproval(ctx, approval.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, got.Status)
	assert.Equal(t, "ok", got.ResponseNote)
	require.NotNil(t, got.RespondedAt)

	approval.Status = models.ApprovalRejected
	assert.ErrorIs(t, db.RespondApproval(ctx, approval), ErrConcurrentModification)

	_, err = db.GetPendingApproval(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetApproval(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApprovalListingAndStats(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seedWarehouse(t, db)
	ctx := context.Background()

	decisions := []models.ApprovalStatus{models.ApprovalPending, models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected}
	for _, decision := range decisions {
		b := newPalletBooking(1)
		a := &models.BookingApproval{RequesterID: 50, ApproverID: 10}
		require.NoError(t, db.CreateBookingWithApproval(ctx, b, a))
		if decision != models.ApprovalPending {
			a.Status = decision
			require.NoError(t, db.RespondApproval(ctx, a))
		}
	}

	pending, err := db.ListApprovalsByApprover(ctx, 10, models.ApprovalPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	all, err := db.ListApprovalsByApprover(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	requested, err := db.ListApprovalsByRequester(ctx, 50, "")
	require.NoError(t, err)
	assert.Len(t, requested, 4)

	none, err := db.ListApprovalsByRequester(ctx, 10, "")
	require.NoError(t, err)
	assert.Empty(t, none)

	stats, err := db.GetApprovalStats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalCounts{Pending: 2, Approved: 1, Rejected: 1}, stats.AsApprover)
	assert.Equal(t, models.ApprovalCounts{}, stats.AsRequester)

	stats, err = db.GetApprovalStats(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.AsRequester.Pending)
}
