package worker

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"warehub/internal/database"
	"warehub/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSheets struct {
	mu          sync.Mutex
	err         error
	upserts     []int64
	statuses    map[int64]models.Status
	deleted     []int64
	replaced    [][]*models.Booking
	upsertCalls int
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{statuses: map[int64]models.Status{}}
}

func (f *fakeSheets) UpsertBooking(ctx context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, b.ID)
	return nil
}

func (f *fakeSheets) UpdateBookingStatus(ctx context.Context, id int64, status models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeSheets) ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.replaced = append(f.replaced, bookings)
	return nil
}

func (f *fakeSheets) DeleteBookingRow(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestWorker(t *testing.T, sheets *fakeSheets, retry RetryPolicy) (*SheetsWorker, *database.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewSheetsWorker(db, db, sheets, nil, retry, nil), db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	require.NoError(t, row.Scan(&status, &retryCount, &nextRetry))
	return status, retryCount, nextRetry
}

func testBooking(id int64) *models.Booking {
	return &models.Booking{
		ID:          id,
		CustomerID:  10,
		WarehouseID: 1,
		Shape:       models.PalletShape{PalletCount: 4},
		StartDate:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Status:      models.StatusPending,
	}
}

func TestProcessTask_Success(t *testing.T) {
	sheets := newFakeSheets()
	w, db := newTestWorker(t, sheets, RetryPolicy{})
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, TaskUpsert, 1, testBooking(1), ""))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)

	w.processTask(ctx, &task)

	status, retries, next := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, database.SyncCompleted, status)
	assert.Zero(t, retries)
	assert.False(t, next.Valid)
	assert.Equal(t, []int64{1}, sheets.upserts)
}

func TestProcessTask_Retry(t *testing.T) {
	sheets := newFakeSheets()
	sheets.err = errors.New("quota exceeded")
	w, db := newTestWorker(t, sheets, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second})
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, TaskUpsert, 2, testBooking(2), ""))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	status, retries, next := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, database.SyncRetry, status)
	assert.Equal(t, 1, retries)
	require.True(t, next.Valid)
	assert.True(t, next.Time.After(time.Now()))
}

func TestProcessTask_Fail(t *testing.T) {
	sheets := newFakeSheets()
	sheets.err = errors.New("fatal")
	w, db := newTestWorker(t, sheets, RetryPolicy{MaxRetries: 1})
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, TaskUpsert, 3, testBooking(3), ""))
	task, _ := w.tryLocalQueue()
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, database.SyncFailed, status)

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "fatal", *failed[0].LastError)
}

func TestProcessTask_BadPayload(t *testing.T) {
	w, db := newTestWorker(t, newFakeSheets(), RetryPolicy{})
	ctx := context.Background()

	task := models.SyncTask{TaskType: TaskUpsert, BookingID: 4, Payload: "not json"}
	require.NoError(t, db.CreateSyncTask(ctx, &task))
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, database.SyncFailed, status)
}

func TestEnqueueTask_Validation(t *testing.T) {
	w, _ := newTestWorker(t, newFakeSheets(), RetryPolicy{})
	ctx := context.Background()

	assert.Error(t, w.EnqueueTask(ctx, "", 1, nil, ""))
	assert.Error(t, w.EnqueueTask(ctx, TaskUpsert, 0, nil, ""))
	// the id is taken from the booking when omitted
	assert.NoError(t, w.EnqueueTask(ctx, TaskUpsert, 0, testBooking(8), ""))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, int64(8), task.BookingID)
}

func TestHandleSheetTask(t *testing.T) {
	sheets := newFakeSheets()
	w, db := newTestWorker(t, sheets, RetryPolicy{})
	ctx := context.Background()

	t.Run("UpdateStatus", func(t *testing.T) {
		err := w.handleSheetTask(ctx, TaskUpdateStatus, sheetTaskPayload{BookingID: 5, Status: models.StatusCancelled})
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, sheets.statuses[5])

		assert.Error(t, w.handleSheetTask(ctx, TaskUpdateStatus, sheetTaskPayload{BookingID: 5}))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, w.handleSheetTask(ctx, TaskDelete, sheetTaskPayload{BookingID: 6}))
		assert.Equal(t, []int64{6}, sheets.deleted)
	})

	t.Run("UpsertWithoutBooking", func(t *testing.T) {
		assert.Error(t, w.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{BookingID: 6}))
	})

	t.Run("SyncLedger", func(t *testing.T) {
		require.NoError(t, db.UpsertCustomer(ctx, &models.Customer{ID: 10, Name: "Acme"}))
		require.NoError(t, db.UpsertWarehouse(ctx, &models.Warehouse{ID: 1, Name: "North", IsActive: true}))
		stored := testBooking(0)
		stored.CreatedBy = 10
		require.NoError(t, db.CreateBooking(ctx, stored))

		from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, w.EnqueueLedgerSync(ctx, from, to))
		task, ok := w.tryLocalQueue()
		require.True(t, ok)
		assert.Equal(t, TaskSyncLedger, task.TaskType)

		w.processTask(ctx, &task)
		require.Len(t, sheets.replaced, 1)
		require.Len(t, sheets.replaced[0], 1)
		assert.Equal(t, stored.ID, sheets.replaced[0][0].ID)

		assert.Error(t, w.EnqueueLedgerSync(ctx, to, from))
	})

	t.Run("Unknown", func(t *testing.T) {
		assert.Error(t, w.handleSheetTask(ctx, "archive", sheetTaskPayload{BookingID: 1}))
	})
}

func TestPollOnce_PicksUpPersistedTasks(t *testing.T) {
	sheets := newFakeSheets()
	w, db := newTestWorker(t, sheets, RetryPolicy{})
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, TaskUpsert, 11, testBooking(11), ""))
	// drain the memory queue so only the durable copy remains
	_, ok := w.tryLocalQueue()
	require.True(t, ok)

	assert.Equal(t, 1, w.pollOnce(ctx))
	assert.Equal(t, []int64{11}, sheets.upserts)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sheets := newFakeSheets()
	sheets.err = errors.New("fatal")
	db := newTestDB(t)
	w := NewSheetsWorker(db, db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, TaskUpsert, 21, testBooking(21), ""))
	_, ok := w.tryLocalQueue()
	assert.False(t, ok, "redis takes the task when available")

	task, ok := w.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(21), task.BookingID)

	w.processTask(ctx, &task)
	dead, err := client.LLen(ctx, w.deadLetterKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestStart_StopsOnCancel(t *testing.T) {
	sheets := newFakeSheets()
	w, _ := newTestWorker(t, sheets, RetryPolicy{})
	w.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.EnqueueTask(ctx, TaskUpsert, 31, testBooking(31), ""))

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		sheets.mu.Lock()
		defer sheets.mu.Unlock()
		return sheets.upsertCalls >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(0))
}
