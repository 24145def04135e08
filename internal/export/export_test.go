package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"warehub/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubSource struct {
	bookings []*models.Booking
	err      error
}

func (s stubSource) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	return s.bookings, s.err
}

var (
	from = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
)

func ledger() []*models.Booking {
	dropoff := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return []*models.Booking{
		{
			ID: 1, CustomerID: 10, CustomerName: "Acme", WarehouseID: 1,
			Shape:            models.PalletShape{PalletCount: 10},
			StartDate:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			Status:           models.StatusConfirmed,
			ScheduledDropoff: &dropoff,
			TotalAmount:      decimal.RequireFromString("180.50"),
		},
		{
			ID: 2, CustomerID: 20, WarehouseID: 1,
			Shape:       models.AreaRentalShape{AreaSqFt: decimal.NewFromInt(35000)},
			StartDate:   time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
			Status:      models.StatusPending,
			TotalAmount: decimal.RequireFromString("8750.25"),
		},
	}
}

func TestBuildWorkbook(t *testing.T) {
	f, err := BuildWorkbook(ledger(), from, to)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	title, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Period: 2025-03-01 - 2025-03-31", title)

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, headers, rows[1])

	assert.Equal(t, "1", rows[2][0])
	assert.Equal(t, "Acme", rows[2][1])
	assert.Equal(t, "pallet", rows[2][3])
	assert.Equal(t, "confirmed", rows[2][8])
	assert.Equal(t, "2025-03-10 09:00", rows[2][9])

	assert.Equal(t, "#20", rows[3][1])
	assert.Equal(t, "area_rental", rows[3][3])
	assert.Equal(t, "35000", rows[3][5])

	total, err := f.GetCellValue(sheetName, "O5")
	require.NoError(t, err)
	assert.Equal(t, "8930.75", total)
}

func TestExporter_Write(t *testing.T) {
	logger := zerolog.Nop()
	e := NewExporter(stubSource{bookings: ledger()}, t.TempDir(), &logger)

	var buf bytes.Buffer
	require.NoError(t, e.Write(context.Background(), &buf, from, to))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	value, err := f.GetCellValue(sheetName, "B3")
	require.NoError(t, err)
	assert.Equal(t, "Acme", value)
}

func TestExporter_SaveFile(t *testing.T) {
	logger := zerolog.Nop()
	dir := filepath.Join(t.TempDir(), "exports")
	e := NewExporter(stubSource{bookings: ledger()}, dir, &logger)

	path, err := e.SaveFile(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bookings_2025-03-01_to_2025-03-31.xlsx"), path)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestExporter_Errors(t *testing.T) {
	logger := zerolog.Nop()

	e := NewExporter(stubSource{err: errors.New("db closed")}, t.TempDir(), &logger)
	assert.Error(t, e.Write(context.Background(), &bytes.Buffer{}, from, to))

	e = NewExporter(stubSource{}, t.TempDir(), &logger)
	assert.Error(t, e.Write(context.Background(), &bytes.Buffer{}, to, from))
}
