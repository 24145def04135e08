package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"warehub/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// fakeSheetsAPI answers Sheets REST calls by decoded path and records them.
type fakeSheetsAPI struct {
	mu        sync.Mutex
	calls     []string
	bodies    map[string][]byte
	responses map[string]interface{}
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	key := r.Method + " " + r.URL.Path
	f.calls = append(f.calls, key)
	var body json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.bodies[key] = body
	resp, ok := f.responses[key]
	f.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeSheetsAPI) called(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == key {
			return true
		}
	}
	return false
}

func setupSheets(t *testing.T) (*fakeSheetsAPI, *SheetsService) {
	t.Helper()
	api := &fakeSheetsAPI{bodies: map[string][]byte{}, responses: map[string]interface{}{}}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return api, newSheetsService(srv, "ledger_tid", "Bookings", nil)
}

const valuesPath = "/v4/spreadsheets/ledger_tid/values/"

func sampleBooking(id int64) *models.Booking {
	ts := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return &models.Booking{
		ID:           id,
		CustomerID:   10,
		CustomerName: "Acme",
		WarehouseID:  1,
		Shape:        models.PalletShape{PalletCount: 12},
		StartDate:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Status:       models.StatusConfirmed,
		TotalAmount:  decimal.RequireFromString("213.75"),
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
}

func TestBookingRowValues(t *testing.T) {
	b := sampleBooking(123)
	dropoff := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	b.ScheduledDropoff = &dropoff

	assert.Equal(t, []interface{}{
		int64(123), int64(10), "Acme", int64(1), "pallet", 12, "",
		"2025-03-10", "confirmed", "213.75", "2025-03-10 09:00:00",
		"2025-03-01 09:30:00", "2025-03-01 09:30:00",
	}, bookingRowValues(b))
	assert.Len(t, ledgerHeaders, len(bookingRowValues(b)))

	area := &models.Booking{ID: 5, Shape: models.AreaRentalShape{AreaSqFt: decimal.NewFromInt(35000)}}
	values := bookingRowValues(area)
	assert.Equal(t, "area_rental", values[4])
	assert.Equal(t, 0, values[5])
	assert.Equal(t, "35000", values[6])
}

func TestRowFromRange(t *testing.T) {
	row, ok := rowFromRange("Bookings!A10:M10")
	assert.True(t, ok)
	assert.Equal(t, 10, row)

	row, ok = rowFromRange("B7")
	assert.True(t, ok)
	assert.Equal(t, 7, row)

	_, ok = rowFromRange("Bookings!A:A")
	assert.False(t, ok)
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	api, s := setupSheets(t)
	api.responses["GET "+valuesPath+"Bookings!A:A"] = sheets.ValueRange{
		Values: [][]interface{}{{"ID"}, {"123"}, {}, {float64(456)}},
	}

	require.NoError(t, s.WarmUpCache(context.Background()))

	row, ok := s.getCachedRow(123)
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, ok = s.getCachedRow(456)
	assert.True(t, ok)
	assert.Equal(t, 4, row)
}

func TestSheetsService_UpsertBooking(t *testing.T) {
	t.Run("UpdatesCachedRow", func(t *testing.T) {
		api, s := setupSheets(t)
		s.setCachedRow(123, 2)
		api.responses["PUT "+valuesPath+"Bookings!A2:M2"] = sheets.UpdateValuesResponse{}

		require.NoError(t, s.UpsertBooking(context.Background(), sampleBooking(123)))
		assert.True(t, api.called("PUT "+valuesPath+"Bookings!A2:M2"))
	})

	t.Run("AppendsMissingRow", func(t *testing.T) {
		api, s := setupSheets(t)
		api.responses["GET "+valuesPath+"Bookings!A:A"] = sheets.ValueRange{Values: [][]interface{}{{"ID"}}}
		api.responses["POST "+valuesPath+"Bookings!A:A:append"] = sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Bookings!A2:M2"},
		}

		require.NoError(t, s.UpsertBooking(context.Background(), sampleBooking(789)))
		row, ok := s.getCachedRow(789)
		assert.True(t, ok)
		assert.Equal(t, 2, row)
	})

	t.Run("NilBooking", func(t *testing.T) {
		_, s := setupSheets(t)
		assert.Error(t, s.UpsertBooking(context.Background(), nil))
	})
}

func TestSheetsService_UpdateBookingStatus(t *testing.T) {
	api, s := setupSheets(t)
	s.setCachedRow(42, 5)
	api.responses["PUT "+valuesPath+"Bookings!I5:I5"] = sheets.UpdateValuesResponse{}
	api.responses["PUT "+valuesPath+"Bookings!M5:M5"] = sheets.UpdateValuesResponse{}

	require.NoError(t, s.UpdateBookingStatus(context.Background(), 42, models.StatusCancelled))
	assert.JSONEq(t, `{"values":[["cancelled"]]}`, string(api.bodies["PUT "+valuesPath+"Bookings!I5:I5"]))
	assert.True(t, api.called("PUT "+valuesPath+"Bookings!M5:M5"))
}

func TestSheetsService_FindBookingRow_NotFound(t *testing.T) {
	api, s := setupSheets(t)
	api.responses["GET "+valuesPath+"Bookings!A:A"] = sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"1"}}}

	_, err := s.FindBookingRow(context.Background(), 2)
	assert.ErrorIs(t, err, ErrRowNotFound)

	_, err = s.FindBookingRow(context.Background(), 0)
	assert.Error(t, err)
}

func TestSheetsService_DeleteBookingRow(t *testing.T) {
	api, s := setupSheets(t)
	s.setCachedRow(456, 3)
	api.responses["POST "+valuesPath+"Bookings!A3:M3:clear"] = sheets.ClearValuesResponse{}

	require.NoError(t, s.DeleteBookingRow(context.Background(), 456))
	_, ok := s.getCachedRow(456)
	assert.False(t, ok)
}

func TestSheetsService_ReplaceBookingsSheet(t *testing.T) {
	api, s := setupSheets(t)
	api.responses["POST "+valuesPath+"Bookings!A1:Z:clear"] = sheets.ClearValuesResponse{}
	api.responses["PUT "+valuesPath+"Bookings!A1"] = sheets.UpdateValuesResponse{}

	err := s.ReplaceBookingsSheet(context.Background(), []*models.Booking{sampleBooking(7), sampleBooking(9)})
	require.NoError(t, err)

	row, _ := s.getCachedRow(7)
	assert.Equal(t, 2, row)
	row, _ = s.getCachedRow(9)
	assert.Equal(t, 3, row)

	var body sheets.ValueRange
	require.NoError(t, json.Unmarshal(api.bodies["PUT "+valuesPath+"Bookings!A1"], &body))
	assert.Len(t, body.Values, 3)
	assert.Equal(t, "ID", body.Values[0][0])
}

func TestSheetsService_TestConnection(t *testing.T) {
	api, s := setupSheets(t)
	assert.Error(t, s.TestConnection(context.Background()))

	api.responses["GET "+valuesPath+"Bookings!A1"] = sheets.ValueRange{}
	assert.NoError(t, s.TestConnection(context.Background()))
}
