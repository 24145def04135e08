package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"warehub/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var headers = []string{
	"ID", "Customer", "Warehouse", "Type", "Pallets", "Area sq ft", "Start", "End",
	"Status", "Drop-off", "Free days", "Billable days", "Storage", "Services", "Total",
}

// BookingSource loads the bookings of an export period.
type BookingSource interface {
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
}

// Exporter renders booking ledgers as xlsx workbooks.
type Exporter struct {
	source BookingSource
	dir    string
	logger *zerolog.Logger
}

func NewExporter(source BookingSource, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{source: source, dir: dir, logger: logger}
}

// Write streams the workbook for bookings starting between from and to.
func (e *Exporter) Write(ctx context.Context, w io.Writer, from, to time.Time) error {
	f, err := e.build(ctx, from, to)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveFile writes the workbook into the export directory and returns its path.
func (e *Exporter) SaveFile(ctx context.Context, from, to time.Time) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f, err := e.build(ctx, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(e.dir, FileName(from, to))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().Str("file_path", path).Msg("Excel file created")
	return path, nil
}

func (e *Exporter) build(ctx context.Context, from, to time.Time) (*excelize.File, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("export range ends before it starts")
	}
	bookings, err := e.source.GetBookingsByDateRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	return BuildWorkbook(bookings, from, to)
}

// FileName is the download name of an export period.
func FileName(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// BuildWorkbook lays out one row per booking under a period title and a
// header row, followed by a totals row.
func BuildWorkbook(bookings []*models.Booking, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s", from.Format("2006-01-02"), to.Format("2006-01-02")))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	styles := statusStyles(f)
	total := decimal.Zero
	row := 3
	for _, b := range bookings {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, rowValues(b)); err != nil {
			f.Close()
			return nil, fmt.Errorf("write booking %d: %w", b.ID, err)
		}
		if style, ok := styles[b.Status]; ok {
			statusCell, _ := excelize.CoordinatesToCellName(9, row)
			_ = f.SetCellStyle(sheetName, statusCell, statusCell, style)
		}
		total = total.Add(b.TotalAmount)
		row++
	}

	totalLabel, _ := excelize.CoordinatesToCellName(len(headers)-1, row)
	totalCell, _ := excelize.CoordinatesToCellName(len(headers), row)
	_ = f.SetCellValue(sheetName, totalLabel, "Total")
	_ = f.SetCellValue(sheetName, totalCell, total.Round(2).InexactFloat64())

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", lastCol, 16)
	return f, nil
}

func rowValues(b *models.Booking) *[]interface{} {
	end := ""
	if b.EndDate != nil {
		end = b.EndDate.Format("2006-01-02")
	}
	dropoff := ""
	if b.ScheduledDropoff != nil {
		dropoff = b.ScheduledDropoff.UTC().Format("2006-01-02 15:04")
	}
	customer := b.CustomerName
	if customer == "" {
		customer = fmt.Sprintf("#%d", b.CustomerID)
	}

	values := []interface{}{
		b.ID,
		customer,
		b.WarehouseID,
		string(b.Type()),
		b.PalletCount(),
		b.AreaSqFt().InexactFloat64(),
		b.StartDate.Format("2006-01-02"),
		end,
		string(b.Status),
		dropoff,
		b.FreeDays,
		b.BillableDays,
		b.BaseStorageAmount.InexactFloat64(),
		b.ServicesAmount.InexactFloat64(),
		b.TotalAmount.InexactFloat64(),
	}
	return &values
}

func statusStyles(f *excelize.File) map[models.Status]int {
	fills := map[models.Status]string{
		models.StatusConfirmed: "#C6EFCE",
		models.StatusActive:    "#C6EFCE",
		models.StatusCompleted: "#D9D9D9",
		models.StatusCancelled: "#FFC7CE",
		models.StatusRejected:  "#FFC7CE",
	}
	out := make(map[models.Status]int, len(fills))
	for status, color := range fills {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err == nil {
			out[status] = id
		}
	}
	return out
}
