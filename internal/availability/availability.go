// Package availability offers drop-off slots from the warehouse opening
// hours and the bookings already scheduled.
package availability

import (
	"context"
	"errors"
	"time"

	"warehub/internal/apperror"
	"warehub/internal/config"
	"warehub/internal/database"
	"warehub/internal/domain"
	"warehub/internal/models"
)

// DropoffCounter counts confirmed or active drop-offs in [from, to).
type DropoffCounter interface {
	CountScheduledDropoffs(ctx context.Context, warehouseID int64, from, to time.Time) (int, error)
}

type Provider struct {
	bookings   DropoffCounter
	warehouses domain.WarehouseDirectory
	cfg        config.SchedulingConfig
	defaultLoc *time.Location
	timeout    time.Duration
}

func NewProvider(bookings DropoffCounter, warehouses domain.WarehouseDirectory, cfg config.SchedulingConfig, timeout time.Duration) (*Provider, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return &Provider{
		bookings:   bookings,
		warehouses: warehouses,
		cfg:        cfg,
		defaultLoc: loc,
		timeout:    timeout,
	}, nil
}

// GetAvailableSlots returns the slots of the calendar day of date, read in
// date's own location, laid out in the warehouse zone.
//
// A single confirmed or active drop-off anywhere on that day marks every
// slot of the day unavailable. There is no per-slot capacity.
func (p *Provider) GetAvailableSlots(ctx context.Context, warehouseID int64, date time.Time) ([]models.Slot, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	warehouse, err := p.warehouses.GetWarehouse(ctx, warehouseID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperror.NotFound("warehouse %d not found", warehouseID)
	}
	if err != nil {
		return nil, apperror.Upstream(err, "warehouse lookup failed")
	}

	loc := warehouse.Location(p.defaultLoc)
	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	booked, err := p.bookings.CountScheduledDropoffs(ctx, warehouseID, dayStart, dayEnd)
	if err != nil {
		return nil, apperror.Upstream(err, "availability lookup failed")
	}

	step := time.Duration(p.cfg.SlotMinutes) * time.Minute
	if step <= 0 {
		step = time.Hour
	}
	open := time.Date(y, m, d, p.cfg.OpenHour, 0, 0, 0, loc)
	closing := time.Date(y, m, d, p.cfg.CloseHour, 0, 0, 0, loc)

	var slots []models.Slot
	for start := open; start.Before(closing); start = start.Add(step) {
		slots = append(slots, models.Slot{
			Start:     start,
			End:       start.Add(step),
			Available: booked == 0,
		})
	}
	return slots, nil
}
