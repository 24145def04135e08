package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BookingShape is the physical shape of a booking. Only PalletShape and
// AreaRentalShape implement it.
type BookingShape interface {
	Type() BookingType
	isBookingShape()
}

// PalletShape is a pallet storage booking.
type PalletShape struct {
	PalletCount int `json:"pallet_count"`
}

func (PalletShape) Type() BookingType { return BookingTypePallet }
func (PalletShape) isBookingShape()   {}

// AreaRentalShape is a floor area rental.
type AreaRentalShape struct {
	AreaSqFt decimal.Decimal `json:"area_sq_ft"`
	FloorRef string          `json:"floor_ref,omitempty"`
}

func (AreaRentalShape) Type() BookingType { return BookingTypeAreaRental }
func (AreaRentalShape) isBookingShape()   {}

type Booking struct {
	ID            int64  `json:"id"`
	CustomerID    int64  `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	WarehouseID   int64  `json:"warehouse_id"`
	CreatedBy     int64  `json:"created_by"`

	Shape BookingShape `json:"-"`

	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	DurationMonths int        `json:"duration_months,omitempty"`

	ProposedStartDate   *time.Time `json:"proposed_start_date,omitempty"`
	ProposedStartTime   string     `json:"proposed_start_time,omitempty"`
	ScheduledDropoff    *time.Time `json:"scheduled_dropoff_datetime,omitempty"`
	TimeSlotConfirmedAt *time.Time `json:"time_slot_confirmed_at,omitempty"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`

	DateChangeRequestedAt *time.Time `json:"date_change_requested_at,omitempty"`
	DateChangeRequestedBy *int64     `json:"date_change_requested_by,omitempty"`

	MembershipTier            MembershipTier  `json:"membership_tier"`
	VolumeDiscountPercent     decimal.Decimal `json:"volume_discount_percent"`
	MembershipDiscountPercent decimal.Decimal `json:"membership_discount_percent"`
	FreeDays                  int             `json:"free_days"`
	BillableDays              int             `json:"billable_days"`

	BaseStorageAmount decimal.Decimal `json:"base_storage_amount"`
	ServicesAmount    decimal.Decimal `json:"services_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`

	Services []BookingService `json:"services,omitempty"`

	Status    Status    `json:"status"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Type reports the booking shape, or an empty string when the shape is unset.
func (b *Booking) Type() BookingType {
	if b == nil || b.Shape == nil {
		return ""
	}
	return b.Shape.Type()
}

// PalletCount returns the pallet count for pallet bookings and 0 otherwise.
func (b *Booking) PalletCount() int {
	if s, ok := b.Shape.(PalletShape); ok {
		return s.PalletCount
	}
	return 0
}

// AreaSqFt returns the rented area for area bookings and zero otherwise.
func (b *Booking) AreaSqFt() decimal.Decimal {
	if s, ok := b.Shape.(AreaRentalShape); ok {
		return s.AreaSqFt
	}
	return decimal.Zero
}

// Clone returns a deep copy so callers can modify the result without
// touching the original.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	out := *b
	out.EndDate = cloneTime(b.EndDate)
	out.ProposedStartDate = cloneTime(b.ProposedStartDate)
	out.ScheduledDropoff = cloneTime(b.ScheduledDropoff)
	out.TimeSlotConfirmedAt = cloneTime(b.TimeSlotConfirmedAt)
	out.PaidAt = cloneTime(b.PaidAt)
	out.DateChangeRequestedAt = cloneTime(b.DateChangeRequestedAt)
	if b.DateChangeRequestedBy != nil {
		v := *b.DateChangeRequestedBy
		out.DateChangeRequestedBy = &v
	}
	if b.Services != nil {
		out.Services = append([]BookingService(nil), b.Services...)
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// bookingJSON carries the shape fields flat next to a type discriminator.
type bookingJSON struct {
	Type        BookingType      `json:"type"`
	PalletCount *int             `json:"pallet_count,omitempty"`
	AreaSqFt    *decimal.Decimal `json:"area_sq_ft,omitempty"`
	FloorRef    string           `json:"floor_ref,omitempty"`
}

type bookingAlias Booking

func (b Booking) MarshalJSON() ([]byte, error) {
	shape := bookingJSON{}
	switch s := b.Shape.(type) {
	case PalletShape:
		shape.Type = BookingTypePallet
		count := s.PalletCount
		shape.PalletCount = &count
	case AreaRentalShape:
		shape.Type = BookingTypeAreaRental
		area := s.AreaSqFt
		shape.AreaSqFt = &area
		shape.FloorRef = s.FloorRef
	}

	return json.Marshal(struct {
		bookingJSON
		bookingAlias
	}{shape, bookingAlias(b)})
}

func (b *Booking) UnmarshalJSON(data []byte) error {
	var aux struct {
		bookingJSON
		*bookingAlias
	}
	aux.bookingAlias = (*bookingAlias)(b)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	shape, err := NewShape(aux.Type, aux.PalletCount, aux.AreaSqFt, aux.FloorRef)
	if err != nil {
		return err
	}
	b.Shape = shape
	return nil
}

// NewShape builds the shape for the given type. Fields of the other shape
// must be absent.
func NewShape(t BookingType, palletCount *int, areaSqFt *decimal.Decimal, floorRef string) (BookingShape, error) {
	switch t {
	case BookingTypePallet:
		if areaSqFt != nil {
			return nil, fmt.Errorf("pallet booking cannot carry area_sq_ft")
		}
		count := 0
		if palletCount != nil {
			count = *palletCount
		}
		return PalletShape{PalletCount: count}, nil
	case BookingTypeAreaRental:
		if palletCount != nil {
			return nil, fmt.Errorf("area rental booking cannot carry pallet_count")
		}
		area := decimal.Zero
		if areaSqFt != nil {
			area = *areaSqFt
		}
		return AreaRentalShape{AreaSqFt: area, FloorRef: floorRef}, nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown booking type %q", t)
	}
}

// BookingService is an add-on line item priced at booking time.
type BookingService struct {
	ID              int64           `json:"id"`
	BookingID       int64           `json:"booking_id"`
	ServiceID       string          `json:"service_id"`
	Name            string          `json:"name"`
	PricingType     PricingType     `json:"pricing_type"`
	BasePrice       decimal.Decimal `json:"base_price"`
	Quantity        int             `json:"quantity"`
	CalculatedPrice decimal.Decimal `json:"calculated_price"`
}
