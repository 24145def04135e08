package pricing

import (
	"warehub/internal/apperror"
	"warehub/internal/models"

	"github.com/shopspring/decimal"
)

// QuoteInput is everything needed to price a booking of either shape.
type QuoteInput struct {
	Shape               models.BookingShape
	StayDays            int
	Tier                models.MembershipTier
	ExistingPalletCount int
	Table               *models.PricingTable
	Rules               []models.FreeStorageRule
	Services            []ServiceSelection
}

type Quote struct {
	Type           models.BookingType      `json:"type"`
	Storage        Result                  `json:"storage"`
	Services       []models.BookingService `json:"services,omitempty"`
	ServicesAmount decimal.Decimal         `json:"services_amount"`
	TotalAmount    decimal.Decimal         `json:"total_amount"`
}

// Quote prices storage and add-ons together. TotalAmount is always the
// discounted storage amount plus the services amount.
func (c *Calculator) Quote(in QuoteInput) (*Quote, error) {
	var (
		res *Result
		err error
	)
	switch s := in.Shape.(type) {
	case models.PalletShape:
		res, err = c.CalculatePallet(PalletInput{
			PalletCount:         s.PalletCount,
			StayDays:            in.StayDays,
			Tier:                in.Tier,
			ExistingPalletCount: in.ExistingPalletCount,
			Table:               in.Table,
			Rules:               in.Rules,
		})
	case models.AreaRentalShape:
		area := s.AreaSqFt
		res, err = c.CalculateArea(AreaInput{
			AreaSqFt: &area,
			StayDays: in.StayDays,
			Tier:     in.Tier,
			Table:    in.Table,
			Rules:    in.Rules,
		})
	default:
		return nil, apperror.Validation("booking type must be pallet or area_rental")
	}
	if err != nil {
		return nil, err
	}

	lines, servicesAmount, err := c.CalculateServices(in.Table, in.Services, ServiceContext{
		Shape:          in.Shape,
		BillableDays:   res.BillableDays,
		BillableMonths: res.BillableMonths,
	})
	if err != nil {
		return nil, err
	}

	return &Quote{
		Type:           in.Shape.Type(),
		Storage:        *res,
		Services:       lines,
		ServicesAmount: servicesAmount,
		TotalAmount:    res.FinalAmount.Add(servicesAmount),
	}, nil
}

// ApplyTo copies the quote into the booking's pricing snapshot.
func (q *Quote) ApplyTo(b *models.Booking, tier models.MembershipTier) {
	b.MembershipTier = tier
	b.VolumeDiscountPercent = q.Storage.VolumeDiscountPercent
	b.MembershipDiscountPercent = q.Storage.MembershipDiscountPercent
	b.FreeDays = q.Storage.FreeDays
	b.BillableDays = q.Storage.BillableDays
	b.BaseStorageAmount = q.Storage.FinalAmount
	b.ServicesAmount = q.ServicesAmount
	b.TotalAmount = q.TotalAmount
	b.Services = append([]models.BookingService(nil), q.Services...)
}
