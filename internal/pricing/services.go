package pricing

import (
	"warehub/internal/apperror"
	"warehub/internal/models"

	"github.com/shopspring/decimal"
)

// ServiceSelection is a customer request for an add-on service.
type ServiceSelection struct {
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity"`
}

// ServiceContext is what per-unit services are multiplied by.
type ServiceContext struct {
	Shape          models.BookingShape
	BillableDays   int
	BillableMonths decimal.Decimal
}

// CalculateServices prices the selected add-ons against the catalog and
// returns the line items and their sum.
func (c *Calculator) CalculateServices(catalog *models.PricingTable, selections []ServiceSelection, sc ServiceContext) ([]models.BookingService, decimal.Decimal, error) {
	total := decimal.Zero
	if len(selections) == 0 {
		return nil, total, nil
	}

	lines := make([]models.BookingService, 0, len(selections))
	for _, sel := range selections {
		offer, ok := catalog.Service(sel.ServiceID)
		if !ok {
			return nil, decimal.Zero, apperror.Validation("unknown service %q", sel.ServiceID)
		}
		if sel.Quantity < 0 {
			return nil, decimal.Zero, apperror.Validation("service %q: quantity must not be negative", sel.ServiceID)
		}
		qty := sel.Quantity
		if qty == 0 {
			qty = 1
		}

		price, err := servicePrice(offer, qty, sc)
		if err != nil {
			return nil, decimal.Zero, err
		}

		lines = append(lines, models.BookingService{
			ServiceID:       offer.ID,
			Name:            offer.Name,
			PricingType:     offer.PricingType,
			BasePrice:       offer.BasePrice,
			Quantity:        qty,
			CalculatedPrice: price,
		})
		total = total.Add(price)
	}
	return lines, total, nil
}

func servicePrice(offer models.ServiceOffer, qty int, sc ServiceContext) (decimal.Decimal, error) {
	q := decimal.NewFromInt(int64(qty))
	base := offer.BasePrice.Mul(q)

	switch offer.PricingType {
	case models.PricingOneTime:
		return money(base), nil
	case models.PricingPerPallet:
		s, ok := sc.Shape.(models.PalletShape)
		if !ok {
			return decimal.Zero, apperror.Validation("service %q is priced per pallet and needs a pallet booking", offer.ID)
		}
		return money(base.Mul(decimal.NewFromInt(int64(s.PalletCount)))), nil
	case models.PricingPerSqFt:
		s, ok := sc.Shape.(models.AreaRentalShape)
		if !ok {
			return decimal.Zero, apperror.Validation("service %q is priced per sq ft and needs an area rental", offer.ID)
		}
		return money(base.Mul(s.AreaSqFt)), nil
	case models.PricingPerDay:
		return money(base.Mul(decimal.NewFromInt(int64(sc.BillableDays)))), nil
	case models.PricingPerMonth:
		return money(base.Mul(sc.BillableMonths)), nil
	default:
		return decimal.Zero, apperror.Validation("service %q has unknown pricing type %q", offer.ID, offer.PricingType)
	}
}
