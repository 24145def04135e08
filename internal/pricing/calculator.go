package pricing

import (
	"fmt"
	"time"

	"warehub/internal/apperror"
	"warehub/internal/models"

	"github.com/shopspring/decimal"
)

var (
	daysPerMonth   = decimal.NewFromInt(models.DaysPerMonth)
	monthsPerYear  = decimal.NewFromInt(12)
	monthPrecision = int32(4)
)

// BreakdownLine is one human-readable component of the base amount.
type BreakdownLine struct {
	Label     string          `json:"label"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

type Result struct {
	BaseAmount                decimal.Decimal `json:"base_amount"`
	TotalDiscount             decimal.Decimal `json:"total_discount"`
	VolumeDiscountPercent     decimal.Decimal `json:"volume_discount_percent"`
	MembershipDiscountPercent decimal.Decimal `json:"membership_discount_percent"`
	FinalAmount               decimal.Decimal `json:"final_amount"`
	FreeDays                  int             `json:"free_days"`
	BillableDays              int             `json:"billable_days"`
	BillableMonths            decimal.Decimal `json:"billable_months"`
	Breakdown                 []BreakdownLine `json:"breakdown"`
}

type PalletInput struct {
	PalletCount         int
	StayDays            int
	Tier                models.MembershipTier
	ExistingPalletCount int
	Table               *models.PricingTable
	Rules               []models.FreeStorageRule
}

type AreaInput struct {
	AreaSqFt *decimal.Decimal
	StayDays int
	Tier     models.MembershipTier
	Table    *models.PricingTable
	Rules    []models.FreeStorageRule
}

// Calculator prices bookings. It is a pure function of its config and inputs.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pricing config: %w", err)
	}
	cfg.VolumeTiers = sortedTiers(cfg.VolumeTiers)
	return &Calculator{cfg: cfg}, nil
}

func (c *Calculator) Config() Config {
	return c.cfg
}

// StayDays derives the stay length from an end date or, without one, from a
// duration in 30-day months.
func StayDays(start time.Time, end *time.Time, durationMonths int) (int, error) {
	if start.IsZero() {
		return 0, apperror.Validation("start date required")
	}
	if end != nil {
		days := int(dateOf(*end).Sub(dateOf(start)).Hours() / 24)
		if days <= 0 {
			return 0, apperror.Validation("end date must be after start date")
		}
		return days, nil
	}
	if durationMonths <= 0 {
		return 0, apperror.Validation("end date or duration in months required")
	}
	return durationMonths * models.DaysPerMonth, nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BillableMonths converts billable days into billed months using the
// configured rounding.
func (c *Calculator) BillableMonths(billableDays int) decimal.Decimal {
	if billableDays <= 0 {
		return decimal.Zero
	}
	days := decimal.NewFromInt(int64(billableDays))
	if c.cfg.MonthRounding == MonthRoundingExact {
		return exactMonths(billableDays)
	}
	return days.Div(daysPerMonth).Ceil()
}

func exactMonths(billableDays int) decimal.Decimal {
	return decimal.NewFromInt(int64(billableDays)).DivRound(daysPerMonth, monthPrecision)
}

func (c *Calculator) CalculatePallet(in PalletInput) (*Result, error) {
	if in.PalletCount <= 0 {
		return nil, apperror.Validation("pallet count required")
	}
	if in.StayDays <= 0 {
		return nil, apperror.Validation("stay must be at least one day")
	}
	if in.ExistingPalletCount < 0 {
		in.ExistingPalletCount = 0
	}

	free := FreeDays(in.Rules, in.StayDays)
	billable := in.StayDays - free
	months := c.BillableMonths(billable)
	pallets := decimal.NewFromInt(int64(in.PalletCount))

	inFee := c.cfg.DefaultPalletInFee
	if in.Table != nil && in.Table.PalletInFee != nil {
		inFee = *in.Table.PalletInFee
	}

	var perDay, perMonth *decimal.Decimal
	if in.Table != nil {
		perDay, perMonth = in.Table.PalletPerDay, in.Table.PalletPerMonth
	}

	var unit, periods decimal.Decimal
	var label string
	switch {
	case in.StayDays >= models.DaysPerMonth && perMonth != nil:
		unit, periods, label = *perMonth, months, monthsLabel(months)
	case perDay != nil:
		unit, periods = *perDay, decimal.NewFromInt(int64(billable))
		label = fmt.Sprintf("Storage (%d days)", billable)
	case perMonth != nil:
		unit, periods, label = *perMonth, months, monthsLabel(months)
	default:
		unit, periods, label = c.cfg.DefaultPalletPerMonth, months, monthsLabel(months)
	}

	inAmount := money(inFee.Mul(pallets))
	storageAmount := money(unit.Mul(periods).Mul(pallets))

	res := &Result{
		BaseAmount:                inAmount.Add(storageAmount),
		VolumeDiscountPercent:     c.cfg.VolumeDiscountPercent(in.PalletCount + in.ExistingPalletCount),
		MembershipDiscountPercent: c.cfg.MembershipDiscountPercent(in.Tier),
		FreeDays:                  free,
		BillableDays:              billable,
		BillableMonths:            months,
		Breakdown: []BreakdownLine{
			{Label: "Pallet In", Quantity: pallets, UnitPrice: inFee, Amount: inAmount},
			{Label: label, Quantity: pallets, UnitPrice: unit.Mul(periods), Amount: storageAmount},
		},
	}
	c.applyDiscounts(res)
	return res, nil
}

func (c *Calculator) CalculateArea(in AreaInput) (*Result, error) {
	minArea := c.cfg.MinAreaSqFt
	if in.Table != nil && in.Table.MinAreaSqFt != nil {
		minArea = *in.Table.MinAreaSqFt
	}
	if in.AreaSqFt == nil || in.AreaSqFt.LessThan(minArea) || !in.AreaSqFt.IsPositive() {
		return nil, apperror.Validation("Minimum area rental is %s sq ft", minArea.String())
	}
	if in.StayDays <= 0 {
		return nil, apperror.Validation("stay must be at least one day")
	}

	rate := c.cfg.DefaultAreaAnnualPerSqFt
	if in.Table != nil && in.Table.AreaAnnualPerSqFt != nil {
		rate = *in.Table.AreaAnnualPerSqFt
	}

	free := FreeDays(in.Rules, in.StayDays)
	billable := in.StayDays - free
	// area is always prorated exactly
	months := exactMonths(billable)

	monthly := rate.Div(monthsPerYear).Mul(*in.AreaSqFt)
	amount := money(monthly.Mul(months))

	res := &Result{
		BaseAmount:                amount,
		VolumeDiscountPercent:     decimal.Zero,
		MembershipDiscountPercent: c.cfg.MembershipDiscountPercent(in.Tier),
		FreeDays:                  free,
		BillableDays:              billable,
		BillableMonths:            months,
		Breakdown: []BreakdownLine{
			{Label: "Area Rental", Quantity: *in.AreaSqFt, UnitPrice: money(rate.Div(monthsPerYear).Mul(months)), Amount: amount},
		},
	}
	c.applyDiscounts(res)
	return res, nil
}

func (c *Calculator) applyDiscounts(res *Result) {
	afterVolume := res.BaseAmount.Mul(hundred.Sub(res.VolumeDiscountPercent)).Div(hundred)
	final := money(afterVolume.Mul(hundred.Sub(res.MembershipDiscountPercent)).Div(hundred))
	if final.IsNegative() {
		final = decimal.Zero
	}
	res.FinalAmount = final
	res.TotalDiscount = res.BaseAmount.Sub(final)
}

func monthsLabel(months decimal.Decimal) string {
	if months.Equal(decimal.NewFromInt(1)) {
		return "Storage (1 month)"
	}
	return fmt.Sprintf("Storage (%s months)", months.String())
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
