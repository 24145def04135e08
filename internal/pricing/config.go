package pricing

import (
	"fmt"
	"sort"

	"warehub/internal/models"

	"github.com/shopspring/decimal"
)

type MonthRounding string

const (
	// MonthRoundingCeil bills every started month in full.
	MonthRoundingCeil MonthRounding = "ceil"
	// MonthRoundingExact prorates billable days to a fraction of a month.
	MonthRoundingExact MonthRounding = "exact"
)

// VolumeTier grants Percent once the combined pallet count reaches MinPallets.
type VolumeTier struct {
	MinPallets int
	Percent    decimal.Decimal
}

// Config holds the platform pricing defaults. It is passed to the calculator
// explicitly so tests can run against any table.
type Config struct {
	DefaultPalletInFee       decimal.Decimal
	DefaultPalletPerMonth    decimal.Decimal
	DefaultAreaAnnualPerSqFt decimal.Decimal
	MinAreaSqFt              decimal.Decimal
	VolumeTiers              []VolumeTier
	MembershipDiscounts      map[models.MembershipTier]decimal.Decimal
	MonthRounding            MonthRounding
}

func DefaultConfig() Config {
	return Config{
		DefaultPalletInFee:       decimal.RequireFromString("5.00"),
		DefaultPalletPerMonth:    decimal.RequireFromString("17.50"),
		DefaultAreaAnnualPerSqFt: decimal.RequireFromString("8.50"),
		MinAreaSqFt:              decimal.NewFromInt(30000),
		VolumeTiers: []VolumeTier{
			{MinPallets: 50, Percent: decimal.NewFromInt(5)},
			{MinPallets: 100, Percent: decimal.NewFromInt(10)},
			{MinPallets: 250, Percent: decimal.NewFromInt(15)},
			{MinPallets: 500, Percent: decimal.NewFromInt(20)},
		},
		MembershipDiscounts: map[models.MembershipTier]decimal.Decimal{
			models.TierBronze: decimal.NewFromInt(2),
			models.TierSilver: decimal.NewFromInt(5),
			models.TierGold:   decimal.NewFromInt(10),
		},
		MonthRounding: MonthRoundingCeil,
	}
}

var hundred = decimal.NewFromInt(100)

// Validate rejects tables that would break discount monotonicity.
func (c Config) Validate() error {
	if c.DefaultPalletInFee.IsNegative() || c.DefaultPalletPerMonth.IsNegative() || c.DefaultAreaAnnualPerSqFt.IsNegative() {
		return fmt.Errorf("default prices must not be negative")
	}
	if c.MinAreaSqFt.IsNegative() {
		return fmt.Errorf("minimum area must not be negative")
	}
	switch c.MonthRounding {
	case MonthRoundingCeil, MonthRoundingExact:
	default:
		return fmt.Errorf("unknown month rounding %q", c.MonthRounding)
	}

	tiers := sortedTiers(c.VolumeTiers)
	for i, t := range tiers {
		if !validPercent(t.Percent) {
			return fmt.Errorf("volume tier %d: percent %s out of range", t.MinPallets, t.Percent)
		}
		if i > 0 && t.Percent.LessThan(tiers[i-1].Percent) {
			return fmt.Errorf("volume tier %d: percent %s is lower than tier %d", t.MinPallets, t.Percent, tiers[i-1].MinPallets)
		}
	}

	prev := decimal.Zero
	for _, tier := range []models.MembershipTier{models.TierBronze, models.TierSilver, models.TierGold} {
		p := c.MembershipDiscounts[tier]
		if !validPercent(p) {
			return fmt.Errorf("membership %s: percent %s out of range", tier, p)
		}
		if p.LessThan(prev) {
			return fmt.Errorf("membership %s: percent %s is lower than the tier below", tier, p)
		}
		prev = p
	}
	return nil
}

// VolumeDiscountPercent is a step function of the combined pallet count.
func (c Config) VolumeDiscountPercent(totalPallets int) decimal.Decimal {
	percent := decimal.Zero
	for _, t := range sortedTiers(c.VolumeTiers) {
		if totalPallets >= t.MinPallets {
			percent = t.Percent
		}
	}
	return percent
}

// MembershipDiscountPercent returns 0 for customers without a known tier.
func (c Config) MembershipDiscountPercent(tier models.MembershipTier) decimal.Decimal {
	if tier.Rank() == 0 {
		return decimal.Zero
	}
	if p, ok := c.MembershipDiscounts[tier]; ok {
		return p
	}
	return decimal.Zero
}

func sortedTiers(in []VolumeTier) []VolumeTier {
	out := append([]VolumeTier(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinPallets < out[j].MinPallets })
	return out
}

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}
