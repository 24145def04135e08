package repository

import (
	"context"
	"sync/atomic"
	"time"

	"warehub/internal/domain"
	"warehub/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverPricingCache routes calls to primary until it fails, then to
// fallback, retrying primary once per recoveryInterval.
type FailoverPricingCache struct {
	primary   domain.PricingCache
	fallback  domain.PricingCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverPricingCache(primary, fallback domain.PricingCache, logger *zerolog.Logger) *FailoverPricingCache {
	return &FailoverPricingCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverPricingCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary pricing cache failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverPricingCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverPricingCache) call(fn func(domain.PricingCache) error) error {
	if r.usePrimary() {
		err := fn(r.primary)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary pricing cache recovered")
			}
			return nil
		}
		r.markDown(err)
	}
	return fn(r.fallback)
}

func (r *FailoverPricingCache) GetPricing(ctx context.Context, warehouseID int64) (*models.PricingSnapshot, error) {
	var snapshot *models.PricingSnapshot
	err := r.call(func(c domain.PricingCache) error {
		var err error
		snapshot, err = c.GetPricing(ctx, warehouseID)
		return err
	})
	return snapshot, err
}

func (r *FailoverPricingCache) SetPricing(ctx context.Context, snapshot *models.PricingSnapshot) error {
	return r.call(func(c domain.PricingCache) error {
		return c.SetPricing(ctx, snapshot)
	})
}

// InvalidatePricing clears both layers so a recovered primary and the
// fallback never disagree about a dropped entry.
func (r *FailoverPricingCache) InvalidatePricing(ctx context.Context, warehouseID int64) error {
	_ = r.fallback.InvalidatePricing(ctx, warehouseID)
	return r.call(func(c domain.PricingCache) error {
		return c.InvalidatePricing(ctx, warehouseID)
	})
}

func (r *FailoverPricingCache) CheckRateLimit(ctx context.Context, actorID int64, limit int, window time.Duration) (bool, error) {
	var allowed bool
	err := r.call(func(c domain.PricingCache) error {
		var err error
		allowed, err = c.CheckRateLimit(ctx, actorID, limit, window)
		return err
	})
	return allowed, err
}
