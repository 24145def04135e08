package repository

import (
	"context"
	"fmt"
	"time"

	"warehub/internal/domain"
	"warehub/internal/models"

	"github.com/rs/zerolog"
)

// CachedPricingSource reads warehouse pricing through the cache and loads
// misses from the underlying source within a bounded time.
type CachedPricingSource struct {
	source  domain.PricingSource
	cache   domain.PricingCache
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewCachedPricingSource(source domain.PricingSource, cache domain.PricingCache, timeout time.Duration, logger *zerolog.Logger) *CachedPricingSource {
	return &CachedPricingSource{
		source:  source,
		cache:   cache,
		timeout: timeout,
		logger:  logger,
	}
}

// Snapshot returns the pricing table and free-storage rules of a warehouse.
func (s *CachedPricingSource) Snapshot(ctx context.Context, warehouseID int64) (*models.PricingSnapshot, error) {
	if cached, err := s.cache.GetPricing(ctx, warehouseID); err != nil {
		s.logger.Warn().Err(err).Int64("warehouse_id", warehouseID).Msg("pricing cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	lookupCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	table, err := s.source.GetWarehousePricing(lookupCtx, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("load pricing table: %w", err)
	}
	rules, err := s.source.GetFreeStorageRules(lookupCtx, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("load free storage rules: %w", err)
	}

	snapshot := &models.PricingSnapshot{
		WarehouseID: warehouseID,
		Table:       table,
		Rules:       rules,
		CachedAt:    time.Now().UTC(),
	}
	if err := s.cache.SetPricing(ctx, snapshot); err != nil {
		s.logger.Warn().Err(err).Int64("warehouse_id", warehouseID).Msg("pricing cache write failed")
	}
	return snapshot, nil
}

func (s *CachedPricingSource) GetWarehousePricing(ctx context.Context, warehouseID int64) (*models.PricingTable, error) {
	snapshot, err := s.Snapshot(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	return snapshot.Table, nil
}

func (s *CachedPricingSource) GetFreeStorageRules(ctx context.Context, warehouseID int64) ([]models.FreeStorageRule, error) {
	snapshot, err := s.Snapshot(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	return snapshot.Rules, nil
}

// Invalidate drops the cached snapshot after reference data changes.
func (s *CachedPricingSource) Invalidate(ctx context.Context, warehouseID int64) error {
	return s.cache.InvalidatePricing(ctx, warehouseID)
}
