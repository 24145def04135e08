package repository

import (
	"context"
	"sync"
	"time"

	"warehub/internal/models"
)

// MemoryPricingCache is the in-process fallback used while redis is down.
type MemoryPricingCache struct {
	pricing    sync.Map
	rateLimits sync.Map
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryPricingCache(ttl time.Duration) *MemoryPricingCache {
	return &MemoryPricingCache{
		ttl: ttl,
		now: time.Now,
	}
}

type pricingEntry struct {
	snapshot  *models.PricingSnapshot
	expiresAt time.Time
}

func (r *MemoryPricingCache) GetPricing(ctx context.Context, warehouseID int64) (*models.PricingSnapshot, error) {
	val, ok := r.pricing.Load(warehouseID)
	if !ok {
		return nil, nil
	}
	entry := val.(pricingEntry)
	if r.now().After(entry.expiresAt) {
		r.pricing.Delete(warehouseID)
		return nil, nil
	}
	return entry.snapshot, nil
}

func (r *MemoryPricingCache) SetPricing(ctx context.Context, snapshot *models.PricingSnapshot) error {
	r.pricing.Store(snapshot.WarehouseID, pricingEntry{
		snapshot:  snapshot,
		expiresAt: r.now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryPricingCache) InvalidatePricing(ctx context.Context, warehouseID int64) error {
	r.pricing.Delete(warehouseID)
	return nil
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryPricingCache) CheckRateLimit(ctx context.Context, actorID int64, limit int, window time.Duration) (bool, error) {
	now := r.now()
	val, _ := r.rateLimits.LoadOrStore(actorID, &rateLimitEntry{expiresAt: now.Add(window)})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++

	return entry.count <= limit, nil
}
