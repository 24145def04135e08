package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"warehub/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetPricing(ctx context.Context, warehouseID int64) (*models.PricingSnapshot, error) {
	args := m.Called(ctx, warehouseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PricingSnapshot), args.Error(1)
}

func (m *mockCache) SetPricing(ctx context.Context, snapshot *models.PricingSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *mockCache) InvalidatePricing(ctx context.Context, warehouseID int64) error {
	args := m.Called(ctx, warehouseID)
	return args.Error(0)
}

func (m *mockCache) CheckRateLimit(ctx context.Context, actorID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, actorID, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverPricingCache(t *testing.T) {
	primary := new(mockCache)
	fallback := new(mockCache)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverPricingCache(primary, fallback, &logger)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		snapshot := &models.PricingSnapshot{WarehouseID: 1}
		primary.On("GetPricing", ctx, int64(1)).Return(snapshot, nil).Once()

		got, err := repo.GetPricing(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, snapshot, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		snapshot := &models.PricingSnapshot{WarehouseID: 2}
		primary.On("GetPricing", ctx, int64(2)).Return(nil, errors.New("fail")).Once()
		fallback.On("GetPricing", ctx, int64(2)).Return(snapshot, nil).Once()

		got, err := repo.GetPricing(ctx, 2)
		assert.NoError(t, err)
		assert.Equal(t, snapshot, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		now = now.Add(10 * time.Second)
		fallback.On("CheckRateLimit", ctx, int64(9), 5, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, 9, 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertNotCalled(t, "CheckRateLimit", ctx, int64(9), 5, time.Minute)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		snapshot := &models.PricingSnapshot{WarehouseID: 3}
		primary.On("SetPricing", ctx, snapshot).Return(nil).Once()

		err := repo.SetPricing(ctx, snapshot)
		assert.NoError(t, err)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailsAgain", func(t *testing.T) {
		primary.On("InvalidatePricing", ctx, int64(4)).Return(errors.New("still down")).Once()
		fallback.On("InvalidatePricing", ctx, int64(4)).Return(nil).Twice()

		err := repo.InvalidatePricing(ctx, 4)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}
