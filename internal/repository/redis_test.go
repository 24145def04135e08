package repository

import (
	"context"
	"testing"
	"time"

	"warehub/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPricingCache(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisPricingCache(client, time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetPricing", func(t *testing.T) {
		fee := decimal.RequireFromString("4.50")
		snapshot := &models.PricingSnapshot{
			WarehouseID: 3,
			Table: &models.PricingTable{
				WarehouseID: 3,
				PalletInFee: &fee,
				Services:    []models.ServiceOffer{{ID: "wrap", PricingType: models.PricingPerPallet, BasePrice: decimal.RequireFromString("1.25")}},
			},
			Rules: []models.FreeStorageRule{{Kind: models.RuleThreshold, FreeDays: 7, MinStayDays: 30}},
		}

		require.NoError(t, repo.SetPricing(ctx, snapshot))
		assert.True(t, s.Exists("pricing:3"))
		assert.Equal(t, time.Hour, s.TTL("pricing:3"))

		got, err := repo.GetPricing(ctx, 3)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.Table.PalletInFee)
		assert.True(t, got.Table.PalletInFee.Equal(fee))
		assert.Equal(t, "wrap", got.Table.Services[0].ID)
		assert.Equal(t, snapshot.Rules, got.Rules)
	})

	t.Run("Miss", func(t *testing.T) {
		got, err := repo.GetPricing(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Invalidate", func(t *testing.T) {
		require.NoError(t, repo.InvalidatePricing(ctx, 3))
		assert.False(t, s.Exists("pricing:3"))
	})

	t.Run("RateLimit", func(t *testing.T) {
		allowed, err := repo.CheckRateLimit(ctx, 7, 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, 7, 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(2 * time.Minute)
		allowed, err = repo.CheckRateLimit(ctx, 7, 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("ServerDown", func(t *testing.T) {
		s.Close()
		_, err := repo.GetPricing(ctx, 3)
		assert.Error(t, err)
	})
}

func TestPing(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	assert.NoError(t, Ping(context.Background(), client))
	assert.NoError(t, Close(client))
	assert.NoError(t, Close(nil))
}
