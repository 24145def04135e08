package database

import (
	"context"
	"testing"

	"warehub/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarehousePricing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seedWarehouse(t, db)
	ctx := context.Background()

	table, err := db.GetWarehousePricing(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, table.PalletInFee)
	assert.True(t, table.PalletInFee.Equal(decimal.RequireFromString("4")))
	assert.Nil(t, table.PalletPerDay)
	assert.Nil(t, table.MinAreaSqFt)
	require.Len(t, table.Services, 1)
	assert.Equal(t, models.PricingPerPallet, table.Services[0].PricingType)

	// replacing drops the old catalog
	require.NoError(t, db.SetPricingTable(ctx, &models.PricingTable{WarehouseID: 1}))
	table, err = db.GetWarehousePricing(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, table.PalletInFee)
	assert.Empty(t, table.Services)

	_, err = db.GetWarehousePricing(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWarehouseWithoutPricingRow(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.UpsertWarehouse(ctx, &models.Warehouse{ID: 2, Name: "Overflow", IsActive: true}))
	table, err := db.GetWarehousePricing(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), table.WarehouseID)
	assert.Nil(t, table.PalletPerMonth)

	w, err := db.GetWarehouse(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "UTC", w.Timezone)

	list, err := db.ListWarehouses(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFreeStorageRules(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seedWarehouse(t, db)
	ctx := context.Background()

	rules := []models.FreeStorageRule{
		{Kind: models.RulePerPeriod, FreeDays: 5, PerBilledDays: 30},
		{Kind: models.RuleThreshold, FreeDays: 7, MinStayDays: 90},
	}
	require.NoError(t, db.SetFreeStorageRules(ctx, 1, rules))

	got, err := db.GetFreeStorageRules(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, rules, got)

	require.NoError(t, db.SetFreeStorageRules(ctx, 1, nil))
	got, err = db.GetFreeStorageRules(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAccessLookups(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seedWarehouse(t, db)
	ctx := context.Background()

	require.NoError(t, db.AssignStaff(ctx, 7, 1))
	require.NoError(t, db.AssignStaff(ctx, 7, 1))

	ok, err := db.HasWarehouseAccess(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.HasWarehouseAccess(ctx, 8, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.AddTeamMember(ctx, 50, 10))
	ok, err = db.IsTeamAdmin(ctx, 50, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.IsTeamAdmin(ctx, 10, 50)
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := db.GetCustomer(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, models.TierSilver, c.MembershipTier)

	_, err = db.GetCustomer(ctx, 11)
	assert.ErrorIs(t, err, ErrNotFound)
}
