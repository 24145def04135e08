package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"warehub/internal/models"
)

func (db *DB) UpsertWarehouse(ctx context.Context, w *models.Warehouse) error {
	if w.Timezone == "" {
		w.Timezone = "UTC"
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO warehouses (id, name, timezone, is_active, created_at)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                timezone = excluded.timezone,
                is_active = excluded.is_active`,
		w.ID, w.Name, w.Timezone, w.IsActive, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert warehouse: %w", err)
	}
	return nil
}

func (db *DB) GetWarehouse(ctx context.Context, id int64) (*models.Warehouse, error) {
	var w models.Warehouse
	err := db.QueryRowContext(ctx, `SELECT id, name, timezone, is_active, created_at FROM warehouses WHERE id = ?`, id).
		Scan(&w.ID, &w.Name, &w.Timezone, &w.IsActive, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouse: %w", err)
	}
	return &w, nil
}

func (db *DB) ListWarehouses(ctx context.Context) ([]*models.Warehouse, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, timezone, is_active, created_at FROM warehouses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []*models.Warehouse
	for rows.Next() {
		var w models.Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Timezone, &w.IsActive, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse: %w", err)
		}
		warehouses = append(warehouses, &w)
	}
	return warehouses, rows.Err()
}

// SetPricingTable replaces the warehouse's published prices and service
// catalog.
func (db *DB) SetPricingTable(ctx context.Context, table *models.PricingTable) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO pricing_tables (
            warehouse_id, pallet_in_fee, pallet_per_day, pallet_per_month, area_annual_per_sqft, min_area_sq_ft, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(warehouse_id) DO UPDATE SET
            pallet_in_fee = excluded.pallet_in_fee,
            pallet_per_day = excluded.pallet_per_day,
            pallet_per_month = excluded.pallet_per_month,
            area_annual_per_sqft = excluded.area_annual_per_sqft,
            min_area_sq_ft = excluded.min_area_sq_ft,
            updated_at = excluded.updated_at`,
		table.WarehouseID, table.PalletInFee, table.PalletPerDay, table.PalletPerMonth,
		table.AreaAnnualPerSqFt, table.MinAreaSqFt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save pricing table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM service_offers WHERE warehouse_id = ?`, table.WarehouseID); err != nil {
		return fmt.Errorf("failed to clear service offers: %w", err)
	}
	for _, s := range table.Services {
		_, err := tx.ExecContext(ctx, `INSERT INTO service_offers (warehouse_id, service_id, name, pricing_type, base_price)
                  VALUES (?, ?, ?, ?, ?)`,
			table.WarehouseID, s.ID, s.Name, s.PricingType, s.BasePrice)
		if err != nil {
			return fmt.Errorf("failed to save service offer %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// GetWarehousePricing returns the published pricing. A warehouse without a
// pricing row gets an empty table so callers fall through to defaults.
func (db *DB) GetWarehousePricing(ctx context.Context, warehouseID int64) (*models.PricingTable, error) {
	if _, err := db.GetWarehouse(ctx, warehouseID); err != nil {
		return nil, err
	}

	table := &models.PricingTable{WarehouseID: warehouseID}
	err := db.QueryRowContext(ctx, `SELECT pallet_in_fee, pallet_per_day, pallet_per_month, area_annual_per_sqft, min_area_sq_ft
              FROM pricing_tables WHERE warehouse_id = ?`, warehouseID).
		Scan(&table.PalletInFee, &table.PalletPerDay, &table.PalletPerMonth, &table.AreaAnnualPerSqFt, &table.MinAreaSqFt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get pricing table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT service_id, name, pricing_type, base_price
              FROM service_offers WHERE warehouse_id = ? ORDER BY service_id`, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get service offers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.ServiceOffer
		if err := rows.Scan(&s.ID, &s.Name, &s.PricingType, &s.BasePrice); err != nil {
			return nil, fmt.Errorf("failed to scan service offer: %w", err)
		}
		table.Services = append(table.Services, s)
	}
	return table, rows.Err()
}

func (db *DB) SetFreeStorageRules(ctx context.Context, warehouseID int64, rules []models.FreeStorageRule) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM free_storage_rules WHERE warehouse_id = ?`, warehouseID); err != nil {
		return fmt.Errorf("failed to clear free storage rules: %w", err)
	}
	for _, r := range rules {
		_, err := tx.ExecContext(ctx, `INSERT INTO free_storage_rules (warehouse_id, kind, free_days, per_billed_days, min_stay_days)
                  VALUES (?, ?, ?, ?, ?)`,
			warehouseID, r.Kind, r.FreeDays, r.PerBilledDays, r.MinStayDays)
		if err != nil {
			return fmt.Errorf("failed to save free storage rule: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) GetFreeStorageRules(ctx context.Context, warehouseID int64) ([]models.FreeStorageRule, error) {
	rows, err := db.QueryContext(ctx, `SELECT kind, free_days, per_billed_days, min_stay_days
              FROM free_storage_rules WHERE warehouse_id = ? ORDER BY id`, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get free storage rules: %w", err)
	}
	defer rows.Close()

	var rules []models.FreeStorageRule
	for rows.Next() {
		var r models.FreeStorageRule
		if err := rows.Scan(&r.Kind, &r.FreeDays, &r.PerBilledDays, &r.MinStayDays); err != nil {
			return nil, fmt.Errorf("failed to scan free storage rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
