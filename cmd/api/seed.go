package main

import (
	"context"
	"fmt"
	"os"

	"warehub/internal/database"
	"warehub/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// seedFile is the reference data the booking core needs but does not own:
// warehouses with their tariffs, customers, staff assignments and teams.
type seedFile struct {
	Warehouses []seedWarehouse   `yaml:"warehouses"`
	Customers  []models.Customer `yaml:"customers"`
	Teams      []seedTeam        `yaml:"teams"`
}

type seedWarehouse struct {
	models.Warehouse `yaml:",inline"`
	Pricing          *models.PricingTable     `yaml:"pricing"`
	FreeStorageRules []models.FreeStorageRule `yaml:"free_storage_rules"`
	Staff            []int64                  `yaml:"staff"`
}

type seedTeam struct {
	AdminID int64   `yaml:"admin_id"`
	Members []int64 `yaml:"members"`
}

func loadSeed(path string, logger *zerolog.Logger) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("read seed")
		return nil, err
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("parse seed")
		return nil, err
	}
	return &seed, nil
}

// applySeed upserts the seed into the database. Running it twice is harmless.
func applySeed(ctx context.Context, db *database.DB, seed *seedFile) error {
	for i := range seed.Warehouses {
		w := &seed.Warehouses[i]
		if err := db.UpsertWarehouse(ctx, &w.Warehouse); err != nil {
			return fmt.Errorf("seed warehouse %d: %w", w.ID, err)
		}
		if w.Pricing != nil {
			w.Pricing.WarehouseID = w.ID
			if err := db.SetPricingTable(ctx, w.Pricing); err != nil {
				return fmt.Errorf("seed pricing for warehouse %d: %w", w.ID, err)
			}
		}
		if len(w.FreeStorageRules) > 0 {
			if err := db.SetFreeStorageRules(ctx, w.ID, w.FreeStorageRules); err != nil {
				return fmt.Errorf("seed free storage rules for warehouse %d: %w", w.ID, err)
			}
		}
		for _, staffID := range w.Staff {
			if err := db.AssignStaff(ctx, staffID, w.ID); err != nil {
				return fmt.Errorf("seed staff %d for warehouse %d: %w", staffID, w.ID, err)
			}
		}
	}

	for i := range seed.Customers {
		c := &seed.Customers[i]
		if err := db.UpsertCustomer(ctx, c); err != nil {
			return fmt.Errorf("seed customer %d: %w", c.ID, err)
		}
	}

	for _, team := range seed.Teams {
		for _, member := range team.Members {
			if err := db.AddTeamMember(ctx, team.AdminID, member); err != nil {
				return fmt.Errorf("seed team %d member %d: %w", team.AdminID, member, err)
			}
		}
	}
	return nil
}
