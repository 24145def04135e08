package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"warehub/internal/models"

	"github.com/shopspring/decimal"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("WAREHUB_TEST_DB", "warehub-test.db")

	yamlContent := `
database:
  path: "${WAREHUB_TEST_DB}"
backup:
  enabled: true
  interval: 6h
  retention_days: 3
pricing:
  defaults:
    pallet_per_month: "20.00"
  volume_tiers:
    - min_pallets: 10
      percent: "3"
  membership_discounts:
    gold: "12.5"
  lookup_timeout: 500ms
scheduling:
  open_hour: 9
  close_hour: 17
  timezone: "Europe/Berlin"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != "warehub-test.db" {
		t.Errorf("expected expanded database path, got %s", cfg.Database.Path)
	}
	if cfg.Backup.Interval != 6*time.Hour {
		t.Errorf("expected backup interval 6h, got %s", cfg.Backup.Interval)
	}
	if cfg.Pricing.LookupTimeout != 500*time.Millisecond {
		t.Errorf("expected lookup timeout 500ms, got %s", cfg.Pricing.LookupTimeout)
	}
	if cfg.Scheduling.SlotMinutes != 60 {
		t.Errorf("expected default slot length 60, got %d", cfg.Scheduling.SlotMinutes)
	}

	pc, err := cfg.Pricing.ToPricing()
	if err != nil {
		t.Fatalf("failed to convert pricing: %v", err)
	}
	if !pc.DefaultPalletPerMonth.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected pallet per month 20, got %s", pc.DefaultPalletPerMonth)
	}
	if !pc.DefaultPalletInFee.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected default pallet in fee 5, got %s", pc.DefaultPalletInFee)
	}
	if got := pc.VolumeDiscountPercent(12); !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected volume discount 3, got %s", got)
	}
	if got := pc.MembershipDiscountPercent(models.TierGold); !got.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("expected gold discount 12.5, got %s", got)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() Config {
	cfg := Config{Database: DatabaseConfig{Path: "path"}}
	cfg.applyDefaults()
	return cfg
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "bad decimal", mutate: func(c *Config) { c.Pricing.Defaults.PalletInFee = "five" }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.Pricing.Defaults.PalletPerMonth = "-1" }, wantErr: true},
		{name: "unknown month rounding", mutate: func(c *Config) { c.Pricing.MonthRounding = "floor" }, wantErr: true},
		{name: "unknown membership tier", mutate: func(c *Config) {
			c.Pricing.MembershipDiscounts = map[string]string{"platinum": "30"}
		}, wantErr: true},
		{name: "decreasing volume tiers", mutate: func(c *Config) {
			c.Pricing.VolumeTiers = []VolumeTier{{MinPallets: 10, Percent: "10"}, {MinPallets: 20, Percent: "5"}}
		}, wantErr: true},
		{name: "inverted opening hours", mutate: func(c *Config) { c.Scheduling.OpenHour, c.Scheduling.CloseHour = 18, 8 }, wantErr: true},
		{name: "slot does not divide hours", mutate: func(c *Config) { c.Scheduling.SlotMinutes = 45 }, wantErr: true},
		{name: "unknown timezone", mutate: func(c *Config) { c.Scheduling.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "auth without keys", mutate: func(c *Config) {
			c.API.HTTP.Enabled = true
			c.API.Auth.Enabled = true
		}, wantErr: true},
		{name: "telegram without token", mutate: func(c *Config) { c.Notifications.Telegram.Enabled = true }, wantErr: true},
		{name: "amqp without url", mutate: func(c *Config) { c.Notifications.AMQP.Enabled = true }, wantErr: true},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Notifications.Kafka.Enabled = true }, wantErr: true},
		{name: "google without spreadsheet", mutate: func(c *Config) {
			c.Google.Enabled = true
			c.Google.GoogleCredentialsFile = "creds.json"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
