package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"warehub/internal/models"
	"warehub/internal/pricing"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Backup        BackupConfig        `yaml:"backup"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Pricing       PricingConfig       `yaml:"pricing"`
	Scheduling    SchedulingConfig    `yaml:"scheduling"`
	Approvals     ApprovalsConfig     `yaml:"approvals"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Google        GoogleConfig        `yaml:"google"`
	Exports       ExportConfig        `yaml:"exports"`
	SeedFile      string              `yaml:"seed_file"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey is a client credential. Roles limits which actor roles the
// client may claim; empty means any.
type APIClientKey struct {
	Key   string        `yaml:"key"`
	Name  string        `yaml:"name"`
	Roles []models.Role `yaml:"roles"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// BookingsPerWindow caps booking creations per actor.
	BookingsPerWindow int           `yaml:"bookings_per_window"`
	Window            time.Duration `yaml:"window"`
}

type PricingConfig struct {
	Defaults            PricingDefaults   `yaml:"defaults"`
	MinAreaSqFt         string            `yaml:"min_area_sq_ft"`
	MonthRounding       string            `yaml:"month_rounding"`
	VolumeTiers         []VolumeTier      `yaml:"volume_tiers"`
	MembershipDiscounts map[string]string `yaml:"membership_discounts"`
	LookupTimeout       time.Duration     `yaml:"lookup_timeout"`
	CacheTTL            time.Duration     `yaml:"cache_ttl"`
}

type PricingDefaults struct {
	PalletInFee       string `yaml:"pallet_in_fee"`
	PalletPerMonth    string `yaml:"pallet_per_month"`
	AreaAnnualPerSqFt string `yaml:"area_annual_per_sq_ft"`
}

type VolumeTier struct {
	MinPallets int    `yaml:"min_pallets"`
	Percent    string `yaml:"percent"`
}

type SchedulingConfig struct {
	OpenHour    int    `yaml:"open_hour"`
	CloseHour   int    `yaml:"close_hour"`
	SlotMinutes int    `yaml:"slot_minutes"`
	Timezone    string `yaml:"timezone"`
}

type ApprovalsConfig struct {
	CancelOnReject bool `yaml:"cancel_on_reject"`
}

type NotificationsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

type AMQPConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type GoogleConfig struct {
	Enabled               bool   `yaml:"enabled"`
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
	SheetName             string `yaml:"sheet_name"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := c.Pricing.ToPricing(); err != nil {
		return fmt.Errorf("pricing: %w", err)
	}

	s := c.Scheduling
	if s.OpenHour < 0 || s.CloseHour > 24 || s.OpenHour >= s.CloseHour {
		return fmt.Errorf("scheduling: opening hours %d-%d are invalid", s.OpenHour, s.CloseHour)
	}
	if s.SlotMinutes <= 0 || (s.CloseHour-s.OpenHour)*60%s.SlotMinutes != 0 {
		return fmt.Errorf("scheduling: slot length %d minutes must divide the opening hours", s.SlotMinutes)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("scheduling: unknown timezone %q", s.Timezone)
	}

	if c.API.Auth.Enabled && (c.API.HTTP.Enabled || c.API.GRPC.Enabled) && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth is enabled but no api keys are configured")
	}

	n := c.Notifications
	if n.Telegram.Enabled && n.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when telegram notifications are enabled")
	}
	if n.AMQP.Enabled && n.AMQP.URL == "" {
		return errors.New("amqp url is required when amqp notifications are enabled")
	}
	if n.Kafka.Enabled && (len(n.Kafka.Brokers) == 0 || n.Kafka.Topic == "") {
		return errors.New("kafka brokers and topic are required when kafka notifications are enabled")
	}
	if c.Google.Enabled && (c.Google.GoogleCredentialsFile == "" || c.Google.BookingSpreadSheetID == "") {
		return errors.New("google credentials file and spreadsheet id are required when google sync is enabled")
	}
	return nil
}

// ToPricing converts the YAML section into calculator configuration. Fields
// left empty keep the built-in defaults.
func (p PricingConfig) ToPricing() (pricing.Config, error) {
	cfg := pricing.DefaultConfig()

	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"defaults.pallet_in_fee", p.Defaults.PalletInFee, &cfg.DefaultPalletInFee},
		{"defaults.pallet_per_month", p.Defaults.PalletPerMonth, &cfg.DefaultPalletPerMonth},
		{"defaults.area_annual_per_sq_ft", p.Defaults.AreaAnnualPerSqFt, &cfg.DefaultAreaAnnualPerSqFt},
		{"min_area_sq_ft", p.MinAreaSqFt, &cfg.MinAreaSqFt},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}

	if p.MonthRounding != "" {
		cfg.MonthRounding = pricing.MonthRounding(p.MonthRounding)
	}

	if len(p.VolumeTiers) > 0 {
		cfg.VolumeTiers = make([]pricing.VolumeTier, 0, len(p.VolumeTiers))
		for _, t := range p.VolumeTiers {
			percent, err := decimal.NewFromString(t.Percent)
			if err != nil {
				return cfg, fmt.Errorf("volume tier %d: %w", t.MinPallets, err)
			}
			cfg.VolumeTiers = append(cfg.VolumeTiers, pricing.VolumeTier{MinPallets: t.MinPallets, Percent: percent})
		}
	}

	if len(p.MembershipDiscounts) > 0 {
		cfg.MembershipDiscounts = make(map[models.MembershipTier]decimal.Decimal, len(p.MembershipDiscounts))
		for tier, value := range p.MembershipDiscounts {
			if models.MembershipTier(tier).Rank() == 0 {
				return cfg, fmt.Errorf("unknown membership tier %q", tier)
			}
			percent, err := decimal.NewFromString(value)
			if err != nil {
				return cfg, fmt.Errorf("membership %s: %w", tier, err)
			}
			cfg.MembershipDiscounts[models.MembershipTier(tier)] = percent
		}
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "warehub"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.BookingsPerWindow == 0 {
		c.API.RateLimit.BookingsPerWindow = models.RateLimitRequests
	}
	if c.API.RateLimit.Window == 0 {
		c.API.RateLimit.Window = models.RateLimitWindow * time.Second
	}

	if c.Pricing.LookupTimeout == 0 {
		c.Pricing.LookupTimeout = 2 * time.Second
	}
	if c.Pricing.CacheTTL == 0 {
		c.Pricing.CacheTTL = models.DefaultPricingCacheTTL * time.Second
	}

	if c.Scheduling.OpenHour == 0 && c.Scheduling.CloseHour == 0 {
		c.Scheduling.OpenHour, c.Scheduling.CloseHour = 8, 18
	}
	if c.Scheduling.SlotMinutes == 0 {
		c.Scheduling.SlotMinutes = 60
	}
	if c.Scheduling.Timezone == "" {
		c.Scheduling.Timezone = "UTC"
	}

	if c.Notifications.AMQP.Queue == "" {
		c.Notifications.AMQP.Queue = "warehub.booking.events"
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Bookings"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
}
