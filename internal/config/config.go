package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type BookingConfig struct {
	// Facility timezone for wall-clock day math.
	Timezone string `yaml:"timezone"`
	// How long a pending_payment booking holds its slot.
	PendingExpiryMinutes int `yaml:"pending_expiry_minutes"`
}

type JobsConfig struct {
	ExpirySweepCron       string `yaml:"expiry_sweep_cron"`
	MaintenanceExpiryCron string `yaml:"maintenance_expiry_cron"`
}

type NotifyConfig struct {
	SESRegion string `yaml:"ses_region"`
	SESSender string `yaml:"ses_sender"`
	// Default region for normalizing stored phone numbers.
	PhoneRegion string `yaml:"phone_region"`
	AMQPURL     string `yaml:"-"` // Loaded from environment
	// AWS credentials loaded from environment.
	AWSAccessKeyID     string `yaml:"-"`
	AWSSecretAccessKey string `yaml:"-"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`
	Booking  BookingConfig  `yaml:"booking"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// Load loads both .env and yaml configuration.
func Load(configPath string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Sensitive values come from the environment only.
	cfg.Notify.AMQPURL = os.Getenv("AMQP_URL")
	cfg.Notify.AWSAccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Notify.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "America/Mexico_City"
	}
	if c.Booking.PendingExpiryMinutes <= 0 {
		c.Booking.PendingExpiryMinutes = 10
	}
	if c.Jobs.ExpirySweepCron == "" {
		c.Jobs.ExpirySweepCron = "*/5 * * * *"
	}
	if c.Jobs.MaintenanceExpiryCron == "" {
		c.Jobs.MaintenanceExpiryCron = "*/10 * * * *"
	}
	if c.Notify.PhoneRegion == "" {
		c.Notify.PhoneRegion = "MX"
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}
	if c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.Filename == "" {
		return fmt.Errorf("database filename is required for sqlite")
	}
	return nil
}

// PendingExpiry returns the configured pending-payment hold duration.
func (c *Config) PendingExpiry() time.Duration {
	return time.Duration(c.Booking.PendingExpiryMinutes) * time.Minute
}
