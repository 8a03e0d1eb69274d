package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env           string        `mapstructure:"ENV"`
	DatabaseURL   string        `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32         `mapstructure:"DB_MIN_CONNS"`
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`

	// Default stock-level thresholds applied to blood types that have not
	// been configured individually. Must be strictly ascending.
	StockCritical int `mapstructure:"STOCK_CRITICAL"`
	StockLow      int `mapstructure:"STOCK_LOW"`
	StockGood     int `mapstructure:"STOCK_GOOD"`

	// Emergency broadcast alerting.
	AlertsEnabled bool   `mapstructure:"ALERTS_ENABLED"`
	AlertChannel  string `mapstructure:"ALERT_CHANNEL"`

	// Operations contact warned when a blood type drops below its low
	// threshold. Empty disables stock alerts.
	StockAlertRecipient string `mapstructure:"STOCK_ALERT_RECIPIENT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("STOCK_CRITICAL", 5)
	v.SetDefault("STOCK_LOW", 15)
	v.SetDefault("STOCK_GOOD", 30)
	v.SetDefault("ALERTS_ENABLED", true)
	v.SetDefault("ALERT_CHANNEL", "email")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("SWEEP_INTERVAL")
	v.BindEnv("STOCK_CRITICAL")
	v.BindEnv("STOCK_LOW")
	v.BindEnv("STOCK_GOOD")
	v.BindEnv("ALERTS_ENABLED")
	v.BindEnv("ALERT_CHANNEL")
	v.BindEnv("STOCK_ALERT_RECIPIENT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Stock thresholds
// must be strictly ascending so the derived status labels stay ordered,
// and the alert channel must be a supported delivery channel.
func (c *Config) Validate() error {
	if c.StockCritical <= 0 {
		return fmt.Errorf("STOCK_CRITICAL must be positive, got %d", c.StockCritical)
	}
	if c.StockCritical >= c.StockLow || c.StockLow >= c.StockGood {
		return fmt.Errorf("stock thresholds must be ascending: critical %d < low %d < good %d",
			c.StockCritical, c.StockLow, c.StockGood)
	}
	if c.SweepInterval < time.Minute {
		return fmt.Errorf("SWEEP_INTERVAL must be at least 1m, got %s", c.SweepInterval)
	}
	switch strings.ToLower(c.AlertChannel) {
	case "email", "sms":
	default:
		return fmt.Errorf("ALERT_CHANNEL must be \"email\" or \"sms\", got %q", c.AlertChannel)
	}
	return nil
}
