package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Env:           "development",
		DatabaseURL:   "postgres://localhost/bloodlink",
		DBMaxConns:    20,
		DBMinConns:    5,
		SweepInterval: time.Hour,
		StockCritical: 5,
		StockLow:      15,
		StockGood:     30,
		AlertsEnabled: true,
		AlertChannel:  "email",
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.StockLow = 30
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for low >= good")
	}

	cfg = validConfig()
	cfg.StockCritical = 15
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for critical >= low")
	}
}

func TestValidate_SweepInterval(t *testing.T) {
	cfg := validConfig()
	cfg.SweepInterval = 10 * time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sub-minute sweep interval")
	}
}

func TestValidate_AlertChannel(t *testing.T) {
	cfg := validConfig()
	cfg.AlertChannel = "pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported alert channel")
	}
	cfg.AlertChannel = "SMS"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error for sms channel: %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	cfg := validConfig()
	if !cfg.IsDev() {
		t.Error("expected development mode")
	}
	cfg.Env = "production"
	if !cfg.IsProduction() {
		t.Error("expected production mode")
	}
}
