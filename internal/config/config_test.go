package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Site.Origin != "https://www.olx.pl" {
		t.Errorf("origin = %q", cfg.Site.Origin)
	}
	if cfg.Fetch.InitialConcurrency != 6 || cfg.Fetch.MinConcurrency != 3 {
		t.Errorf("concurrency defaults = %d/%d", cfg.Fetch.InitialConcurrency, cfg.Fetch.MinConcurrency)
	}
	if cfg.Fetch.InitialDelay != 2*time.Second {
		t.Errorf("initial delay = %v", cfg.Fetch.InitialDelay)
	}
	if cfg.Report.ZScoreThreshold != -0.5 {
		t.Errorf("z threshold = %v", cfg.Report.ZScoreThreshold)
	}
	if cfg.History.Backend != "jsonl" {
		t.Errorf("history backend = %q", cfg.History.Backend)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("IFLIP_FETCH_MAX_RETRIES", "7")
	t.Setenv("IFLIP_REPORT_SHIPPING_COST", "25.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.MaxRetries != 7 {
		t.Errorf("max retries = %d, want 7", cfg.Fetch.MaxRetries)
	}
	if cfg.Report.ShippingCost != 25.5 {
		t.Errorf("shipping cost = %v, want 25.5", cfg.Report.ShippingCost)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iflip.yaml")
	body := "fetch:\n  initial_concurrency: 4\nreport:\n  listing_fee: 15\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.InitialConcurrency != 4 {
		t.Errorf("initial concurrency = %d, want 4", cfg.Fetch.InitialConcurrency)
	}
	if cfg.Report.ListingFee != 15 {
		t.Errorf("listing fee = %v, want 15", cfg.Report.ListingFee)
	}
	// Untouched keys keep their defaults.
	if cfg.Fetch.MinConcurrency != 3 {
		t.Errorf("min concurrency = %d, want default 3", cfg.Fetch.MinConcurrency)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative origin", func(c *Config) { c.Site.Origin = "olx.pl" }},
		{"missing selector", func(c *Config) { c.Site.OfferSelector = "" }},
		{"zero timeout", func(c *Config) { c.Fetch.RequestTimeout = 0 }},
		{"concurrency below floor", func(c *Config) { c.Fetch.InitialConcurrency = 2; c.Fetch.MinConcurrency = 3 }},
		{"inverted delay bounds", func(c *Config) { c.Fetch.MinDelay = 5 * time.Second; c.Fetch.MaxDelay = time.Second }},
		{"initial delay out of bounds", func(c *Config) { c.Fetch.InitialDelay = 10 * time.Second }},
		{"positive z threshold", func(c *Config) { c.Report.ZScoreThreshold = 0.5 }},
		{"unknown history backend", func(c *Config) { c.History.Backend = "redis" }},
		{"mongodb without uri", func(c *Config) { c.History.Backend = "mongodb"; c.History.MongoURI = "" }},
		{"zero trend window", func(c *Config) { c.History.TrendDays = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
