package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if u, err := url.Parse(cfg.Site.Origin); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.origin must be an absolute URL, got %q", cfg.Site.Origin)
	}
	if cfg.Site.OfferSelector == "" || cfg.Site.TitleSelector == "" ||
		cfg.Site.PriceSelector == "" || cfg.Site.LinkSelector == "" ||
		cfg.Site.DateLocSelector == "" || cfg.Site.NextPageSelector == "" {
		return fmt.Errorf("site selectors must all be set")
	}

	if cfg.Fetch.RequestTimeout <= 0 {
		return fmt.Errorf("fetch.request_timeout must be > 0")
	}
	if cfg.Fetch.MinConcurrency < 1 {
		return fmt.Errorf("fetch.min_concurrency must be >= 1, got %d", cfg.Fetch.MinConcurrency)
	}
	if cfg.Fetch.InitialConcurrency < cfg.Fetch.MinConcurrency {
		return fmt.Errorf("fetch.initial_concurrency must be >= min_concurrency, got %d < %d",
			cfg.Fetch.InitialConcurrency, cfg.Fetch.MinConcurrency)
	}
	if cfg.Fetch.MinDelay < 0 || cfg.Fetch.MaxDelay < cfg.Fetch.MinDelay {
		return fmt.Errorf("fetch delay bounds invalid: min=%s max=%s", cfg.Fetch.MinDelay, cfg.Fetch.MaxDelay)
	}
	if cfg.Fetch.InitialDelay < cfg.Fetch.MinDelay || cfg.Fetch.InitialDelay > cfg.Fetch.MaxDelay {
		return fmt.Errorf("fetch.initial_delay must be within [min_delay, max_delay]")
	}
	if cfg.Fetch.DelayStep <= 0 {
		return fmt.Errorf("fetch.delay_step must be > 0")
	}
	if cfg.Fetch.MaxRetries < 1 {
		return fmt.Errorf("fetch.max_retries must be >= 1, got %d", cfg.Fetch.MaxRetries)
	}

	if cfg.Report.ZScoreThreshold > 0 {
		return fmt.Errorf("report.z_score_threshold must be <= 0, got %f", cfg.Report.ZScoreThreshold)
	}

	switch cfg.History.Backend {
	case "jsonl":
		if cfg.History.Path == "" {
			return fmt.Errorf("history.path must be set for the jsonl backend")
		}
	case "mongodb":
		if cfg.History.MongoURI == "" {
			return fmt.Errorf("history.mongo_uri must be set for the mongodb backend")
		}
	default:
		return fmt.Errorf("history.backend %q is not supported (valid: jsonl, mongodb)", cfg.History.Backend)
	}
	if cfg.History.TrendDays < 1 {
		return fmt.Errorf("history.trend_days must be >= 1, got %d", cfg.History.TrendDays)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}
