package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("IFLIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("iflip")
		v.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".iflip"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("site.origin", cfg.Site.Origin)
	v.SetDefault("site.category_path", cfg.Site.CategoryPath)
	v.SetDefault("site.offer_selector", cfg.Site.OfferSelector)
	v.SetDefault("site.title_selector", cfg.Site.TitleSelector)
	v.SetDefault("site.price_selector", cfg.Site.PriceSelector)
	v.SetDefault("site.link_selector", cfg.Site.LinkSelector)
	v.SetDefault("site.date_loc_selector", cfg.Site.DateLocSelector)
	v.SetDefault("site.protection_selector", cfg.Site.ProtectionSelector)
	v.SetDefault("site.next_page_selector", cfg.Site.NextPageSelector)

	v.SetDefault("fetch.user_agent", cfg.Fetch.UserAgent)
	v.SetDefault("fetch.request_timeout", cfg.Fetch.RequestTimeout)
	v.SetDefault("fetch.initial_delay", cfg.Fetch.InitialDelay)
	v.SetDefault("fetch.min_delay", cfg.Fetch.MinDelay)
	v.SetDefault("fetch.max_delay", cfg.Fetch.MaxDelay)
	v.SetDefault("fetch.delay_step", cfg.Fetch.DelayStep)
	v.SetDefault("fetch.initial_concurrency", cfg.Fetch.InitialConcurrency)
	v.SetDefault("fetch.min_concurrency", cfg.Fetch.MinConcurrency)
	v.SetDefault("fetch.max_retries", cfg.Fetch.MaxRetries)
	v.SetDefault("fetch.retry_delay", cfg.Fetch.RetryDelay)

	v.SetDefault("report.z_score_threshold", cfg.Report.ZScoreThreshold)
	v.SetDefault("report.shipping_cost", cfg.Report.ShippingCost)
	v.SetDefault("report.listing_fee", cfg.Report.ListingFee)

	v.SetDefault("history.backend", cfg.History.Backend)
	v.SetDefault("history.path", cfg.History.Path)
	v.SetDefault("history.database", cfg.History.Database)
	v.SetDefault("history.collection", cfg.History.Collection)
	v.SetDefault("history.trend_days", cfg.History.TrendDays)

	v.SetDefault("geo.endpoint", cfg.Geo.Endpoint)
	v.SetDefault("geo.cache_path", cfg.Geo.CachePath)
	v.SetDefault("geo.user_agent", cfg.Geo.UserAgent)
	v.SetDefault("geo.home_lat", cfg.Geo.HomeLat)
	v.SetDefault("geo.home_lon", cfg.Geo.HomeLon)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
