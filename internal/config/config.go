package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for iFlip.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"    yaml:"site"`
	Fetch   FetchConfig   `mapstructure:"fetch"   yaml:"fetch"`
	Report  ReportConfig  `mapstructure:"report"  yaml:"report"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Geo     GeoConfig     `mapstructure:"geo"     yaml:"geo"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// SiteConfig pins the scraped site's URL shape and CSS selectors. The markup
// contract is fragile by nature; a template change on the site should only
// ever require edits here.
type SiteConfig struct {
	Origin       string `mapstructure:"origin"        yaml:"origin"`
	CategoryPath string `mapstructure:"category_path" yaml:"category_path"`

	OfferSelector      string `mapstructure:"offer_selector"      yaml:"offer_selector"`
	TitleSelector      string `mapstructure:"title_selector"      yaml:"title_selector"`
	PriceSelector      string `mapstructure:"price_selector"      yaml:"price_selector"`
	LinkSelector       string `mapstructure:"link_selector"       yaml:"link_selector"`
	DateLocSelector    string `mapstructure:"date_loc_selector"   yaml:"date_loc_selector"`
	ProtectionSelector string `mapstructure:"protection_selector" yaml:"protection_selector"`
	NextPageSelector   string `mapstructure:"next_page_selector"  yaml:"next_page_selector"`
}

// FetchConfig controls the adaptive fetch session.
type FetchConfig struct {
	UserAgent      string        `mapstructure:"user_agent"      yaml:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MinDelay     time.Duration `mapstructure:"min_delay"     yaml:"min_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"     yaml:"max_delay"`
	DelayStep    time.Duration `mapstructure:"delay_step"    yaml:"delay_step"`

	InitialConcurrency int `mapstructure:"initial_concurrency" yaml:"initial_concurrency"`
	MinConcurrency     int `mapstructure:"min_concurrency"     yaml:"min_concurrency"`

	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// ReportConfig controls presentation and the resale margin estimate.
type ReportConfig struct {
	ZScoreThreshold float64 `mapstructure:"z_score_threshold" yaml:"z_score_threshold"`
	ShippingCost    float64 `mapstructure:"shipping_cost"     yaml:"shipping_cost"`
	ListingFee      float64 `mapstructure:"listing_fee"       yaml:"listing_fee"`
}

// HistoryConfig controls the price-history append log.
type HistoryConfig struct {
	Backend    string `mapstructure:"backend"     yaml:"backend"` // jsonl, mongodb
	Path       string `mapstructure:"path"        yaml:"path"`
	MongoURI   string `mapstructure:"mongo_uri"   yaml:"mongo_uri"`
	Database   string `mapstructure:"database"    yaml:"database"`
	Collection string `mapstructure:"collection"  yaml:"collection"`
	TrendDays  int    `mapstructure:"trend_days"  yaml:"trend_days"`
}

// GeoConfig controls geocoding and the location cache.
type GeoConfig struct {
	Endpoint  string  `mapstructure:"endpoint"   yaml:"endpoint"`
	CachePath string  `mapstructure:"cache_path" yaml:"cache_path"`
	UserAgent string  `mapstructure:"user_agent" yaml:"user_agent"`
	HomeLat   float64 `mapstructure:"home_lat"   yaml:"home_lat"`
	HomeLon   float64 `mapstructure:"home_lon"   yaml:"home_lon"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Origin:             "https://www.olx.pl",
			CategoryPath:       "/elektronika/telefony/smartfony-telefony-komorkowe/",
			OfferSelector:      "div.css-1sw7q4x",
			TitleSelector:      "h4.css-1g61gc2",
			PriceSelector:      "p[data-testid=ad-price]",
			LinkSelector:       "a.css-1tqlkj0",
			DateLocSelector:    "p[data-testid=location-date]",
			ProtectionSelector: "span[data-testid=btr-label-wrapper]",
			NextPageSelector:   "a[data-testid=pagination-forward]",
		},
		Fetch: FetchConfig{
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout:     10 * time.Second,
			InitialDelay:       2 * time.Second,
			MinDelay:           1 * time.Second,
			MaxDelay:           5 * time.Second,
			DelayStep:          500 * time.Millisecond,
			InitialConcurrency: 6,
			MinConcurrency:     3,
			MaxRetries:         3,
			RetryDelay:         5 * time.Second,
		},
		Report: ReportConfig{
			ZScoreThreshold: -0.5,
			ShippingCost:    20.0,
			ListingFee:      10.0,
		},
		History: HistoryConfig{
			Backend:    "jsonl",
			Path:       "./price_history.jsonl",
			Database:   "iflip",
			Collection: "price_history",
			TrendDays:  30,
		},
		Geo: GeoConfig{
			Endpoint:  "https://nominatim.openstreetmap.org/search",
			CachePath: "./location_cache.json",
			UserAgent: "iFlip/1.0 (contact@example.com)",
			HomeLat:   52.2294,
			HomeLon:   20.2384,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
