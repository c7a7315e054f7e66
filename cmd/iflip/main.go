package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jakubczubak/iFlip/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "iflip",
		Short: "iFlip — OLX.pl iPhone resale opportunity finder",
		Long: `iFlip crawls OLX.pl listings for iPhone models, builds a trimmed price
distribution per (model, storage) cohort, and flags offers priced well
below their cohort as resale opportunities.

Each cohort is analyzed three ways: overall, with the buyer protection
package, and without. Offers below the 5th price percentile are listed
separately as scam candidates, and a local price-history log grades
recommendations against the trailing 30-day median.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("iFlip %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Site:\n")
			fmt.Printf("  Origin:            %s\n", cfg.Site.Origin)
			fmt.Printf("  Category Path:     %s\n", cfg.Site.CategoryPath)
			fmt.Printf("\nFetch:\n")
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetch.RequestTimeout)
			fmt.Printf("  Delay:             %s initial, %s..%s, step %s\n",
				cfg.Fetch.InitialDelay, cfg.Fetch.MinDelay, cfg.Fetch.MaxDelay, cfg.Fetch.DelayStep)
			fmt.Printf("  Concurrency:       %d initial, %d floor\n",
				cfg.Fetch.InitialConcurrency, cfg.Fetch.MinConcurrency)
			fmt.Printf("  Retries:           %d, %s apart\n", cfg.Fetch.MaxRetries, cfg.Fetch.RetryDelay)
			fmt.Printf("\nReport:\n")
			fmt.Printf("  Z-Score Threshold: %.2f\n", cfg.Report.ZScoreThreshold)
			fmt.Printf("  Shipping Cost:     %.2f PLN\n", cfg.Report.ShippingCost)
			fmt.Printf("  Listing Fee:       %.2f PLN\n", cfg.Report.ListingFee)
			fmt.Printf("\nHistory:\n")
			fmt.Printf("  Backend:           %s\n", cfg.History.Backend)
			fmt.Printf("  Path:              %s\n", cfg.History.Path)
			fmt.Printf("  Trend Window:      %d days\n", cfg.History.TrendDays)
			fmt.Printf("\nGeo:\n")
			fmt.Printf("  Cache Path:        %s\n", cfg.Geo.CachePath)
			fmt.Printf("  Home:              %.4f, %.4f\n", cfg.Geo.HomeLat, cfg.Geo.HomeLon)
			return nil
		},
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = newConsoleHandler(os.Stderr, level)
	}
	return slog.New(handler)
}
