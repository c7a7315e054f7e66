package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakubczubak/iFlip/internal/config"
	"github.com/jakubczubak/iFlip/internal/fetch"
	"github.com/jakubczubak/iFlip/internal/geo"
	"github.com/jakubczubak/iFlip/internal/history"
	"github.com/jakubczubak/iFlip/internal/pipeline"
	"github.com/jakubczubak/iFlip/internal/report"
)

var (
	scanModels     []string
	scanStorages   []string
	scanLocation   string
	scanConditions []string
	scanThreshold  float64
	scanOpenDeals  bool
)

// scanCmd creates the "scan" subcommand.
func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Crawl listings and report resale opportunities",
		Long: `Crawl OLX.pl for every (model, storage) combination given and print a
price report per cohort: distribution stats, recommended offers, and
suspiciously cheap outliers.

Examples:
  iflip scan --model "iPhone 11" --storage 64GB
  iflip scan --model "iPhone 12" --model "iPhone 13" --storage 128GB --location Warszawa --open`,
		RunE: runScan,
	}

	cmd.Flags().StringSliceVarP(&scanModels, "model", "m", []string{"iPhone 11"}, "iPhone model (repeatable)")
	cmd.Flags().StringSliceVarP(&scanStorages, "storage", "s", []string{"64GB"}, "storage capacity (repeatable)")
	cmd.Flags().StringVarP(&scanLocation, "location", "l", "", "restrict recommendations to a city (also narrows the crawl)")
	cmd.Flags().StringSliceVar(&scanConditions, "state", nil, "device condition filter: new, used, damaged (repeatable)")
	cmd.Flags().Float64VarP(&scanThreshold, "threshold", "t", 0, "z-score threshold override (must be <= 0)")
	cmd.Flags().BoolVarP(&scanOpenDeals, "open", "o", false, "open great deals in the browser")

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Report.ZScoreThreshold = scanThreshold
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	store, err := newHistoryStore(cfg, logger)
	if err != nil {
		logger.Warn("history store unavailable, trends disabled", "error", err)
	}
	if store != nil {
		defer store.Close()
	}

	queries := buildQueries()
	if len(queries) == 0 {
		return fmt.Errorf("nothing to scan: need at least one --model and one --storage")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting scan",
		"cohorts", len(queries),
		"location", scanLocation,
		"z_threshold", cfg.Report.ZScoreThreshold,
	)

	pipe := pipeline.New(cfg, store, logger)

	start := time.Now()
	results, err := pipe.RunAll(ctx, queries)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	geocoder := geo.NewGeocoder(cfg.Geo, logger)
	reporter := report.NewReporter(cfg.Report, geocoder, pipe.Trend, os.Stdout, logger)

	var greatDeals int
	for _, res := range results {
		great := reporter.Render(ctx, res)
		greatDeals += len(great)
		if scanOpenDeals {
			reporter.OpenGreatDeals(great)
		}
	}

	logger.Info("scan complete",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"cohorts", len(results),
		"great_deals", greatDeals,
	)
	return nil
}

// buildQueries crosses every model with every storage capacity; each pair
// is one independently crawled cohort.
func buildQueries() []fetch.Query {
	var queries []fetch.Query
	for _, model := range scanModels {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		for _, storage := range scanStorages {
			storage = strings.TrimSpace(storage)
			if storage == "" {
				continue
			}
			queries = append(queries, fetch.Query{
				Model:           model,
				StorageCapacity: storage,
				Location:        scanLocation,
				Conditions:      scanConditions,
			})
		}
	}
	return queries
}

func newHistoryStore(cfg *config.Config, logger *slog.Logger) (history.Store, error) {
	switch cfg.History.Backend {
	case "mongodb":
		return history.NewMongoStore(cfg.History.MongoURI, cfg.History.Database, cfg.History.Collection, logger)
	default:
		return history.NewJSONLStore(cfg.History.Path, logger), nil
	}
}
