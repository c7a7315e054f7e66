// Package iflip provides a public SDK for embedding the scanner as a library.
//
// Example usage:
//
//	scanner, err := iflip.NewScanner(
//	    iflip.WithCohort("iPhone 11", "64GB"),
//	    iflip.WithCohort("iPhone 12", "128GB"),
//	    iflip.WithLocation("Warszawa"),
//	    iflip.WithHistoryFile("./price_history.jsonl"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scanner.Close()
//
//	results, err := scanner.Scan(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	scanner.Report(ctx, os.Stdout, results)
package iflip

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jakubczubak/iFlip/internal/config"
	"github.com/jakubczubak/iFlip/internal/fetch"
	"github.com/jakubczubak/iFlip/internal/geo"
	"github.com/jakubczubak/iFlip/internal/history"
	"github.com/jakubczubak/iFlip/internal/pipeline"
	"github.com/jakubczubak/iFlip/internal/report"
)

// Result is one cohort's crawl and analysis output.
type Result = pipeline.Result

// Scanner is the high-level API for running scans from Go code.
type Scanner struct {
	cfg        *config.Config
	queries    []fetch.Query
	location   string
	conditions []string
	store      history.Store
	logger     *slog.Logger
	pipe       *pipeline.Pipeline
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithCohort adds one (model, storage) cohort to the scan.
func WithCohort(model, storage string) Option {
	return func(s *Scanner) {
		s.queries = append(s.queries, fetch.Query{Model: model, StorageCapacity: storage})
	}
}

// WithLocation narrows every cohort's crawl and recommendations to a city.
func WithLocation(city string) Option {
	return func(s *Scanner) { s.location = city }
}

// WithConditions restricts every cohort to the given device condition
// slugs (new, used, damaged).
func WithConditions(conditions ...string) Option {
	return func(s *Scanner) { s.conditions = conditions }
}

// WithZScoreThreshold overrides the recommendation threshold; it must be
// at or below zero.
func WithZScoreThreshold(z float64) Option {
	return func(s *Scanner) { s.cfg.Report.ZScoreThreshold = z }
}

// WithHistoryFile points the price-history log at a JSONL file.
func WithHistoryFile(path string) Option {
	return func(s *Scanner) {
		s.cfg.History.Backend = "jsonl"
		s.cfg.History.Path = path
	}
}

// WithMongoHistory keeps the price-history log in MongoDB instead of a
// local file.
func WithMongoHistory(uri, database, collection string) Option {
	return func(s *Scanner) {
		s.cfg.History.Backend = "mongodb"
		s.cfg.History.MongoURI = uri
		s.cfg.History.Database = database
		s.cfg.History.Collection = collection
	}
}

// WithConfig replaces the default configuration wholesale. Apply it before
// options that tweak individual fields.
func WithConfig(cfg *config.Config) Option {
	return func(s *Scanner) { s.cfg = cfg }
}

// WithLogger sets the structured logger; the default logs at info to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}

// NewScanner builds a Scanner from options and validates the resulting
// configuration.
func NewScanner(opts ...Option) (*Scanner, error) {
	s := &Scanner{
		cfg:    config.DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.queries) == 0 {
		return nil, fmt.Errorf("at least one cohort is required, use WithCohort")
	}
	for i := range s.queries {
		s.queries[i].Location = s.location
		s.queries[i].Conditions = s.conditions
	}
	if err := config.Validate(s.cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var err error
	s.store, err = newStore(s.cfg, s.logger)
	if err != nil {
		return nil, err
	}
	s.pipe = pipeline.New(s.cfg, s.store, s.logger)
	return s, nil
}

func newStore(cfg *config.Config, logger *slog.Logger) (history.Store, error) {
	if cfg.History.Backend == "mongodb" {
		return history.NewMongoStore(cfg.History.MongoURI, cfg.History.Database, cfg.History.Collection, logger)
	}
	return history.NewJSONLStore(cfg.History.Path, logger), nil
}

// Scan crawls and analyzes every configured cohort.
func (s *Scanner) Scan(ctx context.Context) ([]*Result, error) {
	return s.pipe.RunAll(ctx, s.queries)
}

// Report prints the console report for previously scanned results.
func (s *Scanner) Report(ctx context.Context, w io.Writer, results []*Result) {
	geocoder := geo.NewGeocoder(s.cfg.Geo, s.logger)
	reporter := report.NewReporter(s.cfg.Report, geocoder, s.pipe.Trend, w, s.logger)
	for _, res := range results {
		reporter.Render(ctx, res)
	}
}

// Close releases the history store.
func (s *Scanner) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
