package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/jakubczubak/iFlip/internal/analyze"
	"github.com/jakubczubak/iFlip/internal/config"
	"github.com/jakubczubak/iFlip/internal/extract"
	"github.com/jakubczubak/iFlip/internal/fetch"
	"github.com/jakubczubak/iFlip/internal/history"
	"github.com/jakubczubak/iFlip/internal/types"
)

// Result is everything one cohort's crawl and analysis produced. This is
// the sole hand-off to the presentation layer.
type Result struct {
	Cohort types.CohortKey
	Query  fetch.Query
	Offers []*types.Offer

	Overall           analyze.PriceStats
	WithProtection    analyze.PriceStats
	WithoutProtection analyze.PriceStats

	ZWithProtection    map[int64]float64
	ZWithoutProtection map[int64]float64

	LowPriceOutliers []*types.Offer

	RecommendedWithProtection    []*types.Offer
	RecommendedWithoutProtection []*types.Offer

	FetchStats map[string]any
}

// StatsFor picks the protection cohort an offer belongs to.
func (r *Result) StatsFor(o *types.Offer) analyze.PriceStats {
	if o.HasProtectionPackage {
		return r.WithProtection
	}
	return r.WithoutProtection
}

// ZScoreFor looks up an offer's z-score in its protection cohort.
func (r *Result) ZScoreFor(o *types.Offer) float64 {
	if o.HasProtectionPackage {
		return r.ZWithProtection[o.ID]
	}
	return r.ZWithoutProtection[o.ID]
}

// Pipeline wires fetch, extraction, analysis and history together for any
// number of (model, storage) cohorts.
type Pipeline struct {
	cfg    *config.Config
	store  history.Store
	logger *slog.Logger
}

// New creates a Pipeline. The history store may be nil; trends then read
// as "no data".
func New(cfg *config.Config, store history.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "pipeline"),
	}
}

// Run crawls and analyzes a single cohort.
func (p *Pipeline) Run(ctx context.Context, q fetch.Query) (*Result, error) {
	ext, err := extract.New(p.cfg.Site, p.logger)
	if err != nil {
		return nil, err
	}

	session := fetch.NewSession(p.cfg.Fetch, p.cfg.Site, ext, p.logger)
	offers, err := session.Run(ctx, q)
	if err != nil {
		return nil, err
	}

	// Today's observations go into the log before trends are read, so a
	// first run already has a window to grade against.
	if p.store != nil {
		if err := p.store.Append(ctx, offers); err != nil {
			p.logger.Warn("history append failed", "error", err)
		}
	}

	withProtection := lo.Filter(offers, func(o *types.Offer, _ int) bool { return o.HasProtectionPackage })
	withoutProtection := lo.Filter(offers, func(o *types.Offer, _ int) bool { return !o.HasProtectionPackage })

	overall, lowOverall := analyze.Compute(offers)
	withStats, lowWith := analyze.Compute(withProtection)
	withoutStats, lowWithout := analyze.Compute(withoutProtection)

	zWith := analyze.ZScores(withProtection, withStats)
	zWithout := analyze.ZScores(withoutProtection, withoutStats)

	threshold := p.cfg.Report.ZScoreThreshold
	recommendedWith := analyze.Recommended(withProtection, withStats, zWith, threshold, q.Location)
	recommendedWithout := analyze.Recommended(withoutProtection, withoutStats, zWithout, threshold, q.Location)
	sortByPrice(recommendedWith)
	sortByPrice(recommendedWithout)

	result := &Result{
		Cohort:                       types.CohortKey{Model: q.Model, StorageCapacity: q.StorageCapacity},
		Query:                        q,
		Offers:                       offers,
		Overall:                      overall,
		WithProtection:               withStats,
		WithoutProtection:            withoutStats,
		ZWithProtection:              zWith,
		ZWithoutProtection:           zWithout,
		LowPriceOutliers:             mergeOutliers(lowOverall, lowWith, lowWithout),
		RecommendedWithProtection:    recommendedWith,
		RecommendedWithoutProtection: recommendedWithout,
		FetchStats:                   session.Stats().Snapshot(),
	}

	p.logger.Info("cohort analyzed",
		"cohort", result.Cohort.String(),
		"offers", len(offers),
		"trimmed_sample", overall.SampleSize,
		"low_price_outliers", len(result.LowPriceOutliers),
		"recommended", len(recommendedWith)+len(recommendedWithout),
	)
	return result, nil
}

// RunAll crawls several cohorts concurrently. Each cohort gets its own
// session and therefore its own adaptive tuning state.
func (p *Pipeline) RunAll(ctx context.Context, queries []fetch.Query) ([]*Result, error) {
	results := make([]*Result, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			res, err := p.Run(ctx, q)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Trend resolves the historical trend for one offer.
func (p *Pipeline) Trend(ctx context.Context, o *types.Offer) types.Trend {
	within := time.Duration(p.cfg.History.TrendDays) * 24 * time.Hour
	return history.TrendFor(ctx, p.store, o, within)
}

func sortByPrice(offers []*types.Offer) {
	sort.Slice(offers, func(i, j int) bool { return offers[i].Price < offers[j].Price })
}

// mergeOutliers unions the per-cohort outlier sets by offer identity. An
// offer below both its cohort's and the overall p5 appears once.
func mergeOutliers(sets ...[]*types.Offer) []*types.Offer {
	seen := make(map[int64]bool)
	var merged []*types.Offer
	for _, set := range sets {
		for _, o := range set {
			if !seen[o.ID] {
				seen[o.ID] = true
				merged = append(merged, o)
			}
		}
	}
	sortByPrice(merged)
	return merged
}
