package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"text/tabwriter"

	"github.com/jakubczubak/iFlip/internal/analyze"
	"github.com/jakubczubak/iFlip/internal/config"
	"github.com/jakubczubak/iFlip/internal/geo"
	"github.com/jakubczubak/iFlip/internal/pipeline"
	"github.com/jakubczubak/iFlip/internal/types"
)

// TrendFunc resolves the historical trend for one offer. The pipeline's
// Trend method satisfies it.
type TrendFunc func(ctx context.Context, o *types.Offer) types.Trend

// Reporter renders cohort results as aligned console tables.
type Reporter struct {
	cfg      config.ReportConfig
	geocoder *geo.Geocoder
	trend    TrendFunc
	out      io.Writer
	logger   *slog.Logger
}

func NewReporter(cfg config.ReportConfig, geocoder *geo.Geocoder, trend TrendFunc, out io.Writer, logger *slog.Logger) *Reporter {
	return &Reporter{
		cfg:      cfg,
		geocoder: geocoder,
		trend:    trend,
		out:      out,
		logger:   logger.With("component", "report"),
	}
}

// Render prints one cohort's full report and returns the offers classified
// as great deals, for optional browser opening.
func (r *Reporter) Render(ctx context.Context, res *pipeline.Result) []*types.Offer {
	fmt.Fprintf(r.out, "\n=== %s ===\n", res.Cohort.String())
	fmt.Fprintf(r.out, "offers: %d  pages fetched: %v  abandoned: %v  rate limited: %v\n\n",
		len(res.Offers), res.FetchStats["pages_fetched"], res.FetchStats["pages_abandoned"], res.FetchStats["rate_limit_hits"])

	r.renderStats(res)

	var great []*types.Offer
	great = append(great, r.renderRecommended(ctx, "Recommended (with protection package)", res, res.RecommendedWithProtection)...)
	great = append(great, r.renderRecommended(ctx, "Recommended (without protection package)", res, res.RecommendedWithoutProtection)...)

	r.renderLowOutliers(res)
	return great
}

func (r *Reporter) renderStats(res *pipeline.Result) {
	w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "cohort\tn\tmean\tstddev\tp25\tmedian\tp75")
	writeStatsRow(w, "overall", res.Overall)
	writeStatsRow(w, "with protection", res.WithProtection)
	writeStatsRow(w, "without protection", res.WithoutProtection)
	w.Flush()
	fmt.Fprintln(r.out)
}

func writeStatsRow(w io.Writer, label string, s analyze.PriceStats) {
	if s.IsZero() {
		fmt.Fprintf(w, "%s\t0\t-\t-\t-\t-\t-\n", label)
		return
	}
	fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
		label, s.SampleSize, s.Mean, s.StdDev, s.P25, s.Median, s.P75)
}

func (r *Reporter) renderRecommended(ctx context.Context, title string, res *pipeline.Result, offers []*types.Offer) []*types.Offer {
	fmt.Fprintln(r.out, title)
	if len(offers) == 0 {
		fmt.Fprintln(r.out, "  (none)")
		fmt.Fprintln(r.out)
		return nil
	}

	var great []*types.Offer
	w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "price\tz\tassessment\tmargin\tlocation\tdist\tposted\ttitle\turl")
	for _, o := range offers {
		z := res.ZScoreFor(o)
		assessment := analyze.Classify(o.Price, res.StatsFor(o), z, r.trend(ctx, o))
		if assessment.Tier == analyze.TierGreat {
			great = append(great, o)
		}
		fmt.Fprintf(w, "%.2f\t%.2f\t%s\t%.2f\t%s\t%s\t%s\t%s\t%s\n",
			o.Price, z, assessment, r.margin(res, o),
			o.Location, r.distance(ctx, o), postedLabel(o), truncate(o.Title, 40), o.URL)
	}
	w.Flush()
	fmt.Fprintln(r.out)
	return great
}

func (r *Reporter) renderLowOutliers(res *pipeline.Result) {
	fmt.Fprintln(r.out, "Suspiciously cheap (below 5th percentile, verify before buying)")
	if len(res.LowPriceOutliers) == 0 {
		fmt.Fprintln(r.out, "  (none)")
		fmt.Fprintln(r.out)
		return
	}
	w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "price\tlocation\ttitle\turl")
	for _, o := range res.LowPriceOutliers {
		fmt.Fprintf(w, "%.2f\t%s\t%s\t%s\n", o.Price, o.Location, truncate(o.Title, 40), o.URL)
	}
	w.Flush()
	fmt.Fprintln(r.out)
}

// margin estimates resale profit: buy now, resell at the overall 25th
// percentile, minus shipping and the listing fee.
func (r *Reporter) margin(res *pipeline.Result, o *types.Offer) float64 {
	return res.Overall.P25 - o.Price - r.cfg.ShippingCost - r.cfg.ListingFee
}

func (r *Reporter) distance(ctx context.Context, o *types.Offer) string {
	if r.geocoder == nil || o.Location == "" {
		return "-"
	}
	coords, ok := r.geocoder.Coordinates(ctx, o.Location)
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.0f km", geo.Haversine(r.geocoder.Home(), coords))
}

func postedLabel(o *types.Offer) string {
	if o.DateStatus != types.DateStatusNone {
		return o.DateStatus.String()
	}
	return o.PostedDate.Format("2006-01-02")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// OpenGreatDeals opens each URL in the default browser. Failures are
// logged and skipped; the report already printed the URLs.
func (r *Reporter) OpenGreatDeals(offers []*types.Offer) {
	for _, o := range offers {
		if err := openBrowser(o.URL); err != nil {
			r.logger.Warn("could not open browser", "url", o.URL, "error", err)
		}
	}
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
