package analyze

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/samber/lo"

	"github.com/jakubczubak/iFlip/internal/types"
)

// minZScoreSample is the smallest cohort for which z-scores are meaningful.
const minZScoreSample = 5

// PriceStats is an immutable snapshot of one cohort's price distribution,
// computed after outlier trimming. The zero value means "no data".
type PriceStats struct {
	Mean       float64
	StdDev     float64 // population standard deviation
	P25        float64
	Median     float64
	P75        float64
	SampleSize int
}

// IsZero reports whether the snapshot carries no data.
func (s PriceStats) IsZero() bool { return s.SampleSize == 0 }

// Percentile computes the q-th percentile of a sorted price list using
// linear interpolation at index q*(n-1). An integral index returns that
// element directly.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	index := q * float64(n-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	fraction := index - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[upper]*fraction
}

// Compute builds the trimmed price distribution for a cohort.
//
// First pass: p5 and p95 over all positive prices. Second pass: mean,
// population standard deviation, and quartiles over prices within [p5, p95].
// Offers priced below p5 are returned as the low-price outlier set (scam
// candidates or exceptional deals). Offers above p95 are dropped from the
// statistics and not retained anywhere.
func Compute(offers []*types.Offer) (PriceStats, []*types.Offer) {
	priced := lo.Filter(offers, func(o *types.Offer, _ int) bool { return o.Price > 0 })
	if len(priced) == 0 {
		return PriceStats{}, nil
	}

	prices := lo.Map(priced, func(o *types.Offer, _ int) float64 { return o.Price })
	sort.Float64s(prices)

	p5 := Percentile(prices, 0.05)
	p95 := Percentile(prices, 0.95)

	var trimmed []float64
	for _, p := range prices {
		if p >= p5 && p <= p95 {
			trimmed = append(trimmed, p)
		}
	}
	lowOutliers := lo.Filter(priced, func(o *types.Offer, _ int) bool { return o.Price < p5 })

	if len(trimmed) == 0 {
		return PriceStats{}, lowOutliers
	}

	mean, err := stats.Mean(trimmed)
	if err != nil {
		return PriceStats{}, lowOutliers
	}
	stdDev, err := stats.StdDevP(trimmed)
	if err != nil {
		return PriceStats{}, lowOutliers
	}

	return PriceStats{
		Mean:       mean,
		StdDev:     stdDev,
		P25:        Percentile(trimmed, 0.25),
		Median:     Percentile(trimmed, 0.50),
		P75:        Percentile(trimmed, 0.75),
		SampleSize: len(trimmed),
	}, lowOutliers
}

// ZScores computes per-offer standard scores against the cohort's trimmed
// stats, keyed by offer ID. A zero standard deviation or a cohort of fewer
// than five offers yields 0 for every offer.
func ZScores(offers []*types.Offer, s PriceStats) map[int64]float64 {
	scores := make(map[int64]float64, len(offers))
	degenerate := s.StdDev == 0 || len(offers) < minZScoreSample
	for _, o := range offers {
		if degenerate {
			scores[o.ID] = 0
			continue
		}
		scores[o.ID] = (o.Price - s.Mean) / s.StdDev
	}
	return scores
}
