package analyze

import (
	"strings"

	"github.com/samber/lo"

	"github.com/jakubczubak/iFlip/internal/types"
)

// Classification thresholds. These are design constants tuned for output
// parity across runs, not derived values.
const (
	greatPriceRatio = 0.80
	greatZScore     = -1.0
	goodPriceRatio  = 0.95
	goodZScore      = -0.5
)

// Tier is the recommendation class for a single offer.
type Tier int

const (
	TierNoData Tier = iota
	TierGreat
	TierGood
	TierAverage
)

func (t Tier) String() string {
	switch t {
	case TierGreat:
		return "great"
	case TierGood:
		return "good"
	case TierAverage:
		return "average"
	default:
		return "no data"
	}
}

// Assessment is a classified offer: its tier plus whether the 30-day price
// trend backs the recommendation up.
type Assessment struct {
	Tier      Tier
	WithTrend bool
}

func (a Assessment) String() string {
	switch a.Tier {
	case TierGreat, TierGood:
		qualifier := "without trend"
		if a.WithTrend {
			qualifier = "with trend"
		}
		return a.Tier.String() + " (" + qualifier + ")"
	default:
		return a.Tier.String()
	}
}

// Classify places one price in a recommendation tier against its cohort's
// trimmed stats, z-score, and historical trend.
func Classify(price float64, s PriceStats, zScore float64, trend types.Trend) Assessment {
	if s.Median == 0 {
		return Assessment{Tier: TierNoData}
	}

	ratio := price / s.Median
	switch {
	case ratio <= greatPriceRatio && zScore <= greatZScore:
		return Assessment{Tier: TierGreat, WithTrend: trend.Cheaper()}
	case ratio <= goodPriceRatio && zScore <= goodZScore:
		return Assessment{Tier: TierGood, WithTrend: trend.Cheaper()}
	default:
		return Assessment{Tier: TierAverage}
	}
}

// Recommended selects the offers within one cohort worth a closer look:
// priced at or below the cohort median, with a z-score at or below the
// threshold, optionally restricted to locations containing the filter
// string (case-insensitive). An empty-median cohort recommends nothing.
func Recommended(offers []*types.Offer, s PriceStats, zScores map[int64]float64, zThreshold float64, location string) []*types.Offer {
	if s.Median == 0 {
		return nil
	}
	needle := strings.ToLower(location)
	return lo.Filter(offers, func(o *types.Offer, _ int) bool {
		if o.Price <= 0 || o.Price > s.Median {
			return false
		}
		if zScores[o.ID] > zThreshold {
			return false
		}
		if needle != "" && !strings.Contains(strings.ToLower(o.Location), needle) {
			return false
		}
		return true
	})
}
