package types

// Trend compares a current price against the cohort's historical median
// over the trend window.
type Trend int

const (
	TrendNoData Trend = iota
	TrendMuchCheaper
	TrendCheaper
	TrendAverage
)

// Cheaper reports whether the price sits below the historical median.
func (t Trend) Cheaper() bool {
	return t == TrendCheaper || t == TrendMuchCheaper
}

func (t Trend) String() string {
	switch t {
	case TrendMuchCheaper:
		return "much cheaper"
	case TrendCheaper:
		return "cheaper"
	case TrendAverage:
		return "average"
	default:
		return "no data"
	}
}
