package fetch

import (
	"sync/atomic"
)

// Stats tracks one session's crawl counters. These feed diagnostics only;
// they are never part of the analysis output.
type Stats struct {
	PagesFetched    atomic.Int64
	PagesAbandoned  atomic.Int64
	Retries         atomic.Int64
	RateLimitHits   atomic.Int64
	OffersExtracted atomic.Int64
	ListingsSkipped atomic.Int64
}

// Snapshot returns a copy of the counters safe for logging.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"pages_fetched":    s.PagesFetched.Load(),
		"pages_abandoned":  s.PagesAbandoned.Load(),
		"retries":          s.Retries.Load(),
		"rate_limit_hits":  s.RateLimitHits.Load(),
		"offers_extracted": s.OffersExtracted.Load(),
		"listings_skipped": s.ListingsSkipped.Load(),
	}
}
