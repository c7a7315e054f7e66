package types

import (
	"time"
)

// DateStatus describes how the listing date was presented on the page.
type DateStatus int

const (
	DateStatusNone DateStatus = iota
	DateStatusPostedToday
	DateStatusRefreshed
)

func (s DateStatus) String() string {
	switch s {
	case DateStatusPostedToday:
		return "posted today"
	case DateStatusRefreshed:
		return "refreshed"
	default:
		return ""
	}
}

// Offer is one scraped listing. Offers are created once by the extractor and
// never mutated afterwards.
//
// ID is a synthetic identity assigned at extraction time. Two offers with
// identical displayed fields are still distinct listings, so all lookups
// (z-scores, recommendations) key on ID, never on field equality.
type Offer struct {
	ID                   int64
	Title                string
	Price                float64 // PLN, always > 0
	URL                  string  // absolute
	PostedDate           time.Time
	DateStatus           DateStatus
	Location             string // city; empty means whole country
	HasProtectionPackage bool
	Model                string
	StorageCapacity      string
}

// CohortKey identifies one (model, storage) analysis unit. Each key owns its
// own crawl session, stats, z-score maps, and outlier set.
type CohortKey struct {
	Model           string
	StorageCapacity string
}

func (k CohortKey) String() string {
	return k.Model + " " + k.StorageCapacity
}
