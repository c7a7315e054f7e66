package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/jakubczubak/iFlip/internal/types"
)

// Record is one appended price observation.
type Record struct {
	Date                 string  `json:"date" bson:"date"` // 2006-01-02
	Price                float64 `json:"price" bson:"price"`
	Model                string  `json:"model" bson:"model"`
	StorageCapacity      string  `json:"storage_capacity" bson:"storage_capacity"`
	HasProtectionPackage bool    `json:"has_protection_package" bson:"has_protection_package"`
}

const dateLayout = "2006-01-02"

// Store is the price-history append log. It is a flat log, not a database
// of offers: only (date, price, cohort) tuples are kept.
type Store interface {
	// Append records the prices of the given offers.
	Append(ctx context.Context, offers []*types.Offer) error

	// Median returns the median price for the cohort over the trailing
	// window, and whether any observations existed.
	Median(ctx context.Context, model, storage string, protection bool, within time.Duration) (float64, bool, error)

	// Close flushes pending writes and releases resources.
	Close() error
}

// TrendFor grades a current price against the cohort's historical median.
// A missing or failing store yields TrendNoData, never an error; trend is
// advisory input to classification, not a hard dependency.
func TrendFor(ctx context.Context, store Store, offer *types.Offer, within time.Duration) types.Trend {
	if store == nil {
		return types.TrendNoData
	}
	median, ok, err := store.Median(ctx, offer.Model, offer.StorageCapacity, offer.HasProtectionPackage, within)
	if err != nil || !ok || median <= 0 {
		return types.TrendNoData
	}
	switch {
	case offer.Price < median*0.9:
		return types.TrendMuchCheaper
	case offer.Price < median:
		return types.TrendCheaper
	default:
		return types.TrendAverage
	}
}

func recordsFromOffers(offers []*types.Offer) []Record {
	records := make([]Record, 0, len(offers))
	for _, o := range offers {
		if o.Price <= 0 {
			continue
		}
		records = append(records, Record{
			Date:                 o.PostedDate.Format(dateLayout),
			Price:                o.Price,
			Model:                o.Model,
			StorageCapacity:      o.StorageCapacity,
			HasProtectionPackage: o.HasProtectionPackage,
		})
	}
	return records
}

func (r Record) matches(model, storage string, protection bool, cutoff time.Time) bool {
	if !strings.EqualFold(r.Model, model) || !strings.EqualFold(r.StorageCapacity, storage) || r.HasProtectionPackage != protection {
		return false
	}
	date, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return false
	}
	return !date.Before(cutoff)
}

// JSONLStore appends records as newline-delimited JSON to a flat file.
type JSONLStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONLStore creates the file-backed history store.
func NewJSONLStore(path string, logger *slog.Logger) *JSONLStore {
	return &JSONLStore{
		path:   path,
		logger: logger.With("component", "history_jsonl"),
	}
}

func (s *JSONLStore) Append(_ context.Context, offers []*types.Offer) error {
	records := recordsFromOffers(offers)
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("append history record: %w", err)
		}
	}
	s.logger.Debug("history appended", "records", len(records))
	return nil
}

func (s *JSONLStore) Median(_ context.Context, model, storage string, protection bool, within time.Duration) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	cutoff := time.Now().Add(-within)
	var prices []float64

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // a corrupt line never poisons the whole log
		}
		if rec.Price > 0 && rec.matches(model, storage, protection, cutoff) {
			prices = append(prices, rec.Price)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, false, fmt.Errorf("scan history log: %w", err)
	}

	if len(prices) == 0 {
		return 0, false, nil
	}
	median, err := stats.Median(prices)
	if err != nil {
		return 0, false, err
	}
	return median, true, nil
}

func (s *JSONLStore) Close() error { return nil }
