package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jakubczubak/iFlip/internal/config"
	"github.com/jakubczubak/iFlip/internal/extract"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// testFetchConfig returns a config with delays shrunk so tests finish fast.
func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		UserAgent:          "test-agent",
		RequestTimeout:     5 * time.Second,
		InitialDelay:       2 * time.Millisecond,
		MinDelay:           1 * time.Millisecond,
		MaxDelay:           10 * time.Millisecond,
		DelayStep:          1 * time.Millisecond,
		InitialConcurrency: 2,
		MinConcurrency:     1,
		MaxRetries:         3,
		RetryDelay:         1 * time.Millisecond,
	}
}

func listingHTML(offers int, hasNext bool) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < offers; i++ {
		fmt.Fprintf(&b, `<div class="css-1sw7q4x">
			<h4 class="css-1g61gc2">iPhone 11 64GB nr %d</h4>
			<p data-testid="ad-price">%d zł</p>
			<a class="css-1tqlkj0" href="/d/oferta/test-%d.html"></a>
			<p data-testid="location-date">Warszawa - 5 maja 2025</p>
		</div>`, i, 1000+i*10, i)
	}
	if hasNext {
		b.WriteString(`<a data-testid="pagination-forward" href="?page=2"></a>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newTestSession(t *testing.T, cfg config.FetchConfig, origin string) *Session {
	t.Helper()
	site := config.DefaultConfig().Site
	site.Origin = origin

	ext, err := extract.New(site, testLogger)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	return NewSession(cfg, site, ext, testLogger)
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func TestRunCollectsAllPages(t *testing.T) {
	const lastPage = 3
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := pageParam(r)
		if page > lastPage {
			fmt.Fprint(w, listingHTML(0, false))
			return
		}
		fmt.Fprint(w, listingHTML(4, page < lastPage))
	}))
	defer srv.Close()

	s := newTestSession(t, testFetchConfig(), srv.URL)
	offers, err := s.Run(context.Background(), Query{Model: "iPhone 11", StorageCapacity: "64GB"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(offers) != lastPage*4 {
		t.Errorf("offers = %d, want %d", len(offers), lastPage*4)
	}
	if got := s.Stats().OffersExtracted.Load(); got != int64(lastPage*4) {
		t.Errorf("offers_extracted = %d", got)
	}
}

func TestRunAbandonsFailingPage(t *testing.T) {
	cfg := testFetchConfig()
	cfg.InitialConcurrency = 3
	var hits429 atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := pageParam(r)
		if page == 2 {
			hits429.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		// Page 3 closes the wave with no next page, so the session ends
		// after fetching pages 1 and 3 around the failing page 2.
		fmt.Fprint(w, listingHTML(3, page == 1))
	}))
	defer srv.Close()

	s := newTestSession(t, cfg, srv.URL)
	offers, err := s.Run(context.Background(), Query{Model: "iPhone 11", StorageCapacity: "64GB"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Page 2 exhausted its retries but pages 1 and 3 still contributed.
	if len(offers) != 6 {
		t.Fatalf("offers = %d, want 6 from pages 1 and 3", len(offers))
	}
	if got := s.Stats().PagesAbandoned.Load(); got != 1 {
		t.Errorf("pages_abandoned = %d, want 1", got)
	}
	if got := hits429.Load(); got != int64(cfg.MaxRetries) {
		t.Errorf("429 endpoint hit %d times, want %d", got, cfg.MaxRetries)
	}
	if got := s.Stats().RateLimitHits.Load(); got != int64(cfg.MaxRetries) {
		t.Errorf("rate_limit_hits = %d, want %d", got, cfg.MaxRetries)
	}
}

func TestRunStopsOnEmptyWave(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		// Every page claims a next page exists but carries no listings.
		fmt.Fprint(w, listingHTML(0, true))
	}))
	defer srv.Close()

	s := newTestSession(t, testFetchConfig(), srv.URL)
	offers, err := s.Run(context.Background(), Query{Model: "iPhone 11", StorageCapacity: "64GB"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(offers) != 0 {
		t.Errorf("offers = %d, want 0", len(offers))
	}
	if got := requests.Load(); got != int64(testFetchConfig().InitialConcurrency) {
		t.Errorf("requests = %d, want one wave of %d", got, testFetchConfig().InitialConcurrency)
	}
}

func TestRunReturnsPartialOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pageParam(r) > 2 {
			cancel()
		}
		fmt.Fprint(w, listingHTML(2, true))
	}))
	defer srv.Close()

	s := newTestSession(t, testFetchConfig(), srv.URL)
	offers, err := s.Run(ctx, Query{Model: "iPhone 11", StorageCapacity: "64GB"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(offers) == 0 {
		t.Error("cancellation must still return the offers gathered so far")
	}
}

func TestTuningBounds(t *testing.T) {
	cfg := testFetchConfig()
	tn := newTuning(cfg)

	for i := 0; i < 20; i++ {
		tn.onRateLimited()
	}
	delay, concurrency := tn.snapshot()
	if delay != cfg.MaxDelay {
		t.Errorf("delay = %v, want ceiling %v", delay, cfg.MaxDelay)
	}
	if concurrency != cfg.MinConcurrency {
		t.Errorf("concurrency = %d, want floor %d", concurrency, cfg.MinConcurrency)
	}

	for i := 0; i < 20; i++ {
		tn.onSuccess()
	}
	delay, concurrency = tn.snapshot()
	if delay != cfg.MinDelay {
		t.Errorf("delay = %v, want floor %v", delay, cfg.MinDelay)
	}
	if concurrency != cfg.MinConcurrency {
		t.Errorf("success must not restore concurrency, got %d", concurrency)
	}
}

func TestSessionBacksOffUnderRateLimiting(t *testing.T) {
	cfg := testFetchConfig()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := newTestSession(t, cfg, srv.URL)
	if _, err := s.Run(context.Background(), Query{Model: "iPhone 11", StorageCapacity: "64GB"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	delay, concurrency := s.tuning.snapshot()
	if delay <= cfg.InitialDelay {
		t.Errorf("delay = %v, want raised above %v", delay, cfg.InitialDelay)
	}
	if concurrency < cfg.MinConcurrency {
		t.Errorf("concurrency = %d fell below floor %d", concurrency, cfg.MinConcurrency)
	}
}
