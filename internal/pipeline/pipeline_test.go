package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jakubczubak/iFlip/internal/config"
	"github.com/jakubczubak/iFlip/internal/fetch"
	"github.com/jakubczubak/iFlip/internal/history"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fixturePrices covers both protection cohorts with enough spread for the
// trim and z-score paths to do real work.
var fixturePrices = []struct {
	price      int
	protection bool
}{
	{700, false}, {950, false}, {1000, false}, {1050, false}, {1100, false},
	{1000, true}, {1100, true}, {1150, true}, {1200, true}, {1250, true},
	{3000, false}, // dropped above p95
}

// fixtureHandler serves the listings on page 1 only; later pages are empty
// so the session stops after its first wave.
func fixtureHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "" {
			fmt.Fprint(w, "<html><body></body></html>")
			return
		}
		fmt.Fprint(w, fixturePage())
	}
}

func fixturePage() string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i, l := range fixturePrices {
		badge := ""
		if l.protection {
			badge = `<span data-testid="btr-label-wrapper">Pakiet Ochronny</span>`
		}
		fmt.Fprintf(&b, `<div class="css-1sw7q4x">
			<h4 class="css-1g61gc2">iPhone 11 64GB nr %d</h4>
			<p data-testid="ad-price">%d zł</p>
			<a class="css-1tqlkj0" href="/d/oferta/test-%d.html"></a>
			<p data-testid="location-date">Warszawa - 5 maja 2025</p>
			%s
		</div>`, i, l.price, i, badge)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func testConfig(t *testing.T, origin string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Site.Origin = origin
	cfg.Fetch.InitialDelay = 2 * time.Millisecond
	cfg.Fetch.MinDelay = time.Millisecond
	cfg.Fetch.MaxDelay = 10 * time.Millisecond
	cfg.Fetch.DelayStep = time.Millisecond
	cfg.Fetch.RetryDelay = time.Millisecond
	cfg.History.Path = filepath.Join(t.TempDir(), "history.jsonl")
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	srv := httptest.NewServer(fixtureHandler())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	store := history.NewJSONLStore(cfg.History.Path, testLogger)
	defer store.Close()

	p := New(cfg, store, testLogger)
	res, err := p.Run(context.Background(), fetch.Query{Model: "iPhone 11", StorageCapacity: "64GB"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Offers) != len(fixturePrices) {
		t.Fatalf("offers = %d, want %d", len(res.Offers), len(fixturePrices))
	}
	if res.Overall.IsZero() || res.WithProtection.IsZero() || res.WithoutProtection.IsZero() {
		t.Fatal("all three stat cohorts must carry data")
	}
	if res.Overall.SampleSize >= len(fixturePrices) {
		t.Errorf("trim dropped nothing: sample = %d", res.Overall.SampleSize)
	}
	if len(res.ZWithProtection) != 5 || len(res.ZWithoutProtection) != 6 {
		t.Errorf("z-score maps sized %d/%d, want 5/6",
			len(res.ZWithProtection), len(res.ZWithoutProtection))
	}

	// Recommendations come back cheapest first and never exceed the median.
	for _, o := range res.RecommendedWithoutProtection {
		if o.Price > res.WithoutProtection.Median {
			t.Errorf("recommended offer above median: %v", o.Price)
		}
	}
	for i := 1; i < len(res.RecommendedWithoutProtection); i++ {
		if res.RecommendedWithoutProtection[i].Price < res.RecommendedWithoutProtection[i-1].Price {
			t.Error("recommendations not sorted by price")
		}
	}

	// The crawl's prices landed in the history log.
	if _, err := os.Stat(cfg.History.Path); err != nil {
		t.Errorf("history log missing: %v", err)
	}
}

func TestRunAllIndependentCohorts(t *testing.T) {
	srv := httptest.NewServer(fixtureHandler())
	defer srv.Close()

	p := New(testConfig(t, srv.URL), nil, testLogger)
	queries := []fetch.Query{
		{Model: "iPhone 11", StorageCapacity: "64GB"},
		{Model: "iPhone 12", StorageCapacity: "128GB"},
	}

	results, err := p.RunAll(context.Background(), queries)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for i, res := range results {
		if res.Cohort.Model != queries[i].Model {
			t.Errorf("result %d cohort = %v", i, res.Cohort)
		}
		if len(res.Offers) == 0 {
			t.Errorf("result %d has no offers", i)
		}
	}
}

func TestRunRejectsIncompleteQuery(t *testing.T) {
	p := New(testConfig(t, "https://www.olx.pl"), nil, testLogger)
	if _, err := p.Run(context.Background(), fetch.Query{Model: "iPhone 11"}); err == nil {
		t.Error("missing storage must fail before any fetch")
	}
}
