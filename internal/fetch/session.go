package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jakubczubak/iFlip/internal/config"
	"github.com/jakubczubak/iFlip/internal/extract"
	"github.com/jakubczubak/iFlip/internal/types"
)

// tuning is the session's adaptive rate-limit state: the inter-wave delay,
// bounded to [MinDelay, MaxDelay], and the page concurrency, bounded to
// [MinConcurrency, InitialConcurrency]. Every read-modify-write goes through
// the mutex; multiple page tasks can hit 429 at the same time.
type tuning struct {
	mu          sync.Mutex
	cfg         config.FetchConfig
	delay       time.Duration
	concurrency int
}

func newTuning(cfg config.FetchConfig) *tuning {
	return &tuning{
		cfg:         cfg,
		delay:       cfg.InitialDelay,
		concurrency: cfg.InitialConcurrency,
	}
}

// snapshot returns the state a new wave should run with.
func (t *tuning) snapshot() (time.Duration, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay, t.concurrency
}

// onRateLimited backs off: raise the delay toward its ceiling and give up
// one worker unless the pool is already at its floor.
func (t *tuning) onRateLimited() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = min(t.delay+2*t.cfg.DelayStep, t.cfg.MaxDelay)
	if t.concurrency > t.cfg.MinConcurrency {
		t.concurrency--
	}
}

// onSuccess recovers gradually: lower the delay one step toward its floor.
func (t *tuning) onSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = max(t.delay-t.cfg.DelayStep, t.cfg.MinDelay)
}

// workerPool is a bounded pool of page tasks. A pool lives for exactly one
// wave: the wave barrier drains it, and the next wave constructs a
// replacement at the then-current concurrency. That is how a mid-wave
// concurrency drop takes effect without resizing a live pool.
type workerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{sem: make(chan struct{}, size)}
}

func (p *workerPool) submit(job func()) {
	p.wg.Add(1)
	p.sem <- struct{}{}
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		job()
	}()
}

func (p *workerPool) wait() {
	p.wg.Wait()
}

// pageResult is what one page task hands back to the wave loop.
type pageResult struct {
	offers     []*types.Offer
	containers int
	hasNext    bool
}

// Session retrieves every result page for one query, in concurrent waves,
// while adapting its request rate to what the server tolerates. Each
// (model, storage) cohort runs its own Session; tuning state is never
// shared across cohorts.
type Session struct {
	cfg    config.FetchConfig
	site   config.SiteConfig
	client *http.Client
	ext    *extract.Extractor
	tuning *tuning
	stats  *Stats
	logger *slog.Logger
}

// NewSession creates a crawl session.
func NewSession(cfg config.FetchConfig, site config.SiteConfig, ext *extract.Extractor, logger *slog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		site:   site,
		client: newHTTPClient(cfg),
		ext:    ext,
		tuning: newTuning(cfg),
		stats:  &Stats{},
		logger: logger.With("component", "fetch_session"),
	}
}

// Stats returns the session's counters.
func (s *Session) Stats() *Stats { return s.stats }

// Run crawls all result pages for the query and returns the extracted
// offers in wave order. Failed pages degrade to zero offers; only context
// cancellation ends the session early, and then the offers gathered so far
// are returned alongside the context's error.
func (s *Session) Run(ctx context.Context, q Query) ([]*types.Offer, error) {
	baseURL, err := s.searchURL(q)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session starting", "query", q.String(), "url", baseURL)

	var offers []*types.Offer
	page := 1
	hasNext := true

	for hasNext {
		delay, concurrency := s.tuning.snapshot()
		s.logger.Debug("starting wave", "first_page", page, "concurrency", concurrency, "delay", delay)

		batch := make([]int, concurrency)
		for i := range batch {
			batch[i] = page + i
		}

		pool := newWorkerPool(concurrency)
		results := make([]pageResult, len(batch))
		for i, p := range batch {
			i, p := i, p
			pool.submit(func() {
				results[i] = s.fetchPage(ctx, baseURL, p, q)
			})
		}
		pool.wait()

		containers := 0
		for _, res := range results {
			offers = append(offers, res.offers...)
			containers += res.containers
		}

		// Continuation is decided from the last page of the wave only.
		// Mid-batch "last page" signals are ignored, so a session can
		// overshoot the true end by up to one wave before stopping.
		hasNext = results[len(results)-1].hasNext
		if containers == 0 {
			hasNext = false
		}
		page += concurrency

		if err := ctx.Err(); err != nil {
			s.logger.Warn("session interrupted", "pages_fetched", s.stats.PagesFetched.Load())
			return offers, err
		}

		if hasNext && !sleepCtx(ctx, delay) {
			s.logger.Warn("session interrupted during pacing sleep")
			return offers, ctx.Err()
		}
	}

	s.logger.Info("session complete",
		"offers", len(offers),
		"pages_fetched", s.stats.PagesFetched.Load(),
		"pages_abandoned", s.stats.PagesAbandoned.Load(),
		"retries", s.stats.Retries.Load(),
		"rate_limit_hits", s.stats.RateLimitHits.Load(),
	)
	return offers, nil
}

// fetchPage retrieves and parses one result page, retrying transient
// failures up to the configured bound. An exhausted page is abandoned: it
// contributes zero offers and never fails the session.
func (s *Session) fetchPage(ctx context.Context, baseURL string, page int, q Query) pageResult {
	pageURL := pageURL(baseURL, page)

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		doc, err := s.fetchOnce(ctx, pageURL, page)
		if err == nil {
			s.tuning.onSuccess()
			s.stats.PagesFetched.Add(1)

			offers := s.ext.Page(doc, q.Model, q.StorageCapacity)
			containers := s.ext.ContainerCount(doc)
			s.stats.OffersExtracted.Add(int64(len(offers)))
			s.stats.ListingsSkipped.Add(int64(containers - len(offers)))
			s.logger.Debug("page fetched", "page", page, "containers", containers, "offers", len(offers))

			return pageResult{
				offers:     offers,
				containers: containers,
				hasNext:    s.ext.HasNextPage(doc),
			}
		}

		var fetchErr *types.FetchError
		if errors.As(err, &fetchErr) && fetchErr.RateLimited() {
			s.stats.RateLimitHits.Add(1)
			s.tuning.onRateLimited()
			s.logger.Warn("rate limited", "page", page, "attempt", attempt)
		} else {
			s.logger.Warn("page fetch failed", "page", page, "attempt", attempt, "error", err)
		}

		if ctx.Err() != nil {
			break
		}
		s.stats.Retries.Add(1)
		if attempt < s.cfg.MaxRetries && !sleepCtx(ctx, s.cfg.RetryDelay) {
			break
		}
	}

	s.stats.PagesAbandoned.Add(1)
	s.logger.Warn("page abandoned", "page", page, "attempts", s.cfg.MaxRetries, "error", types.ErrMaxRetries)
	return pageResult{}
}
