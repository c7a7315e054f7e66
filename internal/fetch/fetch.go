package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"

	"github.com/jakubczubak/iFlip/internal/config"
	"github.com/jakubczubak/iFlip/internal/types"
)

// newHTTPClient builds the session's HTTP client with explicit connect and
// read timeouts. Compression is handled by decompressReader so brotli works.
func newHTTPClient(cfg config.FetchConfig) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
}

// fetchOnce performs a single GET and parses the body into a document.
// Non-200 statuses come back as *types.FetchError so the retry loop can
// tell rate limiting apart from other failures.
func (s *Session) fetchOnce(ctx context.Context, pageURL string, page int) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: pageURL, Page: page, Err: err, Retryable: false}
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pl-PL,pl;q=0.9,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: pageURL, Page: page, Err: err, Retryable: isRetryableError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &types.FetchError{
			URL:        pageURL,
			Page:       page,
			StatusCode: resp.StatusCode,
			Err:        errors.New("rate limited"),
			Retryable:  true,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.FetchError{
			URL:        pageURL,
			Page:       page,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
			Retryable:  true,
		}
	}

	reader, err := decompressReader(resp)
	if err != nil {
		return nil, &types.FetchError{URL: pageURL, Page: page, Err: err, Retryable: false}
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, &types.FetchError{URL: pageURL, Page: page, Err: err, Retryable: true}
	}
	return doc, nil
}

// decompressReader wraps the body with the decompressor matching the
// Content-Encoding header (gzip, deflate, brotli).
func decompressReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// isRetryableError checks if a network error warrants a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// sleepCtx sleeps for d or until the context is cancelled. It returns false
// when the sleep was interrupted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
