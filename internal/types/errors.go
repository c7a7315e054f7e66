package types

import (
	"errors"
	"fmt"
)

// ErrMaxRetries marks a page abandoned after exhausting its retries.
var ErrMaxRetries = errors.New("max retries exceeded")

// FetchError wraps errors that occur while fetching a result page.
type FetchError struct {
	URL        string
	Page       int
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for page %d (status %d): %v", e.Page, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// RateLimited reports whether the server answered with HTTP 429.
func (e *FetchError) RateLimited() bool { return e.StatusCode == 429 }
