package tmdb

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRateLimited is returned once the retry budget for HTTP 429 responses is spent.
var ErrRateLimited = errors.New("catalog api rate limit retries exhausted")

// StatusError reports a non-2xx response from the catalog API.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e == nil {
		return "catalog api status error"
	}
	if e.Body == "" {
		return fmt.Sprintf("catalog api %s: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("catalog api %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsRateLimited reports whether err is (or wraps) an HTTP 429 StatusError.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}
