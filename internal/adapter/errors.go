package adapter

import (
	"errors"
	"fmt"
)

// Error categories used as keys in AdapterReport.Errors and in the run
// report's errors_by_category map.
const (
	ErrCategoryNetwork    = "network"
	ErrCategoryHTTPStatus = "http_status"
	ErrCategoryParse      = "parse"
)

// HTTPStatusError marks a non-2xx response. These are never retried: a 403
// or 404 will not improve on a second attempt, and retrying a 429 makes
// the problem worse.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Categorize maps a fetch error to its report category. Anything that is
// not an HTTP status failure came out of the transport and counts as a
// network error.
func Categorize(err error) string {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return ErrCategoryHTTPStatus
	}
	return ErrCategoryNetwork
}
