package match

import (
	"errors"
	"fmt"
)

// ErrNoRetryableSearch is returned by Retry when there is no search in
// not_found or error state to retry.
var ErrNoRetryableSearch = errors.New("match: no search to retry")

// ConcurrentSearchError rejects a Submit while another search is still
// running. Never queued; the caller must cancel or wait first.
type ConcurrentSearchError struct {
	ActiveRequestID string
}

func (e *ConcurrentSearchError) Error() string {
	return fmt.Sprintf("a search is already active (request %s)", e.ActiveRequestID)
}
