package scrape

import (
	"errors"
	"fmt"
)

// Setup failures. Any of these aborts the run before extraction.
var (
	ErrBrowserLaunch         = errors.New("browser launch failed")
	ErrNavigation            = errors.New("navigation failed")
	ErrPageNotReady          = errors.New("page not ready")
	ErrStoreConnectionFailed = errors.New("store connection failed")
)

// ItemError reports a result node that was skipped.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// setupError ties a setup sentinel to its cause so both match errors.Is.
func setupError(kind error, detail string, cause error) error {
	if detail == "" {
		return fmt.Errorf("%w: %w", kind, cause)
	}
	return fmt.Errorf("%w: %s: %w", kind, detail, cause)
}
