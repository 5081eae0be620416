package scraper

import (
	"errors"
	"fmt"
)

// ErrNoCards is returned when a results page holds no card nodes.
var ErrNoCards = errors.New("no cards found on page")

// Fetch failure categories. They double as the error_type metric label and
// the stop reason of an aborted run.
const (
	CategoryTimeout     = "timeout"
	CategoryConnection  = "connection"
	CategoryForbidden   = "forbidden"
	CategoryNotFound    = "not_found"
	CategoryRateLimited = "rate_limited"
	CategoryBadStatus   = "bad_status"
	CategoryOther       = "other"
)

// FetchError is a classified failure to get a usable listing page.
type FetchError struct {
	Category   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: http status %d", e.Category, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Category
	}
	if errors.Is(err, ErrNoCards) {
		return "no_cards"
	}
	return CategoryOther
}
