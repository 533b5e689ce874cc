package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the gateway has no update for the feed.
	ErrNotFound = errors.New("feed: no update found")
	// ErrMalformedReference is returned when the gateway answer does not carry a usable reference.
	ErrMalformedReference = errors.New("feed: malformed reference")
)

// StatusError reports an unexpected gateway status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed: gateway returned %s", e.Status)
}
