package repeahttp

import (
	"net/http"
	"time"
)

// RequestOptions describes one outgoing request before it is turned into an *http.Request.
// Hooks may rewrite any field.
type RequestOptions struct {
	Method string
	URI    string
	// Timeout bounds the whole exchange. Zero means no per request limit.
	Timeout time.Duration
	Header  http.Header
}

// BeforeRequestFunc is called for every outgoing request and returns the options to use.
// Returning nil keeps the options it was given.
type BeforeRequestFunc func(opts *RequestOptions) *RequestOptions

func (o *RequestOptions) clone() *RequestOptions {
	c := *o
	if o.Header != nil {
		c.Header = o.Header.Clone()
	}
	return &c
}
