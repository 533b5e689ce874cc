package repeahttp

import (
	"context"
	"net/http"
)

type key string

const headerKey = key("hlsfeedHeader")

// WithHeader attaches headers that every request made with ctx carries.
func WithHeader(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, headerKey, h)
}

func extractHeader(ctx context.Context) http.Header {
	if h, ok := ctx.Value(headerKey).(http.Header); ok {
		return h
	}
	return nil
}
