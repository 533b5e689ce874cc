// Package resolver turns a feed into the URL of the current live manifest and
// keeps that URL fresh for the player's request hook.
package resolver

import (
	"context"
	"time"

	"github.com/otofune/hlsfeed/ctxlogger"
	"github.com/otofune/hlsfeed/feed"
	"github.com/otofune/hlsfeed/metrics"
	"golang.org/x/xerrors"
)

// DefaultPathPrefix is where the gateway serves raw content by reference.
const DefaultPathPrefix = "/bytes/"

type Resolver struct {
	reader feed.Reader
	prefix string
}

func New(reader feed.Reader, prefix string) *Resolver {
	if prefix == "" {
		prefix = DefaultPathPrefix
	}
	return &Resolver{reader: reader, prefix: prefix}
}

// ManifestURL joins the content path prefix and a reference.
func ManifestURL(prefix, reference string) string {
	return prefix + reference
}

// Resolve reads the latest feed update and returns the manifest URL it points to.
// Failures are returned as is; there is no retry.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	logger := ctxlogger.Component(ctx, "resolver")

	start := time.Now()
	u, err := r.reader.Latest(ctx)
	elapsed := time.Since(start)
	if err == nil && (u == nil || u.Reference == "") {
		err = feed.ErrMalformedReference
	}
	metrics.ObserveResolution(err == nil, elapsed)
	if err != nil {
		return "", xerrors.Errorf("resolver: resolve feed: %w", err)
	}

	logger.Printf("latest %s (index %d), execution time: %d ms", u.Reference, u.Index, elapsed.Milliseconds())
	return ManifestURL(r.prefix, u.Reference), nil
}
