// Package fshandler records a live stream to a directory: every segment (and
// key) as a file under segments/, plus a play.m3u8 that references them.
package fshandler

import (
	"context"
	"crypto/sha1"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/otofune/hlsfeed"
	"github.com/otofune/hlsfeed/ctxlogger"
	"github.com/otofune/hlsfeed/repeahttp"
	"golang.org/x/sync/errgroup"
)

const (
	segmentDirName = "segments"
	playlistName   = "play.m3u8"
)

type FSHandler struct {
	closed atomic.Bool

	segs      hlsfeed.MediaSegments
	segsMutex sync.Mutex

	store *store
}

var _ hlsfeed.PlayHandler = &FSHandler{}

// New prepares dest. Segments are fetched with client, at most parallelism at a time.
func New(client *repeahttp.Client, dest string, parallelism int64) (*FSHandler, error) {
	if err := os.MkdirAll(filepath.Join(dest, segmentDirName), 0o755); err != nil {
		return nil, err
	}
	if parallelism <= 0 {
		parallelism = 8
	}
	return &FSHandler{store: newStore(client, dest, parallelism)}, nil
}

func (h *FSHandler) append(seg *hlsfeed.MediaSegment) int {
	h.segsMutex.Lock()
	defer h.segsMutex.Unlock()
	h.segs = append(h.segs, seg)
	return len(h.segs)
}

func (h *FSHandler) count() int {
	h.segsMutex.Lock()
	defer h.segsMutex.Unlock()
	return len(h.segs)
}

// persistWhenQuiet rewrites play.m3u8 unless another segment arrives within dur.
func (h *FSHandler) persistWhenQuiet(ctx context.Context, n int, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}
	if h.closed.Load() || n != h.count() {
		return nil
	}
	ctxlogger.ExtractLogger(ctx).Debugf("saving live %s", playlistName)
	return h.persistPlaylist(ctx, false)
}

func (h *FSHandler) persistPlaylist(ctx context.Context, closed bool) error {
	h.segsMutex.Lock()
	sorted := append(hlsfeed.MediaSegments(nil), h.segs...).Sort()
	h.segsMutex.Unlock()

	return h.store.savePlaylist(ctx, sorted, closed)
}

func (h *FSHandler) Receive(ctx context.Context, seg *hlsfeed.MediaSegment) error {
	segmentURI, err := seg.ResolvedURI()
	if err != nil {
		return err
	}
	keyURI, err := seg.ResolvedKeyURI()
	if err != nil {
		return err
	}

	local := *seg
	segmentPath := path.Join(segmentDirName, fmt.Sprintf("%d_%d%s", seg.DiscontinuitySequence, seg.Sequence, segmentExt(segmentURI.Path)))
	local.URI = segmentPath
	keyPath := ""
	if keyURI != nil {
		key := *seg.Key
		keyPath = path.Join(segmentDirName, fmt.Sprintf("%x%s", sha1.Sum([]byte(keyURI.String())), path.Ext(keyURI.Path)))
		key.URI = keyPath
		local.Key = &key
	}

	n := h.append(&local)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return h.persistWhenQuiet(ctx, n, time.Duration(seg.Duration/2*float64(time.Second)))
	})
	eg.Go(func() error {
		return h.store.saveURLTo(ctx, segmentURI.String(), segmentPath)
	})
	if keyURI != nil {
		eg.Go(func() error {
			return h.store.saveURLTo(ctx, keyURI.String(), keyPath)
		})
	}
	return eg.Wait()
}

// Close writes play.m3u8 as a closed (VOD) playlist.
func (h *FSHandler) Close(ctx context.Context) error {
	h.closed.Store(true)
	return h.persistPlaylist(ctx, true)
}

// Content addressed segment URLs such as /bytes/<ref> have no extension.
func segmentExt(p string) string {
	if ext := path.Ext(p); ext != "" {
		return ext
	}
	return ".ts"
}
