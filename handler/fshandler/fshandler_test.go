package fshandler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grafov/m3u8"
	"github.com/otofune/hlsfeed"
	"github.com/otofune/hlsfeed/repeahttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSHandler_RecordsSegmentsAndPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data:"+r.URL.Path)
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	manifest := base.ResolveReference(&url.URL{Path: "/bytes/manifestref"})

	dest := t.TempDir()
	h, err := New(repeahttp.NewClient(srv.Client(), base), dest, 2)
	require.NoError(t, err)

	ctx := context.Background()
	for i, ref := range []string{"/bytes/seg6", "/bytes/seg5"} {
		seg := &hlsfeed.MediaSegment{
			MediaSegment: m3u8.MediaSegment{URI: ref, Duration: 0.01},
			Sequence:     uint64(6 - i),
			Playlist:     manifest,
		}
		require.NoError(t, h.Receive(ctx, seg))
		assert.Equal(t, ref, seg.URI, "caller segment must not be rewritten")
	}

	b, err := os.ReadFile(filepath.Join(dest, "segments", "0_5.ts"))
	require.NoError(t, err)
	assert.Equal(t, "data:/bytes/seg5", string(b))

	require.NoError(t, h.Close(ctx))
	pl, err := os.ReadFile(filepath.Join(dest, "play.m3u8"))
	require.NoError(t, err)
	body := string(pl)
	assert.Contains(t, body, "#EXT-X-ENDLIST")
	assert.Contains(t, body, "#EXT-X-MEDIA-SEQUENCE:5")
	assert.Less(t, strings.Index(body, "segments/0_5.ts"), strings.Index(body, "segments/0_6.ts"))
}

func TestFSHandler_SkipsAlreadyDownloaded(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = io.WriteString(w, "x")
	}))
	defer srv.Close()
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	s := newStore(repeahttp.NewClient(srv.Client(), base), t.TempDir(), 1)
	require.NoError(t, s.saveURLTo(context.Background(), srv.URL+"/a", "a.ts"))
	require.NoError(t, s.saveURLTo(context.Background(), srv.URL+"/a", "a.ts"))
	assert.Equal(t, 1, calls)
}

func TestStore_RetriesAfterWriteFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = io.WriteString(w, "x")
	}))
	defer srv.Close()
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	dest := t.TempDir()
	s := newStore(repeahttp.NewClient(srv.Client(), base), dest, 1)

	require.Error(t, s.saveURLTo(context.Background(), srv.URL+"/a", filepath.Join("missing", "a.ts")))

	require.NoError(t, os.Mkdir(filepath.Join(dest, "missing"), 0o755))
	require.NoError(t, s.saveURLTo(context.Background(), srv.URL+"/a", filepath.Join("missing", "a.ts")))
	assert.Equal(t, 2, calls)

	b, err := os.ReadFile(filepath.Join(dest, "missing", "a.ts"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(b))
}
