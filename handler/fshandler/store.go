package fshandler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/otofune/hlsfeed"
	"github.com/otofune/hlsfeed/ctxlogger"
	"github.com/otofune/hlsfeed/repeahttp"
	"golang.org/x/sync/semaphore"
)

type store struct {
	client  *repeahttp.Client
	destDir string

	downloadSW *semaphore.Weighted
	downloaded sync.Map

	playlistMutex sync.Mutex
}

func newStore(client *repeahttp.Client, destDir string, parallelism int64) *store {
	return &store{
		client:     client,
		destDir:    destDir,
		downloadSW: semaphore.NewWeighted(parallelism),
	}
}

func (s *store) saveURLTo(ctx context.Context, u string, path string) error {
	logger := ctxlogger.ExtractLogger(ctx)

	if _, loaded := s.downloaded.LoadOrStore(u, struct{}{}); loaded {
		logger.Debugf("skip %s, already got", path)
		return nil
	}
	if err := s.download(ctx, u, path); err != nil {
		// let a later occurrence retry
		s.downloaded.Delete(u)
		return err
	}
	logger.Debugf("saved %s", path)
	return nil
}

func (s *store) download(ctx context.Context, u string, path string) error {
	if err := s.downloadSW.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.downloadSW.Release(1)

	// no timeout: segment fetches must not be taken for playlist loads
	resp, err := s.client.Get(ctx, &repeahttp.RequestOptions{URI: u})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.OpenFile(filepath.Join(s.destDir, path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *store) savePlaylist(ctx context.Context, playlist hlsfeed.MediaSegments, closed bool) error {
	s.playlistMutex.Lock()
	defer s.playlistMutex.Unlock()

	body, err := playlist.String(closed)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.destDir, playlistName+".tmp")
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(s.destDir, playlistName)); err != nil {
		return err
	}
	ctxlogger.ExtractLogger(ctx).Debugf("saved %s (%d segments, closed=%v)", playlistName, len(playlist), closed)
	return nil
}
