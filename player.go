package hlsfeed

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/grafov/m3u8"
	"github.com/otofune/hlsfeed/ctxdebugfs"
	"github.com/otofune/hlsfeed/ctxlogger"
	"github.com/otofune/hlsfeed/metrics"
	"github.com/otofune/hlsfeed/repeahttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// HLSMimeType is the source type of an HLS manifest.
const HLSMimeType = "application/x-mpegURL"

// DefaultRequestTimeout is set on playlist loads.
const DefaultRequestTimeout = 30 * time.Second

const minReloadInterval = time.Second

type PlayHandler interface {
	// Receive called in goroutine. order isn't guaranteed, you must sort segments by sequence + discontinuity sequence to persist.
	Receive(ctx context.Context, m *MediaSegment) error
}

type PlaySession interface {
	Close() error
	Wait() error
}

// Source is what the player is told to play.
type Source struct {
	URL    string `json:"src"`
	Type   string `json:"type"`
	Poster string `json:"poster,omitempty"`
}

type playSession struct {
	cancel context.CancelFunc
	eg     *errgroup.Group
}

func (s *playSession) Close() error {
	s.cancel()
	return s.eg.Wait()
}

func (s *playSession) Wait() error {
	return s.eg.Wait()
}

// Player loads playlists through a repeahttp.Client. Playlist loads carry
// RequestTimeout, segment fetches done by handlers carry none.
type Player struct {
	client         *repeahttp.Client
	requestTimeout time.Duration
}

func NewPlayer(client *repeahttp.Client, requestTimeout time.Duration) *Player {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &Player{client: client, requestTimeout: requestTimeout}
}

func (p *Player) Client() *repeahttp.Client {
	return p.client
}

func isHLSType(t string) bool {
	switch strings.ToLower(t) {
	case "application/x-mpegurl", "application/vnd.apple.mpegurl", "audio/mpegurl":
		return true
	}
	return false
}

func (p *Player) playlistRequest(u string) *repeahttp.RequestOptions {
	return &repeahttp.RequestOptions{URI: u, Timeout: p.requestTimeout}
}

// loadPlaylist fetches and decodes one playlist and returns it with the URL it was served from.
func (p *Player) loadPlaylist(ctx context.Context, u string, debugName string) (m3u8.Playlist, *url.URL, error) {
	resp, err := p.client.Get(ctx, p.playlistRequest(u))
	if err != nil {
		metrics.IncPlaylistLoad(false)
		return nil, nil, xerrors.Errorf("%w", err)
	}
	resp.Body = ctxdebugfs.Tee(ctx, resp.Body, debugName)
	defer resp.Body.Close()

	pl, err := decodeM3U8(resp.Body)
	if err != nil {
		metrics.IncPlaylistLoad(false)
		return nil, nil, xerrors.Errorf("decode %s: %w", resp.Request.URL, err)
	}
	metrics.IncPlaylistLoad(true)
	return pl, resp.Request.URL, nil
}

func decodeM3U8(r io.Reader) (m3u8.Playlist, error) {
	pl, _, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return nil, err
	}
	return pl, nil
}

// Play starts playing src and returns immediately. Each selected media playlist
// is polled in its own goroutine until it is closed or the session ends.
func (p *Player) Play(ctx context.Context, src Source, fmpv FilterMediaPlaylistVariantFn, ph PlayHandler) (PlaySession, error) {
	logger := ctxlogger.Component(ctx, "player")

	if !isHLSType(src.Type) {
		return nil, xerrors.Errorf("unsupported source type %q", src.Type)
	}
	if src.Poster != "" {
		logger.Debugf("poster %s", src.Poster)
	}

	playlist, playlistURL, err := p.loadPlaylist(ctx, src.URL, "master.m3u8")
	if err != nil {
		return nil, xerrors.Errorf("failed to get playlist %s: %w", src.URL, err)
	}

	mediaPlaylists, err := selectVariants(playlistURL, playlist, fmpv)
	if err != nil {
		return nil, xerrors.Errorf("%w", err)
	}

	logger.Printf("playing %s, variants: %+q", src.URL, mediaPlaylists)

	cctx, cancel := context.WithCancel(ctx)
	eg, cctx := errgroup.WithContext(cctx)

	ses := playSession{
		cancel: cancel,
		eg:     eg,
	}

	for _, mp := range mediaPlaylists {
		mpu := *mp
		eg.Go(func() error {
			if err := p.runPilot(cctx, &mpu, ph); err != nil {
				return xerrors.Errorf("%w", err)
			}
			return nil
		})
	}

	return &ses, nil
}

func (p *Player) runPilot(ctx context.Context, mediaPlaylist *url.URL, ph PlayHandler) error {
	logger := ctxlogger.Component(ctx, "player")

	// cctx is only handed to handlers so that a handler error does not stop the parent
	eg, cctx := errgroup.WithContext(ctx)

	seen := seenSegments{}
	waitNextReload := time.Duration(0)

	for {
		if waitNextReload > 0 {
			timer := time.NewTimer(waitNextReload)
			select {
			case <-ctx.Done():
				timer.Stop()
				eg.Wait()
				return nil
			case <-cctx.Done():
				timer.Stop()
				if err := eg.Wait(); err != nil {
					return xerrors.Errorf("%w", err)
				}
				return nil
			case <-timer.C:
			}
		}
		logger.Debugf("fetching media playlist (%s waited)", waitNextReload)

		pl, servedFrom, err := p.loadPlaylist(ctx, mediaPlaylist.String(), fmt.Sprintf("%d.m3u8", time.Now().UnixNano()))
		if err != nil {
			if ctx.Err() != nil {
				eg.Wait()
				return nil
			}
			return xerrors.Errorf("can not get media playlist: %w", err)
		}

		mp, ok := pl.(*m3u8.MediaPlaylist)
		if !ok {
			return xerrors.New("unexpected playlist decoded: master playlist")
		}

		disconSeq := mp.DiscontinuitySeq
		seq := mp.SeqNo
		for _, seg := range mp.Segments {
			if seg == nil {
				continue
			}

			if seg.Discontinuity {
				disconSeq++
			}
			currentSeq := seq
			seq++

			id := fmt.Sprintf("%d/%d", disconSeq, currentSeq)
			if !seen.add(disconSeq, currentSeq) {
				continue
			}

			hmseg := &MediaSegment{
				MediaSegment:          *seg,
				Sequence:              currentSeq,
				DiscontinuitySequence: disconSeq,
				PlaylistSequence:      mp.SeqNo,
				Playlist:              servedFrom,
			}
			metrics.IncSegment()
			eg.Go(func() error {
				logger.Debugf("segment %s: %s", id, hmseg.URI)
				return ph.Receive(cctx, hmseg)
			})
		}

		seen.prune(mp.SeqNo)

		if mp.Closed {
			break
		}
		waitNextReload = time.Duration(mp.TargetDuration * float64(time.Second))
		if waitNextReload < minReloadInterval {
			waitNextReload = minReloadInterval
		}
	}

	if err := eg.Wait(); err != nil {
		return xerrors.Errorf("%w", err)
	}
	return nil
}

type segmentKey struct {
	discontinuity uint64
	sequence      uint64
}

// seenSegments remembers dispatched segments of the current playlist window.
type seenSegments map[segmentKey]struct{}

// add reports whether the segment had not been seen yet.
func (s seenSegments) add(disc, seq uint64) bool {
	k := segmentKey{disc, seq}
	if _, ok := s[k]; ok {
		return false
	}
	s[k] = struct{}{}
	return true
}

// prune forgets segments that slid out of a window starting at seq.
func (s seenSegments) prune(seq uint64) {
	for k := range s {
		if k.sequence < seq {
			delete(s, k)
		}
	}
}
