package hlsfeed

import (
	"context"

	"github.com/otofune/hlsfeed/resolver"
	"golang.org/x/xerrors"
)

type PlaybackOptions struct {
	Refresher *resolver.Refresher
	Player    *Player
	Poster    string
	Filter    FilterMediaPlaylistVariantFn
	Handler   PlayHandler
}

// PlaybackSession is a play session that also owns the manifest refresher.
type PlaybackSession struct {
	PlaySession
	Source    Source
	refresher *resolver.Refresher
}

// Close stops playback and the refresher.
func (s *PlaybackSession) Close() error {
	err := s.PlaySession.Close()
	s.refresher.Stop()
	return err
}

// StartPlayback resolves the initial manifest URL, keeps it refreshed, hooks
// the player's requests so playlist loads follow the latest manifest, and
// starts playing. When the initial resolution fails nothing is played.
func StartPlayback(ctx context.Context, opts PlaybackOptions) (*PlaybackSession, error) {
	initial, err := opts.Refresher.Start(ctx)
	if err != nil {
		return nil, xerrors.Errorf("initial manifest resolution: %w", err)
	}

	opts.Player.Client().BeforeRequest = opts.Refresher.State().BeforeRequest

	src := Source{
		URL:    initial,
		Type:   HLSMimeType,
		Poster: opts.Poster,
	}
	ses, err := opts.Player.Play(ctx, src, opts.Filter, opts.Handler)
	if err != nil {
		opts.Refresher.Stop()
		return nil, xerrors.Errorf("%w", err)
	}

	return &PlaybackSession{
		PlaySession: ses,
		Source:      src,
		refresher:   opts.Refresher,
	}, nil
}
