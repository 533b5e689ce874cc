package hlsfeed

import (
	"net/url"

	"github.com/grafov/m3u8"
	"golang.org/x/xerrors"
)

type MediaPlaylist struct {
	m3u8.Variant
}

type FilterMediaPlaylistVariantFn func(va []*MediaPlaylist) []*MediaPlaylist

// AllVariants keeps every variant.
func AllVariants(va []*MediaPlaylist) []*MediaPlaylist {
	return va
}

// BestBandwidth keeps only the variant with the highest bandwidth.
func BestBandwidth(va []*MediaPlaylist) []*MediaPlaylist {
	var best *MediaPlaylist
	for _, v := range va {
		if v != nil && (best == nil || v.Bandwidth > best.Bandwidth) {
			best = v
		}
	}
	if best == nil {
		return nil
	}
	return []*MediaPlaylist{best}
}

func selectVariants(playlistURL *url.URL, playlist m3u8.Playlist, filter FilterMediaPlaylistVariantFn) ([]*url.URL, error) {
	if filter == nil {
		filter = AllVariants
	}
	switch playlist := playlist.(type) {
	case *m3u8.MasterPlaylist:
		var mps []*MediaPlaylist
		for _, v := range playlist.Variants {
			if v != nil {
				mps = append(mps, &MediaPlaylist{*v})
			}
		}
		selected := filter(mps)
		if len(selected) == 0 {
			return nil, xerrors.New("no variants selected")
		}

		var urls []*url.URL
		for _, v := range selected {
			u, err := url.Parse(v.URI)
			if err != nil {
				return nil, xerrors.Errorf("variant %q: %w", v.URI, err)
			}
			// resolve relative URL
			urls = append(urls, playlistURL.ResolveReference(u))
		}
		return urls, nil
	case *m3u8.MediaPlaylist:
		return []*url.URL{playlistURL}, nil
	default:
		return nil, xerrors.New("something wrong, given m3u8 is not valid playlist")
	}
}
