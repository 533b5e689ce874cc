package hlsfeed

import (
	"net/url"
	"sort"

	"github.com/grafov/m3u8"
)

// MediaSegment represents media segment in HLS stream
type MediaSegment struct {
	m3u8.MediaSegment
	Sequence              uint64
	DiscontinuitySequence uint64
	// PlaylistSequence is the EXT-X-MEDIA-SEQUENCE of the playlist the segment was listed in.
	PlaylistSequence uint64
	// Playlist is the URL the containing manifest was actually fetched from.
	Playlist *url.URL
}

// ResolvedURI is the absolute segment location.
func (s *MediaSegment) ResolvedURI() (*url.URL, error) {
	u, err := url.Parse(s.URI)
	if err != nil {
		return nil, err
	}
	return s.Playlist.ResolveReference(u), nil
}

// ResolvedKeyURI is the absolute key location, nil when the segment is not encrypted.
func (s *MediaSegment) ResolvedKeyURI() (*url.URL, error) {
	if s.Key == nil || s.Key.URI == "" {
		return nil, nil
	}
	u, err := url.Parse(s.Key.URI)
	if err != nil {
		return nil, err
	}
	return s.Playlist.ResolveReference(u), nil
}

// Less orders by discontinuity sequence, then media sequence.
func (s *MediaSegment) Less(o *MediaSegment) bool {
	if s.DiscontinuitySequence != o.DiscontinuitySequence {
		return s.DiscontinuitySequence < o.DiscontinuitySequence
	}
	return s.Sequence < o.Sequence
}

type MediaSegments []*MediaSegment

// Sort sorts in place and returns the receiver.
func (mss MediaSegments) Sort() MediaSegments {
	sort.SliceStable(mss, func(i, j int) bool {
		return mss[i].Less(mss[j])
	})
	return mss
}

// String encodes the segments as a media playlist; closed adds EXT-X-ENDLIST.
func (mss MediaSegments) String(closed bool) (string, error) {
	size := uint(len(mss))
	if size == 0 {
		size = 1
	}
	p, err := m3u8.NewMediaPlaylist(size, size)
	if err != nil {
		return "", err
	}
	for _, seg := range mss {
		mseg := seg.MediaSegment
		if err := p.AppendSegment(&mseg); err != nil {
			return "", err
		}
	}
	if len(mss) > 0 {
		p.SeqNo = mss[0].Sequence
	}
	if closed {
		p.Close()
	}
	return p.Encode().String(), nil
}
